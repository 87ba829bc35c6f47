package extract

import (
	"sort"
	"strings"
)

// cities are the destinations recognized without a leading 去/到.
var cities = []string{
	"北京", "上海", "天津", "重庆", "广州", "深圳", "杭州", "南京", "苏州", "无锡",
	"厦门", "福州", "泉州", "成都", "西安", "武汉", "长沙", "郑州", "济南", "青岛",
	"大连", "沈阳", "哈尔滨", "长春", "昆明", "大理", "丽江", "西双版纳", "桂林", "阳朔",
	"南宁", "北海", "三亚", "海口", "贵阳", "拉萨", "乌鲁木齐", "兰州", "敦煌", "西宁",
	"银川", "呼和浩特", "太原", "平遥", "石家庄", "秦皇岛", "承德", "合肥", "黄山", "南昌",
	"景德镇", "婺源", "宁波", "舟山", "绍兴", "嘉兴", "乌镇", "扬州", "镇江", "常州",
	"珠海", "汕头", "潮州", "佛山", "东莞", "惠州", "香港", "澳门", "台北", "洛阳",
	"开封", "张家界", "凤凰", "九寨沟", "稻城", "峨眉山", "乐山", "都江堰", "烟台", "威海",
}

// englishCities maps lower-cased English names to the canonical city name.
var englishCities = map[string]string{
	"beijing":   "北京",
	"shanghai":  "上海",
	"tianjin":   "天津",
	"chongqing": "重庆",
	"guangzhou": "广州",
	"shenzhen":  "深圳",
	"hangzhou":  "杭州",
	"nanjing":   "南京",
	"suzhou":    "苏州",
	"xiamen":    "厦门",
	"chengdu":   "成都",
	"xi'an":     "西安",
	"xian":      "西安",
	"wuhan":     "武汉",
	"qingdao":   "青岛",
	"kunming":   "昆明",
	"dali":      "大理",
	"lijiang":   "丽江",
	"guilin":    "桂林",
	"sanya":     "三亚",
	"lhasa":     "拉萨",
	"harbin":    "哈尔滨",
	"hong kong": "香港",
	"macau":     "澳门",
}

// byLength orders the gazetteer so longer names win over their prefixes.
var byLength = func() []string {
	out := append([]string(nil), cities...)
	sort.SliceStable(out, func(i, j int) bool { return len([]rune(out[i])) > len([]rune(out[j])) })
	return out
}()

type cityHit struct {
	name string
	pos  int
}

// findCities returns every known city mentioned in text, in order of appearance.
func findCities(text string) []cityHit {
	var hits []cityHit
	taken := make([]bool, len(text))
	for _, name := range byLength {
		from := 0
		for {
			idx := strings.Index(text[from:], name)
			if idx < 0 {
				break
			}
			pos := from + idx
			from = pos + len(name)
			if overlaps(taken, pos, len(name)) {
				continue
			}
			for k := pos; k < pos+len(name); k++ {
				taken[k] = true
			}
			hits = append(hits, cityHit{name: name, pos: pos})
		}
	}
	lower := strings.ToLower(text)
	for en, name := range englishCities {
		if idx := strings.Index(lower, en); idx >= 0 && wordBoundary(lower, idx, len(en)) {
			hits = append(hits, cityHit{name: name, pos: idx})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	return hits
}

func overlaps(taken []bool, pos, n int) bool {
	for k := pos; k < pos+n; k++ {
		if taken[k] {
			return true
		}
	}
	return false
}

func wordBoundary(s string, idx, n int) bool {
	isLetter := func(b byte) bool { return b >= 'a' && b <= 'z' }
	if idx > 0 && isLetter(s[idx-1]) {
		return false
	}
	if end := idx + n; end < len(s) && isLetter(s[end]) {
		return false
	}
	return true
}
