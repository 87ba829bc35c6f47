package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// Parsed is what a single turn states about a trip.
type Parsed struct {
	Destination  string
	StartDate    domain.Date
	EndDate      domain.Date
	DayCount     int
	Preferences  []string
	NoPreference bool
	Only         bool
}

// MentionsTrip reports whether the turn supplies any trip field: a
// destination, dates, preferences or an explicit "no preference".
func (p Parsed) MentionsTrip() bool {
	return p.Destination != "" || !p.StartDate.IsZero() || p.DayCount > 0 ||
		len(p.Preferences) > 0 || p.NoPreference
}

// Parse reads trip fields out of free text. now anchors relative dates.
func Parse(text string, now time.Time) Parsed {
	norm := normalize(text)
	today := domain.DateOf(now)

	var p Parsed
	p.Destination = parseDestination(norm)

	rest := norm
	if p.Destination != "" {
		rest = strings.ReplaceAll(rest, strings.ToLower(p.Destination), " ")
	}

	rest = p.parseDates(rest, today)
	p.DayCount = parseDuration(rest)
	if p.DayCount == 0 && !p.StartDate.IsZero() && !p.EndDate.IsZero() {
		p.DayCount = p.StartDate.DaysUntil(p.EndDate) + 1
	}
	if isWeekendTrip(rest) && p.StartDate.IsZero() {
		p.StartDate = upcoming(today, time.Saturday)
	}

	p.Preferences, p.NoPreference = parsePreferences(rest)
	p.Only = len(p.Preferences) > 0 && onlyPattern.MatchString(rest)
	return p
}

// normalize folds full-width characters and lower-cases Latin text.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(width.Fold.String(text)))
}

// Destination

var (
	destPrefixes = []string{"去", "到", "前往", "飞往", "飞", "至", "游", "to", "visit", "visiting"}
	fromPrefixes = []string{"从", "离开", "from"}

	unknownCNDest  = regexp.MustCompile(`(?:去|到|前往)([\p{Han}]{2,5}?)(?:玩|旅游|旅行|游|看看|逛逛|度假|转转|待|住|[0-9一二两三四五六七八九十]|[,.!?;\s]|$)`)
	unknownTourDst = regexp.MustCompile(`([\p{Han}]{2,5})之旅`)
	unknownENDest  = regexp.MustCompile(`(?:trip to|travel to|go to|going to|fly to|visit|visiting)\s+([a-z]{3,})`)

	notPlaceStarts = []string{"哪", "那", "这", "看", "玩", "吃", "逛", "旅", "买", "一", "个"}
	notPlaceParts  = []string{"月", "日", "号", "天", "周", "星期", "的"}
	notPlaceWords  = map[string]bool{"the": true, "see": true, "some": true, "somewhere": true, "there": true}
)

func parseDestination(text string) string {
	hits := findCities(text)
	for _, h := range hits {
		if hasAnySuffix(strings.TrimRight(text[:h.pos], " "), destPrefixes) {
			return h.name
		}
	}
	for _, h := range hits {
		if !hasAnySuffix(strings.TrimRight(text[:h.pos], " "), fromPrefixes) {
			return h.name
		}
	}

	for _, re := range []*regexp.Regexp{unknownCNDest, unknownTourDst} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if isPlaceName(m[1]) {
				return m[1]
			}
		}
	}
	if m := unknownENDest.FindStringSubmatch(text); m != nil && !notPlaceWords[m[1]] {
		return cases.Title(language.English).String(m[1])
	}

	// Only a departure city was named.
	if len(hits) > 0 {
		return hits[len(hits)-1].name
	}
	return ""
}

func isPlaceName(s string) bool {
	for _, p := range notPlaceStarts {
		if strings.HasPrefix(s, p) {
			return false
		}
	}
	for _, p := range notPlaceParts {
		if strings.Contains(s, p) {
			return false
		}
	}
	return true
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// Dates

const cnNum = `[0-9]{1,2}|[一二三四五六七八九十]{1,3}`

var (
	isoDate      = regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	cnFullDate   = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*[日号]?`)
	cnDayRange   = regexp.MustCompile(`(` + cnNum + `)\s*月\s*(` + cnNum + `)\s*[日号]?\s*(?:到|至|-|~|—)\s*(` + cnNum + `)\s*[日号]`)
	cnMonthDay   = regexp.MustCompile(`(` + cnNum + `)\s*月\s*(` + cnNum + `)\s*[日号]?`)
	relativeDay  = regexp.MustCompile(`大后天|后天|明天|今天|tomorrow|today`)
	weekdayRef   = regexp.MustCompile(`(下下|下|这|本)?(?:周|星期|礼拜)([一二三四五六日天])`)
	rangeJoiners = regexp.MustCompile(`^\s*(?:到|至|-|~|—|until|to)\s*$`)

	relativeOffsets = map[string]int{"今天": 0, "today": 0, "明天": 1, "tomorrow": 1, "后天": 2, "大后天": 3}
	weekdayIndex    = map[string]int{"一": 0, "二": 1, "三": 2, "四": 3, "五": 4, "六": 5, "日": 6, "天": 6}
)

type dateHit struct {
	start, end int
	date       domain.Date
}

// parseDates fills StartDate and EndDate and returns text with the matched
// spans blanked so durations are not read out of day numbers.
func (p *Parsed) parseDates(text string, today domain.Date) string {
	var hits []dateHit
	blank := func(loc []int) {
		text = text[:loc[0]] + strings.Repeat(" ", loc[1]-loc[0]) + text[loc[1]:]
	}

	// 1月20日到22日 carries its own end date.
	for _, loc := range cnDayRange.FindAllStringSubmatchIndex(text, -1) {
		month, _ := parseNumber(text[loc[2]:loc[3]])
		from, _ := parseNumber(text[loc[4]:loc[5]])
		to, _ := parseNumber(text[loc[6]:loc[7]])
		start, ok := inferYear(month, from, today)
		if !ok {
			continue
		}
		if end, ok := makeDate(start.Time().Year(), month, to); ok && start.Before(end) && p.StartDate.IsZero() {
			p.StartDate, p.EndDate = start, end
		}
		blank(loc)
	}
	if !p.StartDate.IsZero() {
		return text
	}

	for _, re := range []*regexp.Regexp{isoDate, cnFullDate} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if d, ok := makeDate(atoi(text[loc[2]:loc[3]]), atoi(text[loc[4]:loc[5]]), atoi(text[loc[6]:loc[7]])); ok {
				hits = append(hits, dateHit{loc[0], loc[1], d})
			}
			blank(loc)
		}
	}
	for _, loc := range cnMonthDay.FindAllStringSubmatchIndex(text, -1) {
		if strings.HasPrefix(strings.TrimLeft(text[loc[1]:], " "), "天") {
			continue
		}
		month, _ := parseNumber(text[loc[2]:loc[3]])
		day, _ := parseNumber(text[loc[4]:loc[5]])
		if d, ok := inferYear(month, day, today); ok {
			hits = append(hits, dateHit{loc[0], loc[1], d})
		}
		blank(loc)
	}
	for _, loc := range relativeDay.FindAllStringIndex(text, -1) {
		hits = append(hits, dateHit{loc[0], loc[1], today.AddDays(relativeOffsets[text[loc[0]:loc[1]]])})
		blank(loc)
	}
	for _, loc := range weekdayRef.FindAllStringSubmatchIndex(text, -1) {
		prefix := ""
		if loc[2] >= 0 {
			prefix = text[loc[2]:loc[3]]
		}
		hits = append(hits, dateHit{loc[0], loc[1], weekdayDate(today, prefix, weekdayIndex[text[loc[4]:loc[5]]])})
		blank(loc)
	}

	if len(hits) == 0 {
		return text
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	p.StartDate = hits[0].date
	if len(hits) > 1 && p.StartDate.Before(hits[1].date) && rangeJoiners.MatchString(text[hits[0].end:hits[1].start]) {
		p.EndDate = hits[1].date
	}
	return text
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// makeDate rejects out-of-range parts instead of letting time.Date normalize them.
func makeDate(year, month, day int) (domain.Date, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return domain.Date{}, false
	}
	d := domain.NewDate(year, time.Month(month), day)
	if d.Time().Day() != day {
		return domain.Date{}, false
	}
	return d, true
}

// inferYear picks this year, or next year when the day has already passed.
func inferYear(month, day int, today domain.Date) (domain.Date, bool) {
	year := today.Time().Year()
	d, ok := makeDate(year, month, day)
	if !ok {
		return d, false
	}
	if d.Before(today) {
		return makeDate(year+1, month, day)
	}
	return d, true
}

// weekdayDate resolves 周X / 下周X / 下下周X, Monday being index 0.
func weekdayDate(today domain.Date, prefix string, idx int) domain.Date {
	todayIdx := (int(today.Weekday()) + 6) % 7
	monday := today.AddDays(-todayIdx)
	switch prefix {
	case "下":
		return monday.AddDays(7 + idx)
	case "下下":
		return monday.AddDays(14 + idx)
	}
	d := monday.AddDays(idx)
	if d.Before(today) {
		d = d.AddDays(7)
	}
	return d
}

func upcoming(today domain.Date, wd time.Weekday) domain.Date {
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	return today.AddDays(delta)
}

// Duration

var (
	daysPattern    = regexp.MustCompile(`(\d{1,3}|[一二两三四五六七八九十]{1,3})\s*(?:天|日游)`)
	daysEnglish    = regexp.MustCompile(`(\d{1,3})\s*-?\s*days?\b`)
	weeksPattern   = regexp.MustCompile(`(\d{1,2}|[一二两三四五六七八九十]{1,2})\s*(?:周|个星期|个礼拜)`)
	weeksEnglish   = regexp.MustCompile(`\b(?:a|one|1)\s+week\b`)
	nightsPattern  = regexp.MustCompile(`(\d{1,3}|[一二两三四五六七八九十]{1,3})\s*(?:晚|夜)`)
	weekendPattern = regexp.MustCompile(`周末|weekend`)
	onlyPattern    = regexp.MustCompile(`只|\bonly\b`)
)

func parseDuration(text string) int {
	if m := daysPattern.FindStringSubmatch(text); m != nil {
		if n, ok := parseNumber(m[1]); ok {
			return n
		}
	}
	if m := daysEnglish.FindStringSubmatch(text); m != nil {
		return atoi(m[1])
	}
	if m := weeksPattern.FindStringSubmatch(text); m != nil {
		if n, ok := parseNumber(m[1]); ok {
			return n * 7
		}
	}
	if weeksEnglish.MatchString(text) {
		return 7
	}
	if m := nightsPattern.FindStringSubmatch(text); m != nil {
		if n, ok := parseNumber(m[1]); ok {
			return n + 1
		}
	}
	if isWeekendTrip(text) {
		return 2
	}
	return 0
}

func isWeekendTrip(text string) bool {
	return weekendPattern.MatchString(text)
}

var cnDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseNumber reads Arabic digits or Chinese numerals up to 九十九.
func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}
	total, cur := 0, 0
	for _, r := range s {
		if r == '十' {
			if cur == 0 {
				cur = 1
			}
			total += cur * 10
			cur = 0
			continue
		}
		d, ok := cnDigits[r]
		if !ok {
			return 0, false
		}
		cur = d
	}
	n := total + cur
	return n, n > 0
}

// Preferences

type preferenceRule struct {
	tag   string
	words []string
	// latin matches the ASCII keywords on word boundaries.
	latin *regexp.Regexp
}

func newPreferenceRule(tag string, words ...string) preferenceRule {
	rule := preferenceRule{tag: tag}
	var latin []string
	for _, w := range words {
		if isASCII(w) {
			latin = append(latin, regexp.QuoteMeta(w))
			continue
		}
		rule.words = append(rule.words, w)
	}
	if len(latin) > 0 {
		rule.latin = regexp.MustCompile(`\b(?:` + strings.Join(latin, "|") + `)s?\b`)
	}
	return rule
}

func (r preferenceRule) matches(text string) bool {
	if r.latin != nil && r.latin.MatchString(text) {
		return true
	}
	return lo.SomeBy(r.words, func(w string) bool { return strings.Contains(text, w) })
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

var preferenceTable = []preferenceRule{
	newPreferenceRule("food", "美食", "小吃", "好吃", "吃货", "餐厅", "food", "eat", "foodie"),
	newPreferenceRule("nature", "自然", "风景", "山水", "海边", "海滩", "爬山", "徒步", "公园", "nature", "hiking", "beach"),
	newPreferenceRule("history", "历史", "古迹", "古城", "博物馆", "寺庙", "history", "museum"),
	newPreferenceRule("shopping", "购物", "逛街", "商场", "买买买", "shopping"),
	newPreferenceRule("family", "亲子", "孩子", "带娃", "小孩", "家庭", "family", "kids"),
	newPreferenceRule("relax", "休闲", "放松", "悠闲", "度假", "relax"),
	newPreferenceRule("culture", "文艺", "文化", "艺术", "展览", "culture", "art"),
	newPreferenceRule("photography", "拍照", "摄影", "打卡", "出片", "photo", "photography"),
}

var noPreferencePhrases = []string{
	"不需要偏好", "没有偏好", "无偏好", "没什么偏好", "没有特别偏好", "没有特别的偏好", "都可以", "随便",
	"no preference", "no preferences", "anything is fine",
}

// PreferenceTags lists the canonical preference tags.
func PreferenceTags() []string {
	return lo.Map(preferenceTable, func(r preferenceRule, _ int) string { return r.tag })
}

func parsePreferences(text string) ([]string, bool) {
	for _, phrase := range noPreferencePhrases {
		if strings.Contains(text, phrase) {
			return nil, true
		}
	}
	var tags []string
	for _, entry := range preferenceTable {
		if entry.matches(text) {
			tags = append(tags, entry.tag)
		}
	}
	return tags, false
}
