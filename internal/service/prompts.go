package service

import "github.com/xiaot623/gogo/tripagent/internal/domain"

const (
	chatPrompt = "你是一个友好的旅行助手。用简洁的中文回答用户。" +
		"如果用户想出行，引导对方说出目的地、出发日期和天数。"

	infoPrompt = "你是一个旅行助手，正在回答用户关于目的地、天气、交通或景点的问题。" +
		"回答要准确简洁；不确定的信息请说明需要以官方渠道为准。"

	suggestionPrompt = "根据下面的行程，用两到三句中文给出整体出行建议，" +
		"包括节奏安排和注意事项。不要重复列出每天的行程。"
)

const (
	retryReply   = "抱歉，暂时查不到目的地的酒店、景点和天气信息，这次行程没有生成。请稍后发送“重新规划”再试一次。"
	apologyReply = "抱歉，生成行程时出了点问题，请稍后再试。"
)

func systemPrompt(strategy domain.Strategy) string {
	if strategy == domain.StrategyInfoQuery {
		return infoPrompt
	}
	return chatPrompt
}

// fallbackReply answers when the model is unavailable.
func fallbackReply(strategy domain.Strategy) string {
	if strategy == domain.StrategyInfoQuery {
		return "抱歉，暂时无法回答这个问题。你可以换个问法，或者告诉我想去哪里旅行，我来帮你规划。"
	}
	return "你好！我是你的旅行助手，可以帮你规划行程，比如告诉我“1月20日去厦门玩两天”。"
}
