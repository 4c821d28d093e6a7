package telegram

import "strings"

// MarkdownV2 保留字符，官方文档：https://core.telegram.org/bots/api#markdownv2-style
const reservedMarkdownV2 = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 对动态文本逐字符转义。反斜杠本身先于其他保留字符处理，
// 单次遍历时每个字符只会被前缀一次，所以结果与“先转义反斜杠再转义其余字符”一致。
// 不是幂等的：EscapeMarkdownV2(EscapeMarkdownV2(x)) 会再次转义插入的反斜杠。
func EscapeMarkdownV2(text string) string {
	if !strings.ContainsAny(text, reservedMarkdownV2+`\`) {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if r == '\\' || strings.ContainsRune(reservedMarkdownV2, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
