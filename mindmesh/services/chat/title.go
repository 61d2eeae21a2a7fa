package chat

import "strings"

const maxTitleRunes = 50

// DeriveTitle names a conversation after its first user message.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return string(runes[:maxTitleRunes]) + "..."
}
