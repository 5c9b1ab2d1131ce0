package logging

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const clipLimit = 240

// FormatPayload normalizes an HTTP body or WebSocket frame for log output.
// JSON is re-encoded without HTML escaping; anything else is clipped.
func FormatPayload(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "<empty>"
	}
	var quoted string
	if err := json.Unmarshal([]byte(trimmed), &quoted); err == nil {
		trimmed = strings.TrimSpace(quoted)
	}
	if pretty, ok := decodeContainer(trimmed); ok {
		return compactJSON(pretty)
	}
	return Truncate(trimmed)
}

// Truncate flattens value to one line and clips it to a fixed rune budget.
func Truncate(value string) string {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value)
	if value == "" {
		return "<empty>"
	}
	if utf8.RuneCountInString(value) <= clipLimit {
		return value
	}
	runes := []rune(value)
	return string(runes[:clipLimit]) + "..."
}
