package bot

import (
	"strings"
	"unicode"
)

// cleanName strips control, zero-width and bidi override characters so a
// nickname cannot break the bot's replies.
func cleanName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r >= 0x7f && r <= 0x9f:
			return -1
		case r >= 0x200b && r <= 0x200f, r >= 0x202a && r <= 0x202e:
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimFunc(cleaned, unicode.IsSpace)
	if cleaned == "" {
		return "用户"
	}
	return cleaned
}
