package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const previewLimit = 50

// Preview renders a short human-readable summary of the message for logs and
// status displays.
func (m Message) Preview() string {
	switch m.Type {
	case TypeText:
		return clipRunes(m.Content, previewLimit)
	case TypeImage:
		return "[image]"
	case TypeFile:
		if name := jsonField(m.Content, "name"); name != "" {
			return "[file] " + name
		}
		return "[file]"
	case TypeVoice:
		if d := jsonField(m.Content, "duration"); d != "" {
			return "[voice] " + d + "s"
		}
		return "[voice]"
	case TypeVideo:
		return "[video]"
	case TypeUserCard:
		if name := jsonField(m.Content, "nickName"); name != "" {
			return "[user card] " + name
		}
		return "[user card]"
	case TypeGroupCard:
		if name := jsonField(m.Content, "groupName"); name != "" {
			return "[group card] " + name
		}
		return "[group card]"
	case TypeSticker:
		return "[sticker]"
	case TypeQuote:
		return "[quote] " + clipRunes(m.Content, previewLimit)
	case TypeRecall:
		return fmt.Sprintf("[recall] message %s", m.RecalledID())
	case TypeSystem, TypeNotice:
		return "[" + strings.ToLower(m.Type.String()) + "] " + clipRunes(m.Content, previewLimit)
	default:
		return "[" + m.Type.String() + "]"
	}
}

func jsonField(content, key string) string {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return ""
	}
	value, ok := fields[key]
	if !ok || value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func clipRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
