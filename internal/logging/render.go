package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	colorProfileOnce sync.Once

	timeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	messageStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	keyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	sepStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	blockStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("245")).Padding(0, 1)
)

func shouldPrettyPrint() bool {
	term := strings.TrimSpace(os.Getenv("TERM"))
	if term == "" || term == "dumb" {
		return false
	}
	return os.Getenv("NO_COLOR") == ""
}

// FormatEventLine renders an event without ANSI styling.
func FormatEventLine(event Event) string {
	var b strings.Builder
	b.WriteString(event.Time.Format("15:04:05"))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(event.Level.String()))
	b.WriteString("] ")
	if event.Component != "" {
		b.WriteString(event.Component)
		b.WriteString(": ")
	}
	b.WriteString(event.Message)
	for _, key := range orderedFieldKeys(event.Fields) {
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(inlineValue(event.Fields[key]))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatEventANSI renders an event for a colour terminal. Structured field
// values are printed as boxed JSON below the header line.
func FormatEventANSI(event Event) string {
	colorProfileOnce.Do(func() {
		lipgloss.SetColorProfile(termenv.TrueColor)
	})
	label, badge := levelBadge(event.Level)
	parts := []string{timeStyle.Render(event.Time.Format("15:04:05.000")), " ", badge.Render(label), " "}
	if event.Component != "" {
		parts = append(parts, componentStyle.Render(event.Component), " ")
	}
	parts = append(parts, messageStyle.Render(event.Message))
	line := lipgloss.JoinHorizontal(lipgloss.Center, parts...)

	inline := make([]string, 0, len(event.Fields))
	blocks := make([]string, 0)
	for _, key := range orderedFieldKeys(event.Fields) {
		value := event.Fields[key]
		if pretty, ok := structuredJSON(value); ok {
			blocks = append(blocks, keyStyle.Render(key)+sepStyle.Render("=")+"\n"+blockStyle.Render(pretty))
			continue
		}
		inline = append(inline, keyStyle.Render(key)+sepStyle.Render("=")+valueStyle.Render(inlineValue(value)))
	}
	if len(inline) > 0 {
		line += "  " + strings.Join(inline, " ")
	}
	for _, block := range blocks {
		line += "\n  " + block
	}
	return line + "\n"
}

func levelBadge(level slog.Level) (string, lipgloss.Style) {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG", base.Foreground(lipgloss.Color("255")).Background(lipgloss.Color("240"))
	case level <= slog.LevelInfo:
		return "INFO", base.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("31"))
	case level <= slog.LevelWarn:
		return "WARN", base.Foreground(lipgloss.Color("234")).Background(lipgloss.Color("214"))
	default:
		return "ERROR", base.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160"))
	}
}

func inlineValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case error:
		return v.Error()
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	if pretty, ok := structuredJSON(value); ok {
		return compactJSON(pretty)
	}
	return fmt.Sprintf("%v", value)
}

// structuredJSON reports whether value is a container (map, slice, struct or a
// string holding a JSON object/array) and returns it indented.
func structuredJSON(value any) (string, bool) {
	switch v := value.(type) {
	case nil, error:
		return "", false
	case string:
		return decodeContainer(v)
	case []byte:
		return decodeContainer(string(v))
	case json.RawMessage:
		return decodeContainer(string(v))
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if _, isStringer := value.(fmt.Stringer); isStringer {
			return "", false
		}
		out, err := indentJSON(rv.Interface())
		return out, err == nil
	}
	return "", false
}

func decodeContainer(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return "", false
	}
	out, err := indentJSON(decoded)
	return out, err == nil
}

func indentJSON(value any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func compactJSON(pretty string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(pretty)); err != nil {
		return pretty
	}
	return buf.String()
}

// orderedFieldKeys sorts scalar fields first, then structured ones, with
// payload-like keys last.
func orderedFieldKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	rank := func(key string) int {
		if _, ok := structuredJSON(fields[key]); !ok {
			return 0
		}
		if isPayloadKey(key) {
			return 2
		}
		return 1
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func isPayloadKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "payload", "frame", "response", "body", "data":
		return true
	default:
		return false
	}
}
