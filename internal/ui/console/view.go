package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"boxim-bot/internal/bot"
)

type row struct {
	label string
	value string
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	width := max(m.width, 40)
	sections := []string{
		m.headerView(),
		panelStyle.Width(width - panelStyle.GetHorizontalBorderSize()).Render(renderRows(statusRows(m.snapshot, m.hasSnapshot, m.now()))),
		panelStyle.Width(width - panelStyle.GetHorizontalBorderSize()).Render(m.logs.View()),
	}
	if m.lastErr != nil {
		sections = append(sections, errorStyle.Render("Last run: "+m.lastErr.Error()))
	}
	sections = append(sections, helpStyle.Render(m.help.View(m.keys)))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *model) headerView() string {
	title := titleStyle.Render("BoxIM bot")
	if m.buildVersion != "" {
		title += labelStyle.Render(" " + m.buildVersion)
	}
	status := m.kind.style().Render(m.status)
	if m.kind == kindPending {
		status = m.spinner.View() + " " + status
	}
	return title + "  " + status
}

// statusRows lays out the snapshot as label/value pairs.
func statusRows(st bot.Status, ok bool, now time.Time) []row {
	if !ok {
		return []row{{"State", "waiting for first run"}}
	}
	account := "not logged in"
	if st.SubjectID != 0 {
		account = "user " + strconv.FormatInt(st.SubjectID, 10)
	}
	rows := []row{
		{"Account", account},
		{"Connection", st.State},
		{"Uptime", formatDuration(st.Uptime(now))},
		{"Token expires", formatInstant(st.AccessExpiry, now)},
		{"Messages today", strconv.FormatInt(st.MessagesToday, 10)},
		{"Last message", formatAgo(st.LastMessageAt, now)},
		{"Reconnects", fmt.Sprintf("%d (attempt %d)", st.Reconnects, st.AttemptCount)},
		{"Routed", fmt.Sprintf("%d private, %d group, %d system, %d dropped",
			st.Dispatch.Private, st.Dispatch.Group, st.Dispatch.System, st.Dispatch.Unrecognized+st.Dispatch.Malformed)},
		{"Sent", fmt.Sprintf("%d ok, %d failed", st.MessagesSent, st.SendFailures)},
	}
	if len(st.MutedGroups) > 0 {
		ids := make([]string, len(st.MutedGroups))
		for i, id := range st.MutedGroups {
			ids[i] = strconv.FormatInt(id, 10)
		}
		rows = append(rows, row{"Muted groups", strings.Join(ids, ", ")})
	}
	if st.LastError != "" {
		rows = append(rows, row{"Last error", st.LastError})
	}
	return rows
}

func renderRows(rows []row) string {
	labelWidth := 0
	for _, r := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(r.label))
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = labelStyle.Width(labelWidth+2).Render(r.label) + valueStyle.Render(r.value)
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func formatInstant(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if t.Before(now) {
		return t.Format(time.TimeOnly) + " (expired)"
	}
	return t.Format(time.TimeOnly) + " (in " + t.Sub(now).Round(time.Second).String() + ")"
}

func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return now.Sub(t).Round(time.Second).String() + " ago"
}
