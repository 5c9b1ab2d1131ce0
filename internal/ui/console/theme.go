package console

import (
	"github.com/charmbracelet/lipgloss"

	"boxim-bot/internal/runstatus"
)

var (
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	statusOK      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusPending = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	statusIdle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	statusFailed  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type statusKind int

const (
	kindIdle statusKind = iota
	kindPending
	kindConnected
	kindFailed
)

func classify(status string) statusKind {
	switch runstatus.Key(status) {
	case runstatus.KeyConnected:
		return kindConnected
	case runstatus.KeyLoggingIn, runstatus.KeyAuthenticated, runstatus.KeyConnecting,
		runstatus.KeyReconnecting, runstatus.KeyReLoggingIn:
		return kindPending
	case runstatus.KeyForcedOffline, runstatus.KeyAuthFailed:
		return kindFailed
	default:
		return kindIdle
	}
}

func (k statusKind) style() lipgloss.Style {
	switch k {
	case kindConnected:
		return statusOK
	case kindPending:
		return statusPending
	case kindFailed:
		return statusFailed
	default:
		return statusIdle
	}
}
