package console

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"boxim-bot/internal/bot"
	"boxim-bot/internal/config"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/runstatus"
	"boxim-bot/internal/runtime"
)

const (
	logLineLimit    = 2000
	refreshInterval = time.Second
	minLogHeight    = 3
	// Rows taken by the title, status panel and help line.
	chromeHeight = 15
)

type logMsg string
type statusMsg string
type tickMsg struct{}

type startResultMsg struct {
	err error
}

type runDoneMsg struct {
	err error
}

type runner interface {
	Start(opts config.Options, logger *logging.Logger, hooks runtime.StartHooks) error
	Stop()
	IsRunning() bool
	Status() (bot.Status, bool)
}

type model struct {
	buildVersion string
	opts         config.Options
	logger       *logging.Logger
	runner       runner
	send         func(tea.Msg)
	now          func() time.Time

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	logs    viewport.Model

	width    int
	height   int
	logLines []string
	follow   bool
	debug    bool

	status      string
	kind        statusKind
	snapshot    bot.Status
	hasSnapshot bool
	running     bool
	lastErr     error
	quitting    bool
}

func newModel(buildVersion string, opts config.Options, logger *logging.Logger, r runner) *model {
	if logger == nil {
		panic("console.newModel: logger must not be nil")
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = statusPending
	return &model{
		buildVersion: buildVersion,
		opts:         opts,
		logger:       logger,
		runner:       r,
		send:         func(tea.Msg) {},
		now:          time.Now,
		keys:         newKeyMap(),
		help:         help.New(),
		spinner:      spin,
		logs:         viewport.New(80, minLogHeight),
		follow:       true,
		debug:        opts.Debug,
		status:       "Idle",
		kind:         kindIdle,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd(), m.startCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *model) startCmd() tea.Cmd {
	m.lastErr = nil
	m.status = runstatus.LoggingIn
	m.kind = kindPending
	opts := m.opts
	return func() tea.Msg {
		err := m.runner.Start(opts, m.logger, runtime.StartHooks{
			OnStatus: func(status string) { m.send(statusMsg(status)) },
			OnExit:   func(err error) { m.send(runDoneMsg{err: err}) },
		})
		return startResultMsg{err: err}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logs.Width = max(msg.Width-panelStyle.GetHorizontalFrameSize(), 1)
		m.logs.Height = max(msg.Height-chromeHeight, minLogHeight)
		m.help.Width = msg.Width
		m.refreshLogView()
		return m, nil
	case logMsg:
		m.logLines = appendLines(m.logLines, string(msg), logLineLimit)
		m.refreshLogView()
		return m, nil
	case statusMsg:
		m.status = strings.TrimSpace(string(msg))
		m.kind = classify(m.status)
		return m, nil
	case startResultMsg:
		if msg.err != nil {
			m.running = false
			m.lastErr = msg.err
			m.status = "Not started"
			m.kind = kindFailed
			return m, nil
		}
		m.running = true
		return m, nil
	case runDoneMsg:
		m.running = false
		m.lastErr = msg.err
		if msg.err != nil && m.kind != kindFailed {
			m.kind = kindFailed
		}
		return m, nil
	case tickMsg:
		m.snapshot, m.hasSnapshot = m.runner.Status()
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.runner.Stop()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Restart):
		if m.running || m.runner.IsRunning() {
			return m, nil
		}
		return m, m.startCmd()
	case key.Matches(msg, m.keys.Follow):
		m.follow = true
		m.logs.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Debug):
		m.debug = !m.debug
		m.logger.SetDebugEnabled(m.debug)
		m.logger.Info("debug logging toggled", logging.Field("enabled", m.debug))
		return m, nil
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		m.follow = m.logs.AtBottom()
		return m, cmd
	}
	return m, nil
}

func (m *model) refreshLogView() {
	width := m.logs.Width
	lines := make([]string, len(m.logLines))
	for i, line := range m.logLines {
		lines[i] = ansi.Truncate(line, width, "…")
	}
	m.logs.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.logs.GotoBottom()
	}
}

// appendLines adds the lines of next to current, keeping the newest limit.
func appendLines(current []string, next string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	normalized := strings.ReplaceAll(next, "\r\n", "\n")
	normalized = strings.TrimRight(normalized, "\n")
	current = append(current, strings.Split(normalized, "\n")...)
	if len(current) > limit {
		current = append([]string(nil), current[len(current)-limit:]...)
	}
	return current
}
