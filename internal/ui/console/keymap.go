package console

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit    key.Binding
	Restart key.Binding
	Follow  key.Binding
	Debug   key.Binding
	Up      key.Binding
	Down    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		Follow: key.NewBinding(
			key.WithKeys("f", "end"),
			key.WithHelp("f", "follow logs"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "debug logs"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k", "pgup"),
			key.WithHelp("↑/pgup", "scroll"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j", "pgdown"),
			key.WithHelp("↓/pgdn", "scroll"),
		),
	}
}

func (m keyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Quit, m.Restart, m.Follow, m.Debug, m.Up}
}

func (m keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.Up, m.Down, m.Follow},
		{m.Restart, m.Debug, m.Quit},
	}
}
