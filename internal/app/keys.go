package app

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/tgoai/tgo-sessionwatch/internal/views/help"
)

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Reconnect key.Binding
	Refresh   key.Binding
	Toggle    key.Binding
	Resync    key.Binding
	Escape    key.Binding
	Quit      key.Binding
	Debug     key.Binding
	Help      key.Binding
	ScrollUp  key.Binding
	ScrollDn  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "previous session"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next session"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect session"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "refresh status and screenshot now"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "enable or disable session"),
		),
		Resync: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "resync session list"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "debug log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k", "scroll up"),
		),
		ScrollDn: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j", "scroll down"),
		),
	}
}

// HelpBindings lists the bindings shown in the help overlay.
func (k KeyMap) HelpBindings() []help.Binding {
	var out []help.Binding
	for _, b := range []key.Binding{k.Up, k.Down, k.Reconnect, k.Refresh, k.Toggle, k.Resync, k.Debug, k.Help, k.Quit} {
		h := b.Help()
		out = append(out, help.Binding{Keys: h.Key, Desc: h.Desc})
	}
	return out
}
