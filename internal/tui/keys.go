package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the notification view.
type KeyMap struct {
	Up            key.Binding
	Down          key.Binding
	Open          key.Binding
	Dismiss       key.Binding
	ClearAll      key.Binding
	Retry         key.Binding
	ToggleToast   key.Binding
	ToggleBrowser key.Binding
	Confirm       key.Binding
	Cancel        key.Binding
	Help          key.Binding
	Quit          key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open todo"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "dismiss"),
		),
		ClearAll: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "clear all"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retry connection"),
		),
		ToggleToast: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle toasts"),
		),
		ToggleBrowser: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "toggle desktop notifications"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "allow"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n", "deny"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the mini help bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Retry, k.Dismiss, k.ToggleBrowser, k.Help, k.Quit}
}

// FullHelp returns all bindings grouped into columns.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open},
		{k.Dismiss, k.ClearAll, k.Retry},
		{k.ToggleToast, k.ToggleBrowser},
		{k.Help, k.Quit},
	}
}
