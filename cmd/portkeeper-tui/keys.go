package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Refresh  key.Binding
	Stop     key.Binding
	Start    key.Binding
	Assign   key.Binding
	Unassign key.Binding
	Ignore   key.Binding
	Forget   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Stop:     key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "stop")),
		Start:    key.NewBinding(key.WithKeys("s", "enter"), key.WithHelp("s", "start")),
		Assign:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "assign group")),
		Unassign: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "ungroup")),
		Ignore:   key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "ignore process")),
		Forget:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "forget")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Stop, k.Start, k.Assign, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Refresh},
		{k.Stop, k.Start, k.Forget},
		{k.Assign, k.Unassign, k.Ignore},
		{k.Help, k.Quit},
	}
}
