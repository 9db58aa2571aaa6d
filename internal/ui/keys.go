package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send      key.Binding
	Approve   key.Binding
	Reject    key.Binding
	Save      key.Binding
	Selection key.Binding
	NewChat   key.Binding
	DocUp     key.Binding
	DocDown   key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Approve: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "add to note"),
		),
		Reject: key.NewBinding(
			key.WithKeys("n", "N"),
			key.WithHelp("n", "discard"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save note"),
		),
		Selection: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "toggle selection"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		DocUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll note"),
		),
		DocDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll note"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Save, k.Selection, k.NewChat, k.DocUp, k.DocDown, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Approve, k.Reject},
		{k.Save, k.Selection, k.NewChat},
		{k.DocUp, k.DocDown, k.Quit},
	}
}
