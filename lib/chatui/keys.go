// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the chat screen's key bindings. Printable keys always
// go to the input line, so every binding uses a modifier or a
// non-printing key.
type KeyMap struct {
	// Roster navigation.
	RosterUp   key.Binding
	RosterDown key.Binding
	OpenTopic  key.Binding // Open the highlighted roster entry.

	// Conversation scrolling. PageUp at the top loads older history.
	PageUp   key.Binding
	PageDown key.Binding
	End      key.Binding

	// Input.
	Submit key.Binding
	Cancel key.Binding // Close the search picker or clear the filter.

	// Search picker, active only while it is open.
	PickerUp   key.Binding
	PickerDown key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	RosterUp: key.NewBinding(
		key.WithKeys("ctrl+p", "alt+up"),
		key.WithHelp("C-p", "prev chat"),
	),
	RosterDown: key.NewBinding(
		key.WithKeys("ctrl+n", "alt+down"),
		key.WithHelp("C-n", "next chat"),
	),
	OpenTopic: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "open"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("PgUp", "older"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("PgDn", "newer"),
	),
	End: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("C-e", "latest"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "send"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "cancel"),
	),
	PickerUp: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "up"),
	),
	PickerDown: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}

// helpLine is the status bar text shown when there is no notice.
func (keys KeyMap) helpLine() string {
	bindings := []key.Binding{keys.RosterDown, keys.OpenTopic, keys.PageUp, keys.Submit, keys.Quit}
	parts := make([]string, 0, len(bindings)+1)
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	parts = append(parts, "/help commands")
	return strings.Join(parts, " · ")
}
