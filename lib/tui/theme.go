// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pulse-chat/pulse/chat"
)

// Theme defines the color palette for the chat screen. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected roster row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Message authors.
	OwnName   lipgloss.Color
	OtherName lipgloss.Color

	// Delivery marks on outgoing messages.
	StatusSent      lipgloss.Color
	StatusDelivered lipgloss.Color
	StatusRead      lipgloss.Color

	// Presence and activity.
	Online  lipgloss.Color
	Typing  lipgloss.Color
	Unread  lipgloss.Color
	Pending lipgloss.Color
	Error   lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	FocusAccent      lipgloss.Color
	HelpText         lipgloss.Color

	// Floating pickers.
	PopupForeground lipgloss.Color
	PopupBackground lipgloss.Color
}

// StatusColor returns the color of a delivery mark.
func (theme Theme) StatusColor(status chat.Status) lipgloss.Color {
	switch status {
	case chat.StatusRead:
		return theme.StatusRead
	case chat.StatusDelivered:
		return theme.StatusDelivered
	default:
		return theme.StatusSent
	}
}

// StatusMark returns the glyph drawn after an outgoing message.
func StatusMark(status chat.Status) string {
	switch status {
	case chat.StatusRead, chat.StatusDelivered:
		return "✓✓"
	default:
		return "✓"
	}
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	OwnName:   lipgloss.Color("75"),  // blue
	OtherName: lipgloss.Color("114"), // green

	StatusSent:      lipgloss.Color("245"), // gray
	StatusDelivered: lipgloss.Color("250"), // light gray
	StatusRead:      lipgloss.Color("75"),  // blue, matches OwnName

	Online:  lipgloss.Color("114"),
	Typing:  lipgloss.Color("220"), // amber
	Unread:  lipgloss.Color("208"), // orange
	Pending: lipgloss.Color("241"),
	Error:   lipgloss.Color("196"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	FocusAccent:      lipgloss.Color("220"),
	HelpText:         lipgloss.Color("241"),

	PopupForeground: lipgloss.Color("252"),
	PopupBackground: lipgloss.Color("237"),
}
