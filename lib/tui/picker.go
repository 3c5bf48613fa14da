// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// PickerOption is one selectable row.
type PickerOption struct {
	Label string
	Value string
}

// Picker is a floating list anchored at a screen position, used for
// search results. The owning model routes up, down, enter, and
// escape to it while it is open.
type Picker struct {
	Title   string
	Options []PickerOption
	Cursor  int
	AnchorX int
	AnchorY int

	// MaxWidth caps the rendered width. Zero means no cap.
	MaxWidth int
}

// MoveUp moves the cursor up by one, wrapping to the bottom.
func (picker *Picker) MoveUp() {
	if len(picker.Options) == 0 {
		return
	}
	picker.Cursor--
	if picker.Cursor < 0 {
		picker.Cursor = len(picker.Options) - 1
	}
}

// MoveDown moves the cursor down by one, wrapping to the top.
func (picker *Picker) MoveDown() {
	if len(picker.Options) == 0 {
		return
	}
	picker.Cursor++
	if picker.Cursor >= len(picker.Options) {
		picker.Cursor = 0
	}
}

// Selected returns the highlighted option. ok is false when the
// picker is empty.
func (picker *Picker) Selected() (option PickerOption, ok bool) {
	if picker.Cursor < 0 || picker.Cursor >= len(picker.Options) {
		return PickerOption{}, false
	}
	return picker.Options[picker.Cursor], true
}

// Width returns the rendered width in columns: a marker column, a
// space, the widest label or title, and one column of padding on each
// side.
func (picker *Picker) Width() int {
	widest := ansi.StringWidth(picker.Title)
	for _, option := range picker.Options {
		widest = max(widest, ansi.StringWidth(option.Label))
	}
	width := 2 + widest + 2
	if picker.MaxWidth > 0 && width > picker.MaxWidth {
		width = picker.MaxWidth
	}
	return width
}

// Render produces the picker lines for SpliceOverlay. Every line has
// the same visible width.
func (picker *Picker) Render(theme Theme) []string {
	width := picker.Width()
	inner := width - 2

	background := lipgloss.NewStyle().
		Foreground(theme.PopupForeground).
		Background(theme.PopupBackground)
	selected := lipgloss.NewStyle().
		Foreground(theme.SelectedForeground).
		Background(theme.SelectedBackground)
	title := background.Bold(true)

	var lines []string
	if picker.Title != "" {
		lines = append(lines, title.Render(" "+Fit(picker.Title, inner)+" "))
	}
	if len(picker.Options) == 0 {
		lines = append(lines, background.Faint(true).Render(" "+Fit("no matches", inner)+" "))
		return lines
	}
	for index, option := range picker.Options {
		marker, style := "  ", background
		if index == picker.Cursor {
			marker, style = "> ", selected
		}
		lines = append(lines, style.Render(" "+Fit(marker+option.Label, inner)+" "))
	}
	return lines
}
