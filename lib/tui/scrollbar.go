// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderScrollbar produces a single-column scrollbar of the given
// height for a pane showing visibleLines of totalLines starting at
// offset. When everything fits the thumb spans the whole track.
// moreAbove draws a marker in the top cell, used when older history
// exists beyond the loaded lines.
func RenderScrollbar(theme Theme, height, totalLines, visibleLines, offset int, focused, moreAbove bool) string {
	if height <= 0 {
		return ""
	}

	thumbColor := theme.BorderColor
	if focused {
		thumbColor = theme.FocusAccent
	}
	trackStyle := lipgloss.NewStyle().Foreground(theme.BorderColor)
	thumbStyle := lipgloss.NewStyle().Foreground(thumbColor)

	thumbSize, thumbOffset := height, 0
	if totalLines > visibleLines && totalLines > 0 {
		thumbSize = max(1, height*visibleLines/totalLines)
		scrollable := totalLines - visibleLines
		track := height - thumbSize
		if track > 0 {
			thumbOffset = min(offset*track/scrollable, track)
		}
	}

	lines := make([]string, height)
	for index := range lines {
		switch {
		case index == 0 && moreAbove:
			lines[index] = thumbStyle.Render("▲")
		case index >= thumbOffset && index < thumbOffset+thumbSize:
			lines[index] = thumbStyle.Render("┃")
		default:
			lines[index] = trackStyle.Render("│")
		}
	}
	return strings.Join(lines, "\n")
}
