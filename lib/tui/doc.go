// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the terminal building blocks the chat screen is
// drawn with: the color [Theme] and delivery marks, the message pane
// scrollbar, and the floating [Picker] spliced over the screen with
// [SpliceOverlay]. All width arithmetic is ANSI-aware.
package tui
