// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the terminal chat screen: a roster pane, the
// active conversation, and an input line, built on bubbletea.
//
// The chat components live on the client's event loop and the screen
// lives on the bubbletea program goroutine. [Bridge] connects the two:
// it observes the components on the loop and forwards copies of their
// state to the program as messages, and it implements [Actions] by
// posting user actions back onto the loop. [Model] never touches a
// chat component directly.
package chatui
