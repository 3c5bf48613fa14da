// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"log/slog"

	"github.com/pulse-chat/pulse/chat"
)

// RosterMsg carries the full conversation list after any change.
type RosterMsg struct {
	Entries []chat.RosterEntry
}

// TopicMsg carries a copy of one topic's state after any change.
type TopicMsg struct {
	Snapshot chat.TopicSnapshot

	// HasOlder reports whether a history page above the loaded
	// messages may exist.
	HasOlder bool
}

// PresenceMsg carries one topic's changed presence.
type PresenceMsg struct {
	State chat.PresenceState
}

// SearchMsg carries directory results for the latest query.
type SearchMsg struct {
	Event chat.SearchEvent
}

// SelfMsg names the logged in user.
type SelfMsg struct {
	UserID string
}

// NoticeMsg is a one-line message for the status bar.
type NoticeMsg struct {
	Text  string
	Error bool
}

// DisconnectedMsg reports that the connection to the server dropped.
// The screen keeps showing what it has but can no longer send.
type DisconnectedMsg struct {
	Err error
}

// logRecordMsg delivers a slog record to the status bar.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// noticeFadeMsg clears the status bar notice if it is still the one
// with the given serial.
type noticeFadeMsg struct {
	serial int
}
