// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the synchronization layer between a messaging.Session
// and a user interface.
//
// [Auth] sequences login, one-time-code verification, session restore,
// and account creation. [Topic] keeps one conversation's messages
// ordered by server sequence number, merging history pages with the
// live stream, tracking delivery and read receipts, and correlating
// sends with their echoes. [Presence] tracks online and typing state
// with typing auto-expiry. [Directory] runs debounced user search where
// a newer query supersedes any older one. [Roster] mirrors the list of
// subscribed topics from the me topic.
//
// [Client] builds all of these around one Session and routes inbound
// envelopes to them. Every component is single-threaded: its methods
// and its observers run on the Session's executor, and snapshot
// getters hand out copies. UI code outside the loop reaches in with
// messaging.Loop.Do.
package chat
