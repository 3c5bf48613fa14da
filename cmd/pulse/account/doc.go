// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package account implements the pulse commands that create, store,
// and discard a session: login, register, logout, and whoami.
//
// Apart from whoami, every command connects, runs one auth exchange
// through chat.Auth, and exits. A successful exchange leaves the session token in the
// sealed credential store, where "pulse chat" picks it up.
package account
