// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of pulse is running.
//
// Release builds stamp [Version], [GitCommit], [GitDirty] and
// [BuildTime] with -ldflags -X. Unstamped builds (go run, tests)
// report a dev version with an unknown commit.
//
// "pulse version" prints [Full]. [UserAgent] is what the client
// sends as "ua" in its {hi} handshake, so server operators can tell
// client releases apart.
package version
