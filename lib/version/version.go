// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// Stamped by the release build:
//
//	go build -ldflags "-X github.com/pulse-chat/pulse/lib/version.Version=0.3.0"
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	// GitDirty is "true" when the tree had uncommitted changes.
	GitDirty  = "false"
	BuildTime = "unknown"
)

// Info is the one-line form: "0.3.0 (abc1234-dirty, 2026-05-01T10:00:00Z)".
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return Version + " (" + commit + ", " + BuildTime + ")"
}

// Full appends the toolchain and platform to [Info].
func Full() string {
	return fmt.Sprintf("%s\n  go:       %s\n  platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the handshake user agent: "Pulse/<version> (<os>)".
func UserAgent() string {
	return fmt.Sprintf("Pulse/%s (%s)", Version, runtime.GOOS)
}
