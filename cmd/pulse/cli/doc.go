// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework and shared plumbing for the
// pulse command: the [Command] tree with typo suggestions, categorized
// errors and exit codes, the config-driven logger, interactive
// prompts, and the [Environment] every networked command runs in.
//
// An Environment owns one event loop, one messaging.Session on it,
// and the chat.Client built over that session. Command goroutines
// never touch chat state directly; they go through [Environment.Do]
// or the auth helpers, which hop onto the loop.
package cli
