// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatcmd implements "pulse chat", the interactive chat
// screen. It restores the stored session, then hands the terminal to
// the chatui model until the user quits.
package chatcmd
