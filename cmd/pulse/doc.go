// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Pulse is a terminal chat client. It provides subcommands for
// account management (login, register, logout, whoami) and the
// interactive chat screen (chat).
//
// Configuration comes from the file named by --config or
// PULSE_CONFIG, with PULSE_* environment variables layered on top.
// Exit codes: 2 for bad input, 3 when the server refuses the
// credentials, 4 when it cannot be reached, 1 for anything else.
package main
