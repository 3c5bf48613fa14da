// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuzzy ranks short strings against a typed query with fzf's
// matcher, so "alcp" finds "Alice Cooper". The chat roster filter and
// anything else that narrows a list as the user types go through it.
package fuzzy
