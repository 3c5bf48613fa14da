// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package fuzzy

import (
	"slices"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// Result is one match. A zero Score means no match.
type Result struct {
	Score int

	// Positions are the rune offsets in the text that matched, in
	// ascending order.
	Positions []int
}

var initOnce sync.Once

// NewSlab returns scratch space Match can reuse across calls. A slab
// must not be shared between goroutines.
func NewSlab() *util.Slab {
	return util.MakeSlab(100*1024, 2048)
}

// Match scores text against pattern, ignoring case. Pattern must
// already be lowercase (see [Pattern]). slab may be nil.
func Match(text string, pattern []rune, slab *util.Slab) Result {
	if len(pattern) == 0 {
		return Result{}
	}
	initOnce.Do(func() { algo.Init("default") })

	chars := util.ToChars([]byte(text))
	result, positions := algo.FuzzyMatchV2(false, false, true, &chars, pattern, true, slab)
	if result.Start < 0 || result.Score <= 0 {
		return Result{}
	}
	match := Result{Score: result.Score}
	if positions != nil {
		match.Positions = slices.Clone(*positions)
		slices.Sort(match.Positions)
	}
	return match
}

// Pattern prepares a typed query for Match: trimmed and lowercased.
func Pattern(query string) []rune {
	return []rune(strings.ToLower(strings.TrimSpace(query)))
}

// Rank returns the items whose key matches query, best score first.
// Ties keep their input order. An empty query returns a copy of items
// unchanged.
func Rank[T any](items []T, query string, key func(T) string) []T {
	pattern := Pattern(query)
	if len(pattern) == 0 {
		return slices.Clone(items)
	}

	type scored struct {
		item  T
		score int
	}
	slab := NewSlab()
	var matches []scored
	for _, item := range items {
		if result := Match(key(item), pattern, slab); result.Score > 0 {
			matches = append(matches, scored{item: item, score: result.Score})
		}
	}
	slices.SortStableFunc(matches, func(a, b scored) int { return b.score - a.score })

	ranked := make([]T, len(matches))
	for index, match := range matches {
		ranked[index] = match.item
	}
	return ranked
}
