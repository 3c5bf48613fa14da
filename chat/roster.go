// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/lib/fuzzy"
	"github.com/pulse-chat/pulse/messaging"
)

// RosterEntry is one conversation in the list.
type RosterEntry struct {
	Topic        string
	DisplayName  string
	Online       bool
	MaxSeq       int
	ReadSeq      int
	Unread       int
	LastActivity time.Time
}

// RosterEventKind discriminates RosterEvent.
type RosterEventKind int

const (
	// RosterReplaced: a subscription list replaced the whole roster.
	RosterReplaced RosterEventKind = iota + 1

	// RosterUpdated: one entry was patched.
	RosterUpdated

	// RosterRemoved: one entry was deleted.
	RosterRemoved

	// RosterFailed: subscribing to the me topic failed.
	RosterFailed
)

// RosterEvent is emitted by a Roster. Entries is set for
// RosterReplaced, Entry for RosterUpdated and RosterRemoved.
type RosterEvent struct {
	Kind    RosterEventKind
	Entries []RosterEntry
	Entry   RosterEntry
	Err     error
}

// RosterConfig holds the parameters for NewRoster.
type RosterConfig struct {
	Transport Transport
	Gate      Gate
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Roster mirrors the subscription list of the me topic. A subscription
// list replaces the snapshot wholesale; presence notifications patch
// single entries.
type Roster struct {
	transport Transport
	gate      Gate
	clock     clock.Clock
	logger    *slog.Logger

	subscribed  bool
	subscribing bool

	// entries is ordered by last activity, newest first.
	entries []RosterEntry

	observers messaging.Observers[RosterEvent]
}

// NewRoster returns an empty Roster.
func NewRoster(config RosterConfig) (*Roster, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("chat: roster: transport is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Roster{
		transport: config.Transport,
		gate:      config.Gate,
		clock:     config.Clock,
		logger:    logger.With("topic", messaging.TopicMe),
	}, nil
}

// OnEvent observes roster changes.
func (r *Roster) OnEvent(handler func(RosterEvent)) (cancel func()) {
	return r.observers.Observe(handler)
}

// Subscribe joins the me topic and requests its subscription list.
func (r *Roster) Subscribe() error {
	if r.gate != nil && !r.gate.Authenticated() {
		return ErrNotAuthenticated
	}
	if r.subscribed || r.subscribing {
		return nil
	}
	_, err := r.transport.Request(&messaging.ClientMessage{Sub: &messaging.Sub{
		Topic: messaging.TopicMe,
		Get:   &messaging.GetQuery{What: "desc sub"},
	}}, func(ctrl *messaging.Ctrl, err error) {
		r.subscribing = false
		if err == nil && !ctrl.Success() && ctrl.Code != 304 {
			err = messaging.ReplyErrorFrom(ctrl)
		}
		if err != nil {
			r.logger.Warn("roster subscribe failed", "error", err)
			r.observers.Notify(RosterEvent{Kind: RosterFailed, Err: err})
			return
		}
		r.subscribed = true
	})
	if err != nil {
		return fmt.Errorf("chat: subscribing to roster: %w", err)
	}
	r.subscribing = true
	return nil
}

// Entries returns a copy of the roster, newest activity first.
func (r *Roster) Entries() []RosterEntry { return slices.Clone(r.entries) }

// Entry returns the entry for topic.
func (r *Roster) Entry(topic string) (RosterEntry, bool) {
	if index := r.index(topic); index >= 0 {
		return r.entries[index], true
	}
	return RosterEntry{}, false
}

// Filter returns the entries whose display name fuzzy-matches query,
// ignoring case, best match first. Equal scores keep roster order. An
// empty query returns every entry.
func (r *Roster) Filter(query string) []RosterEntry {
	return FilterEntries(r.entries, query)
}

// FilterEntries is Filter over a copy the caller already holds.
func FilterEntries(entries []RosterEntry, query string) []RosterEntry {
	return fuzzy.Rank(entries, query, func(entry RosterEntry) string { return entry.DisplayName })
}

// HandleMeta replaces the roster from a me-topic subscription list.
// A meta without one leaves the roster alone.
func (r *Roster) HandleMeta(meta *messaging.Meta) {
	if meta.Topic != messaging.TopicMe || meta.Sub == nil {
		return
	}
	entries := make([]RosterEntry, 0, len(meta.Sub))
	for _, sub := range meta.Sub {
		if sub.Topic == "" {
			continue
		}
		entries = append(entries, RosterEntry{
			Topic:        sub.Topic,
			DisplayName:  sub.Public.DisplayName(sub.Topic),
			Online:       sub.Online,
			MaxSeq:       sub.Seq,
			ReadSeq:      sub.Read,
			Unread:       max(sub.Seq-sub.Read, 0),
			LastActivity: sub.Touched,
		})
	}
	sortEntries(entries)
	r.entries = entries
	r.logger.Info("roster replaced", "entries", len(entries))
	r.observers.Notify(RosterEvent{Kind: RosterReplaced, Entries: r.Entries()})
}

// HandlePres patches the entry a me-topic notification is about.
// Notifications for topics not in the roster are ignored.
func (r *Roster) HandlePres(pres *messaging.Pres) {
	if pres.Topic != messaging.TopicMe || pres.Src == "" {
		return
	}
	index := r.index(pres.Src)
	if index < 0 {
		r.logger.Debug("presence for unknown roster entry", "src", pres.Src, "what", pres.What)
		return
	}
	entry := &r.entries[index]

	switch pres.What {
	case "on", "off":
		online := pres.What == "on"
		if entry.Online == online {
			return
		}
		entry.Online = online
	case "msg":
		if pres.Seq <= entry.MaxSeq {
			return
		}
		entry.MaxSeq = pres.Seq
		entry.Unread = max(entry.MaxSeq-entry.ReadSeq, 0)
		entry.LastActivity = r.clock.Now()
	case "read":
		if !r.advanceRead(entry, pres.Seq) {
			return
		}
	case "gone":
		removed := *entry
		r.entries = slices.Delete(r.entries, index, index+1)
		r.observers.Notify(RosterEvent{Kind: RosterRemoved, Entry: removed})
		return
	default:
		return
	}
	r.changed(pres.Src)
}

// UpdateRead applies a local read position.
func (r *Roster) UpdateRead(topic string, seq int) {
	index := r.index(topic)
	if index < 0 {
		return
	}
	if r.advanceRead(&r.entries[index], seq) {
		r.changed(topic)
	}
}

func (r *Roster) advanceRead(entry *RosterEntry, seq int) bool {
	seq = min(seq, entry.MaxSeq)
	if seq <= entry.ReadSeq {
		return false
	}
	entry.ReadSeq = seq
	entry.Unread = max(entry.MaxSeq-entry.ReadSeq, 0)
	return true
}

// changed re-sorts and reports the entry for topic.
func (r *Roster) changed(topic string) {
	sortEntries(r.entries)
	if index := r.index(topic); index >= 0 {
		r.observers.Notify(RosterEvent{Kind: RosterUpdated, Entry: r.entries[index]})
	}
}

// Reset empties the roster and forgets the me subscription.
func (r *Roster) Reset() {
	r.subscribed = false
	r.subscribing = false
	r.entries = nil
}

// connectionLost forgets the subscription but keeps the last snapshot
// on screen.
func (r *Roster) connectionLost() {
	r.subscribed = false
	r.subscribing = false
}

func (r *Roster) index(topic string) int {
	return slices.IndexFunc(r.entries, func(entry RosterEntry) bool { return entry.Topic == topic })
}

func sortEntries(entries []RosterEntry) {
	slices.SortStableFunc(entries, func(a, b RosterEntry) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
}
