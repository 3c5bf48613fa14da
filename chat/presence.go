// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

// PresenceState is the online and typing state of one topic.
type PresenceState struct {
	Topic           string
	Online          bool
	Typing          bool
	TypingExpiresAt time.Time
}

// PresenceConfig holds the parameters for NewPresence.
type PresenceConfig struct {
	// Executor runs expiry callbacks; it must be the executor that
	// delivers inbound envelopes.
	Executor messaging.Executor
	Clock    clock.Clock

	// TypingExpiry is how long a typing signal lasts (default 3s).
	TypingExpiry time.Duration

	// UserID returns the local user so own typing echoes are ignored.
	// Nil ignores nothing.
	UserID func() string

	Metrics *Metrics
	Logger  *slog.Logger
}

// Presence tracks online and typing state per topic. Each topic has
// at most one outstanding typing expiry; a new typing signal moves it
// instead of adding another.
type Presence struct {
	executor messaging.Executor
	clock    clock.Clock
	expiry   time.Duration
	userID   func() string
	metrics  *Metrics
	logger   *slog.Logger

	topics    map[string]*presenceEntry
	observers messaging.Observers[PresenceState]
}

type presenceEntry struct {
	state PresenceState
	timer *clock.Timer
}

// NewPresence returns an empty tracker.
func NewPresence(config PresenceConfig) *Presence {
	if config.Executor == nil {
		config.Executor = messaging.Inline
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.TypingExpiry <= 0 {
		config.TypingExpiry = 3 * time.Second
	}
	if config.UserID == nil {
		config.UserID = func() string { return "" }
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Presence{
		executor: config.Executor,
		clock:    config.Clock,
		expiry:   config.TypingExpiry,
		userID:   config.UserID,
		metrics:  config.Metrics,
		logger:   logger,
		topics:   make(map[string]*presenceEntry),
	}
}

// OnChange observes every state change.
func (p *Presence) OnChange(handler func(PresenceState)) (cancel func()) {
	return p.observers.Observe(handler)
}

// State returns the state of topic. Unknown topics are offline.
func (p *Presence) State(topic string) PresenceState {
	if entry, ok := p.topics[topic]; ok {
		return entry.state
	}
	return PresenceState{Topic: topic}
}

// Snapshot returns a copy of every known state.
func (p *Presence) Snapshot() []PresenceState {
	states := make([]PresenceState, 0, len(p.topics))
	for _, topic := range slices.Sorted(maps.Keys(p.topics)) {
		states = append(states, p.topics[topic].state)
	}
	return states
}

// HandlePres applies on, off, and typing notifications. On the me
// topic the notification applies to the topic named by Src.
func (p *Presence) HandlePres(pres *messaging.Pres) {
	subject := pres.Subject()
	if subject == messaging.TopicMe {
		return
	}
	switch pres.What {
	case "on":
		p.SetOnline(subject, true)
	case "off":
		p.SetOnline(subject, false)
	case "typing", "kp":
		p.Typing(subject)
	}
}

// HandleInfo applies typing notes from other users.
func (p *Presence) HandleInfo(info *messaging.Info) {
	if info.What != "kp" && info.What != "typing" {
		return
	}
	if info.From != "" && info.From == p.userID() {
		return
	}
	p.Typing(info.Topic)
}

// SetOnline sets the online flag. Repeating the current value changes
// nothing. Going offline also clears typing.
func (p *Presence) SetOnline(topic string, online bool) {
	entry := p.entry(topic)
	changed := entry.state.Online != online
	entry.state.Online = online
	if !online && entry.state.Typing {
		p.stopTyping(entry)
		changed = true
	}
	if changed {
		p.observers.Notify(entry.state)
	}
}

// Typing sets typing and (re)starts its expiry.
func (p *Presence) Typing(topic string) {
	entry := p.entry(topic)
	wasTyping := entry.state.Typing
	entry.state.Typing = true
	entry.state.TypingExpiresAt = p.clock.Now().Add(p.expiry)

	if entry.timer == nil {
		entry.timer = p.clock.AfterFunc(p.expiry, func() {
			p.executor.Post(func() { p.expire(topic) })
		})
	} else {
		entry.timer.Reset(p.expiry)
	}
	if !wasTyping {
		p.observers.Notify(entry.state)
	}
}

// expire clears typing if its deadline has passed. A callback that was
// already queued when Typing moved the deadline finds it in the future
// and does nothing.
func (p *Presence) expire(topic string) {
	entry, ok := p.topics[topic]
	if !ok || !entry.state.Typing {
		return
	}
	if p.clock.Now().Before(entry.state.TypingExpiresAt) {
		return
	}
	p.stopTyping(entry)
	p.metrics.typingExpired()
	p.logger.Debug("typing expired", "topic", topic)
	p.observers.Notify(entry.state)
}

func (p *Presence) stopTyping(entry *presenceEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	entry.state.Typing = false
	entry.state.TypingExpiresAt = time.Time{}
}

// Reset forgets every topic and stops pending expiries.
func (p *Presence) Reset() {
	for _, entry := range p.topics {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	clear(p.topics)
}

func (p *Presence) entry(topic string) *presenceEntry {
	entry, ok := p.topics[topic]
	if !ok {
		entry = &presenceEntry{state: PresenceState{Topic: topic}}
		p.topics[topic] = entry
	}
	return entry
}
