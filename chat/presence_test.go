// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

func newTestPresence(t *testing.T) (*Presence, *clock.FakeClock, *Metrics, *eventLog[PresenceState]) {
	t.Helper()
	fake := newFakeClock()
	metrics := NewMetrics(nil)
	presence := NewPresence(PresenceConfig{
		Executor: messaging.Inline,
		Clock:    fake,
		UserID:   func() string { return self },
		Metrics:  metrics,
	})
	events := &eventLog[PresenceState]{}
	presence.OnChange(events.record)
	return presence, fake, metrics, events
}

func TestTypingExpiresOnce(t *testing.T) {
	presence, fake, metrics, events := newTestPresence(t)

	presence.HandleInfo(&messaging.Info{Topic: "usrBob", From: "usrBob", What: "kp"})
	if !presence.State("usrBob").Typing {
		t.Fatal("typing not set")
	}

	fake.Advance(2000 * time.Millisecond)
	presence.HandleInfo(&messaging.Info{Topic: "usrBob", From: "usrBob", What: "kp"})
	if want := epoch.Add(5000 * time.Millisecond); !presence.State("usrBob").TypingExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", presence.State("usrBob").TypingExpiresAt, want)
	}
	if fake.Pending() != 1 {
		t.Errorf("%d pending timers, want 1", fake.Pending())
	}

	fake.Advance(2999 * time.Millisecond)
	if !presence.State("usrBob").Typing {
		t.Fatal("typing cleared before t=5000ms")
	}
	fake.Advance(time.Millisecond)
	if presence.State("usrBob").Typing {
		t.Fatal("typing still set at t=5000ms")
	}
	fake.Advance(10 * time.Second)

	var cleared int
	for _, state := range events.events {
		if !state.Typing {
			cleared++
		}
	}
	if cleared != 1 {
		t.Errorf("typing cleared %d times, want 1", cleared)
	}
	if len(events.events) != 2 {
		t.Errorf("%d changes, want set and clear only", len(events.events))
	}
	if got := testutil.ToFloat64(metrics.TypingExpiries); got != 1 {
		t.Errorf("typing expiries = %v, want 1", got)
	}
}

func TestTypingPerTopic(t *testing.T) {
	presence, fake, _, _ := newTestPresence(t)
	presence.Typing("grp1")
	fake.Advance(time.Second)
	presence.Typing("grp2")
	fake.Advance(2 * time.Second)
	if presence.State("grp1").Typing || !presence.State("grp2").Typing {
		t.Errorf("grp1 %+v grp2 %+v", presence.State("grp1"), presence.State("grp2"))
	}
}

func TestOwnTypingIgnored(t *testing.T) {
	presence, fake, _, events := newTestPresence(t)
	presence.HandleInfo(&messaging.Info{Topic: "grp1", From: self, What: "kp"})
	if len(events.events) != 0 || fake.Pending() != 0 {
		t.Errorf("own typing note tracked: %+v", events.events)
	}
}

func TestOnlineIdempotent(t *testing.T) {
	presence, _, _, events := newTestPresence(t)
	presence.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrBob", What: "on"})
	presence.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrBob", What: "on"})
	if !presence.State("usrBob").Online {
		t.Fatal("not online")
	}
	if len(events.events) != 1 {
		t.Errorf("%d changes for repeated on, want 1", len(events.events))
	}
	presence.HandlePres(&messaging.Pres{Topic: "grp1", What: "on"})
	if !presence.State("grp1").Online {
		t.Error("topic pres not applied")
	}
}

func TestOfflineClearsTyping(t *testing.T) {
	presence, fake, _, _ := newTestPresence(t)
	presence.SetOnline("usrBob", true)
	presence.Typing("usrBob")
	presence.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrBob", What: "off"})
	state := presence.State("usrBob")
	if state.Online || state.Typing {
		t.Errorf("state = %+v", state)
	}
	if fake.Pending() != 0 {
		t.Errorf("%d timers left", fake.Pending())
	}
}

func TestPresenceReset(t *testing.T) {
	presence, fake, _, _ := newTestPresence(t)
	presence.Typing("grp1")
	presence.Typing("grp2")
	presence.Reset()
	if fake.Pending() != 0 {
		t.Errorf("%d timers after Reset", fake.Pending())
	}
	if len(presence.Snapshot()) != 0 {
		t.Errorf("snapshot after Reset: %+v", presence.Snapshot())
	}
}
