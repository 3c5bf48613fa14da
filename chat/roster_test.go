// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

func newTestRoster(t *testing.T) (*Roster, *fakeSession, *clock.FakeClock, *eventLog[RosterEvent]) {
	t.Helper()
	session := newFakeSession(t)
	fake := newFakeClock()
	roster, err := NewRoster(RosterConfig{Transport: session, Gate: allowGate(true), Clock: fake})
	if err != nil {
		t.Fatalf("NewRoster: %v", err)
	}
	events := &eventLog[RosterEvent]{}
	roster.OnEvent(events.record)
	return roster, session, fake, events
}

func rosterMeta() *messaging.Meta {
	return &messaging.Meta{Topic: messaging.TopicMe, Sub: []messaging.TopicSub{
		{Topic: "usrBob", Public: &messaging.Public{FullName: "Bob Stone"}, Seq: 10, Read: 7, Touched: epoch.Add(-time.Hour)},
		{Topic: "grpClub", Public: &messaging.Public{FullName: "Book Club"}, Seq: 4, Read: 4, Online: true, Touched: epoch},
		{Topic: "usrCarol", Seq: 2, Read: 0, Touched: epoch.Add(-2 * time.Hour)},
	}}
}

func TestRosterSubscribe(t *testing.T) {
	roster, session, _, _ := newTestRoster(t)
	if err := roster.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub := session.last("sub")
	if sub.Message.Sub.Topic != messaging.TopicMe || sub.Message.Sub.Get.What != "desc sub" {
		t.Errorf("sub = %+v", sub.Message.Sub)
	}
	if err := roster.Subscribe(); err != nil || len(session.requestsOf("sub")) != 1 {
		t.Errorf("second Subscribe sent another request (err %v)", err)
	}
}

func TestRosterSubscribeGate(t *testing.T) {
	roster, err := NewRoster(RosterConfig{Transport: newFakeSession(t), Gate: allowGate(false)})
	if err != nil {
		t.Fatalf("NewRoster: %v", err)
	}
	if err := roster.Subscribe(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Subscribe = %v, want ErrNotAuthenticated", err)
	}
}

func TestRosterSnapshotReplace(t *testing.T) {
	roster, _, _, events := newTestRoster(t)
	roster.HandleMeta(rosterMeta())

	entries := roster.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Topic != "grpClub" || entries[1].Topic != "usrBob" || entries[2].Topic != "usrCarol" {
		t.Errorf("order = %s %s %s, want newest activity first", entries[0].Topic, entries[1].Topic, entries[2].Topic)
	}
	if entries[1].Unread != 3 || entries[1].DisplayName != "Bob Stone" {
		t.Errorf("bob = %+v", entries[1])
	}
	if entries[2].DisplayName != "usrCarol" {
		t.Errorf("fallback name = %q", entries[2].DisplayName)
	}

	roster.HandleMeta(&messaging.Meta{Topic: messaging.TopicMe, Sub: []messaging.TopicSub{{Topic: "usrDave", Seq: 1}}})
	if entries := roster.Entries(); len(entries) != 1 || entries[0].Topic != "usrDave" {
		t.Errorf("after replace = %+v", entries)
	}
	roster.HandleMeta(&messaging.Meta{Topic: messaging.TopicMe, Desc: &messaging.TopicDesc{}})
	if len(roster.Entries()) != 1 {
		t.Error("a meta without a sub list changed the roster")
	}
	if len(events.events) != 2 || events.events[1].Kind != RosterReplaced {
		t.Errorf("events = %+v", events.events)
	}
}

func TestRosterPresencePatchesOneEntry(t *testing.T) {
	roster, _, _, events := newTestRoster(t)
	roster.HandleMeta(rosterMeta())
	before := roster.Entries()
	events.reset()

	roster.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrBob", What: "on"})
	after := roster.Entries()
	for i := range after {
		want := before[i]
		if want.Topic == "usrBob" {
			want.Online = true
		}
		if after[i] != want {
			t.Errorf("entry %d = %+v, want %+v", i, after[i], want)
		}
	}
	if len(events.events) != 1 || events.events[0].Kind != RosterUpdated || events.events[0].Entry.Topic != "usrBob" {
		t.Errorf("events = %+v", events.events)
	}

	roster.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrBob", What: "on"})
	roster.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrNobody", What: "on"})
	roster.HandlePres(&messaging.Pres{Topic: "usrBob", What: "off"})
	if len(events.events) != 1 {
		t.Errorf("no-op notifications produced events: %+v", events.events[1:])
	}
}

func TestRosterMessageAndRead(t *testing.T) {
	roster, _, fake, _ := newTestRoster(t)
	roster.HandleMeta(rosterMeta())
	fake.Advance(time.Minute)

	roster.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrCarol", What: "msg", Seq: 5})
	entries := roster.Entries()
	if entries[0].Topic != "usrCarol" || entries[0].Unread != 5 || !entries[0].LastActivity.Equal(fake.Now()) {
		t.Fatalf("after msg: %+v", entries[0])
	}

	roster.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrCarol", What: "read", Seq: 3})
	if entry, _ := roster.Entry("usrCarol"); entry.Unread != 2 {
		t.Errorf("after read 3: %+v", entry)
	}
	roster.UpdateRead("usrCarol", 99)
	if entry, _ := roster.Entry("usrCarol"); entry.Unread != 0 || entry.ReadSeq != 5 {
		t.Errorf("after local read: %+v", entry)
	}
	roster.UpdateRead("usrCarol", 1)
	if entry, _ := roster.Entry("usrCarol"); entry.ReadSeq != 5 {
		t.Errorf("read moved back: %+v", entry)
	}
}

func TestRosterGone(t *testing.T) {
	roster, _, _, events := newTestRoster(t)
	roster.HandleMeta(rosterMeta())
	events.reset()
	roster.HandlePres(&messaging.Pres{Topic: messaging.TopicMe, Src: "usrBob", What: "gone"})
	if _, ok := roster.Entry("usrBob"); ok {
		t.Error("entry still present")
	}
	if len(events.events) != 1 || events.events[0].Kind != RosterRemoved {
		t.Errorf("events = %+v", events.events)
	}
}

func TestFilterEntriesRanksBestMatchFirst(t *testing.T) {
	entries := []RosterEntry{
		{Topic: "grpOps", DisplayName: "Cloud Ops Board"},
		{Topic: "usrAlice", DisplayName: "Alice Cooper"},
		{Topic: "grpClub", DisplayName: "Club"},
	}
	var got []string
	for _, entry := range FilterEntries(entries, "club") {
		got = append(got, entry.Topic)
	}
	if !slices.Equal(got, []string{"grpClub", "grpOps"}) {
		t.Errorf("FilterEntries(club) = %v, want [grpClub grpOps]", got)
	}
	if matches := FilterEntries(entries, "alcp"); len(matches) != 1 || matches[0].Topic != "usrAlice" {
		t.Errorf("FilterEntries(alcp) = %+v", matches)
	}
}

func TestRosterFilter(t *testing.T) {
	roster, _, _, _ := newTestRoster(t)
	roster.HandleMeta(rosterMeta())

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"grpClub", "usrBob", "usrCarol"}},
		{"bo", []string{"grpClub", "usrBob"}},
		{"  STONE ", []string{"usrBob"}},
		{"carol", []string{"usrCarol"}},
		{"bstn", []string{"usrBob"}},
		{"zzz", nil},
	}
	for _, test := range tests {
		var got []string
		for _, entry := range roster.Filter(test.query) {
			got = append(got, entry.Topic)
		}
		if len(got) != len(test.want) {
			t.Errorf("Filter(%q) = %v, want %v", test.query, got, test.want)
			continue
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("Filter(%q) = %v, want %v", test.query, got, test.want)
				break
			}
		}
	}
}
