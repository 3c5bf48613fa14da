// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

type topicHarness struct {
	topic   *Topic
	session *fakeSession
	clock   *clock.FakeClock
	metrics *Metrics
	events  *eventLog[TopicEvent]
}

func newTopicHarness(t *testing.T) *topicHarness {
	t.Helper()
	session := newFakeSession(t)
	fake := newFakeClock()
	metrics := NewMetrics(nil)
	topic, err := NewTopic(TopicConfig{
		Name:      "grp1",
		Transport: session,
		Gate:      allowGate(true),
		Executor:  messaging.Inline,
		Clock:     fake,
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("NewTopic: %v", err)
	}
	events := &eventLog[TopicEvent]{}
	topic.OnEvent(events.record)
	return &topicHarness{topic: topic, session: session, clock: fake, metrics: metrics, events: events}
}

// subscribe completes a sub without history.
func (h *topicHarness) subscribe(t *testing.T) {
	t.Helper()
	if err := h.topic.Subscribe(false); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	h.session.reply(h.session.last("sub").ID, 200, nil)
	if !h.topic.Subscribed() {
		t.Fatal("topic not subscribed after a 200 reply")
	}
	h.events.reset()
}

func (h *topicHarness) push(seq int, from string) {
	h.topic.HandleData(&messaging.Data{
		Topic:     "grp1",
		From:      from,
		Seq:       seq,
		Timestamp: epoch,
		Content:   []byte(`"message"`),
	})
}

func (h *topicHarness) kinds() []TopicEventKind {
	kinds := make([]TopicEventKind, 0, len(h.events.events))
	for _, event := range h.events.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func seqs(messages []Message) []int {
	result := make([]int, 0, len(messages))
	for _, message := range messages {
		result = append(result, message.Seq)
	}
	return result
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMergeKeepsStrictOrder(t *testing.T) {
	random := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		h := newTopicHarness(t)
		h.subscribe(t)

		distinct := map[int]bool{}
		for i := 0; i < 40; i++ {
			seq := random.IntN(30) + 1
			distinct[seq] = true
			h.push(seq, "usrBob")
		}

		got := seqs(h.topic.Messages())
		if len(got) != len(distinct) {
			t.Fatalf("round %d: %d messages, want %d distinct", round, len(got), len(distinct))
		}
		for i := 1; i < len(got); i++ {
			if got[i] <= got[i-1] {
				t.Fatalf("round %d: messages not strictly ascending: %v", round, got)
			}
		}
		appended := 0
		for _, event := range h.events.events {
			if event.Kind == EventAppended {
				appended++
			}
		}
		if appended != len(distinct) {
			t.Errorf("round %d: %d appended events, want %d", round, appended, len(distinct))
		}
	}
}

func TestDuplicateDataIsSilent(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	h.push(3, "usrBob")
	before := h.topic.Messages()
	h.events.reset()

	h.push(3, "usrBob")

	if len(h.events.events) != 0 {
		t.Errorf("duplicate produced events: %v", h.kinds())
	}
	if after := h.topic.Messages(); len(after) != len(before) {
		t.Errorf("duplicate changed messages: %v -> %v", seqs(before), seqs(after))
	}
	if got := testutil.ToFloat64(h.metrics.DuplicatesIgnored.WithLabelValues(SourceLive)); got != 1 {
		t.Errorf("live duplicates counter = %v, want 1", got)
	}
}

func TestHistoryThenLiveWhileActive(t *testing.T) {
	h := newTopicHarness(t)
	if err := h.topic.Subscribe(true); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub := h.session.last("sub")
	if sub.Message.Sub.Get == nil || sub.Message.Sub.Get.Data == nil || sub.Message.Sub.Get.Data.Limit != 20 {
		t.Fatalf("sub did not request a history page: %+v", sub.Message.Sub.Get)
	}
	h.topic.SetActive(true)

	subID := strconv.FormatInt(sub.ID, 10)
	h.session.reply(sub.ID, 200, nil)
	h.topic.HandleCtrl(&messaging.Ctrl{ID: subID, Topic: "grp1", Code: 200})
	h.topic.HandleMeta(&messaging.Meta{Topic: "grp1", Desc: &messaging.TopicDesc{Seq: 7}})
	for _, seq := range []int{5, 6, 7} {
		h.push(seq, "usrBob")
	}
	h.topic.HandleCtrl(&messaging.Ctrl{
		ID:     subID,
		Topic:  "grp1",
		Code:   messaging.CodeDelivered,
		Params: map[string]any{"what": "data", "count": float64(3)},
	})
	h.push(8, "usrBob")

	var kinds []TopicEventKind
	var batch, appended []int
	for _, event := range h.events.events {
		switch event.Kind {
		case EventHistoryPrepended:
			batch = seqs(event.Batch)
			kinds = append(kinds, event.Kind)
		case EventAppended:
			appended = append(appended, event.Message.Seq)
			kinds = append(kinds, event.Kind)
		}
	}
	if len(kinds) != 2 || kinds[0] != EventHistoryPrepended || kinds[1] != EventAppended {
		t.Fatalf("events = %v, want history_prepended then appended", kinds)
	}
	if !equalInts(batch, []int{5, 6, 7}) {
		t.Errorf("history batch = %v, want [5 6 7]", batch)
	}
	if !equalInts(appended, []int{8}) {
		t.Errorf("appended = %v, want [8]", appended)
	}

	note := h.session.last("note")
	if note.Message.Note.What != "read" || note.Message.Note.Seq != 8 {
		t.Errorf("last note = %+v, want read at 8", note.Message.Note)
	}
	if len(h.session.requestsOf("note")) != 1 {
		t.Errorf("%d notes sent, want only the read for 8", len(h.session.requestsOf("note")))
	}
}

func TestInactiveTopicDoesNotAutoRead(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	h.push(1, "usrBob")
	if notes := h.session.requestsOf("note"); len(notes) != 0 {
		t.Fatalf("inactive topic sent notes: %d", len(notes))
	}

	h.topic.SetActive(true)
	note := h.session.last("note")
	if note.Message.Note.Seq != 1 {
		t.Errorf("activating read seq %d, want 1", note.Message.Note.Seq)
	}

	h.push(2, self)
	if notes := h.session.requestsOf("note"); len(notes) != 1 {
		t.Errorf("own message triggered a read note")
	}
}

func TestLoadOlderSingleBatch(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	for _, seq := range []int{10, 11, 12} {
		h.push(seq, "usrBob")
	}
	h.events.reset()

	if err := h.topic.LoadOlder(0); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	get := h.session.last("get")
	if get.Message.Get.Data.Before != 10 {
		t.Fatalf("get before = %d, want 10", get.Message.Get.Data.Before)
	}
	if err := h.topic.LoadOlder(0); !errors.Is(err, ErrPageInFlight) {
		t.Errorf("second LoadOlder = %v, want ErrPageInFlight", err)
	}

	for _, seq := range []int{9, 8, 7, 9} {
		h.push(seq, "usrBob")
	}
	h.push(13, "usrBob") // live, not part of the page
	h.session.reply(get.ID, messaging.CodeDelivered, map[string]any{"what": "data"})

	// A redelivered page changes nothing.
	for _, seq := range []int{7, 8, 9} {
		h.push(seq, "usrBob")
	}
	h.session.reply(get.ID, messaging.CodeDelivered, map[string]any{"what": "data"})

	var prepended [][]int
	for _, event := range h.events.events {
		if event.Kind == EventHistoryPrepended {
			prepended = append(prepended, seqs(event.Batch))
		}
	}
	if len(prepended) != 1 || !equalInts(prepended[0], []int{7, 8, 9}) {
		t.Errorf("history batches = %v, want one [7 8 9]", prepended)
	}
	if got := seqs(h.topic.Messages()); !equalInts(got, []int{7, 8, 9, 10, 11, 12, 13}) {
		t.Errorf("messages = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.DuplicatesIgnored.WithLabelValues(SourceHistory)); got != 1 {
		t.Errorf("history duplicates = %v, want 1", got)
	}
}

func TestLoadOlderAtStart(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	h.push(1, "usrBob")
	if err := h.topic.LoadOlder(0); !errors.Is(err, ErrNoOlderHistory) {
		t.Errorf("LoadOlder at seq 1 = %v, want ErrNoOlderHistory", err)
	}
	if h.topic.HasOlder() {
		t.Error("HasOlder at seq 1")
	}
}

func TestLoadOlderFailure(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	h.push(5, "usrBob")
	h.events.reset()
	if err := h.topic.LoadOlder(0); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	h.push(4, "usrBob")
	h.session.reply(h.session.last("get").ID, 500, nil)

	kinds := h.kinds()
	if len(kinds) != 2 || kinds[0] != EventHistoryPrepended || kinds[1] != EventHistoryFailed {
		t.Fatalf("events = %v, want partial page then failure", kinds)
	}
	if !messaging.IsReplyCode(h.events.events[1].Err, 500) {
		t.Errorf("failure error = %v", h.events.events[1].Err)
	}
	if err := h.topic.LoadOlder(0); err != nil {
		t.Errorf("LoadOlder after a failed page: %v", err)
	}
}

func TestReadReceiptsAreMonotonic(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	for seq := 1; seq <= 6; seq++ {
		from := self
		if seq == 4 {
			from = "usrBob"
		}
		h.push(seq, from)
	}
	h.events.reset()

	h.topic.HandleInfo(&messaging.Info{Topic: "grp1", From: "usrBob", What: "read", Seq: 3})
	status := func() map[int]Status {
		result := map[int]Status{}
		for _, message := range h.topic.Messages() {
			result[message.Seq] = message.Status
		}
		return result
	}
	got := status()
	for seq, want := range map[int]Status{1: StatusRead, 2: StatusRead, 3: StatusRead, 4: StatusSent, 5: StatusSent, 6: StatusSent} {
		if got[seq] != want {
			t.Errorf("after read 3: seq %d status %v, want %v", seq, got[seq], want)
		}
	}
	if len(h.events.events) != 3 {
		t.Errorf("%d updated events, want 3", len(h.events.events))
	}

	h.events.reset()
	h.topic.HandleInfo(&messaging.Info{Topic: "grp1", From: "usrBob", What: "read", Seq: 2})
	h.topic.HandleInfo(&messaging.Info{Topic: "grp1", From: "usrBob", What: "recv", Seq: 5})
	got = status()
	for seq, want := range map[int]Status{1: StatusRead, 3: StatusRead, 4: StatusSent, 5: StatusDelivered, 6: StatusSent} {
		if got[seq] != want {
			t.Errorf("after recv 5: seq %d status %v, want %v", seq, got[seq], want)
		}
	}
	if len(h.events.events) != 1 || h.events.events[0].Message.Seq != 5 {
		t.Errorf("events after stale read and recv 5: %+v", h.events.events)
	}

	// A receipt past the loaded messages applies to messages that
	// arrive later.
	h.topic.HandleInfo(&messaging.Info{Topic: "grp1", From: "usrBob", What: "read", Seq: 9})
	h.push(7, self)
	if message := h.topic.Messages()[6]; message.Status != StatusRead {
		t.Errorf("late outgoing message status %v, want read", message.Status)
	}
}

func TestOwnReadFromAnotherSession(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	h.push(1, "usrBob")
	h.push(2, "usrBob")
	h.events.reset()

	h.topic.HandleInfo(&messaging.Info{Topic: "grp1", From: self, What: "read", Seq: 9})
	if got := h.topic.Snapshot().ReadSeq; got != 2 {
		t.Errorf("ReadSeq = %d, want 2 (clamped)", got)
	}
	if len(h.events.events) != 1 || h.events.events[0].Kind != EventReadPosition {
		t.Errorf("events = %v, want one read_position", h.kinds())
	}
	if len(h.session.requestsOf("note")) != 0 {
		t.Error("own read receipt echoed back as a note")
	}
}

func TestSendTimeoutLeavesSendPending(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)

	id, err := h.topic.Send("hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if pub := h.session.last("pub"); pub.ID != id || pub.Message.Pub.Content != "hi" {
		t.Fatalf("pub = %+v (id %d), want content hi with id %d", pub.Message.Pub, pub.ID, id)
	}

	h.clock.Advance(9 * time.Second)
	if len(h.events.events) != 0 {
		t.Fatalf("events before the timeout: %v", h.kinds())
	}
	h.clock.Advance(time.Second)

	if len(h.events.events) != 1 || h.events.events[0].Kind != EventSendTimedOut {
		t.Fatalf("events = %v, want one send_timed_out", h.kinds())
	}
	var timeout *SendTimeout
	if !errors.As(h.events.events[0].Err, &timeout) || timeout.CorrelationID != id || timeout.Timeout != 10*time.Second {
		t.Errorf("timeout error = %v", h.events.events[0].Err)
	}
	pending := h.topic.Pending()
	if len(pending) != 1 || pending[0].CorrelationID != id || pending[0].Resolved || !pending[0].TimedOut {
		t.Errorf("pending = %+v, want %d unresolved", pending, id)
	}
	h.clock.Advance(time.Minute)
	if pubs := h.session.requestsOf("pub"); len(pubs) != 1 {
		t.Errorf("%d pubs sent, want no retry", len(pubs))
	}
	if got := testutil.ToFloat64(h.metrics.SendTimeouts); got != 1 {
		t.Errorf("send timeouts = %v, want 1", got)
	}
}

func TestSendResolvedByEcho(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	id, err := h.topic.Send("hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	h.session.reply(id, 202, map[string]any{"seq": float64(9)})
	if len(h.topic.Pending()) != 1 {
		t.Fatal("send resolved before its echo")
	}
	h.push(9, self)

	kinds := h.kinds()
	if len(kinds) != 2 || kinds[0] != EventAppended || kinds[1] != EventSendResolved {
		t.Fatalf("events = %v, want appended then send_resolved", kinds)
	}
	if resolved := h.events.events[1].Send; resolved.CorrelationID != id || resolved.Seq != 9 || !resolved.Resolved {
		t.Errorf("resolved send = %+v", resolved)
	}
	if !h.events.events[0].Message.Outgoing {
		t.Error("echo not marked outgoing")
	}
	h.clock.Advance(time.Minute)
	if len(h.events.events) != 2 {
		t.Errorf("timeout fired after resolution: %v", h.kinds())
	}
	if h.clock.Pending() != 0 {
		t.Errorf("%d timers left running", h.clock.Pending())
	}
}

func TestSendEchoBeforeReply(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	id, _ := h.topic.Send("hello")
	h.push(4, self)
	h.session.reply(id, 202, map[string]any{"seq": float64(4)})
	if len(h.topic.Pending()) != 0 {
		t.Errorf("pending = %+v, want resolved", h.topic.Pending())
	}
}

func TestSendFailed(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	id, _ := h.topic.Send("hello")
	h.session.reply(id, 403, nil)

	if len(h.events.events) != 1 || h.events.events[0].Kind != EventSendFailed {
		t.Fatalf("events = %v, want send_failed", h.kinds())
	}
	if !messaging.IsReplyCode(h.events.events[0].Err, 403) {
		t.Errorf("error = %v", h.events.events[0].Err)
	}
	if len(h.topic.Pending()) != 0 {
		t.Error("failed send still pending")
	}
	if got := testutil.ToFloat64(h.metrics.SendFailures); got != 1 {
		t.Errorf("send failures = %v, want 1", got)
	}
}

func TestSendRequiresSubscription(t *testing.T) {
	h := newTopicHarness(t)
	if _, err := h.topic.Send("hi"); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Send before subscribe = %v, want ErrNotSubscribed", err)
	}
	h.subscribe(t)
	if _, err := h.topic.Send("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send(blank) = %v, want ErrEmptyMessage", err)
	}
}

func TestMarkReadClampsAndNeverMovesBack(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	for seq := 1; seq <= 4; seq++ {
		h.push(seq, "usrBob")
	}
	if err := h.topic.MarkRead(100); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if note := h.session.last("note"); note.Message.Note.Seq != 4 {
		t.Errorf("read note seq = %d, want 4", note.Message.Note.Seq)
	}
	if err := h.topic.MarkRead(2); err != nil {
		t.Fatalf("MarkRead(2): %v", err)
	}
	if notes := h.session.requestsOf("note"); len(notes) != 1 {
		t.Errorf("%d notes, want 1", len(notes))
	}
	if snapshot := h.topic.Snapshot(); snapshot.ReadSeq != 4 || snapshot.Unread != 0 {
		t.Errorf("snapshot read %d unread %d", snapshot.ReadSeq, snapshot.Unread)
	}
}

func TestNoteTypingThrottled(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	for i := 0; i < 5; i++ {
		if err := h.topic.NoteTyping(); err != nil {
			t.Fatalf("NoteTyping: %v", err)
		}
		h.clock.Advance(200 * time.Millisecond)
	}
	if notes := h.session.requestsOf("note"); len(notes) != 1 || notes[0].Message.Note.What != "kp" {
		t.Fatalf("notes = %d, want one kp", len(notes))
	}
	h.clock.Advance(time.Second)
	h.topic.NoteTyping()
	if notes := h.session.requestsOf("note"); len(notes) != 2 {
		t.Errorf("notes after the interval = %d, want 2", len(notes))
	}
}

func TestSubscribeGate(t *testing.T) {
	session := newFakeSession(t)
	topic, err := NewTopic(TopicConfig{Name: "grp1", Transport: session, Gate: allowGate(false), Executor: messaging.Inline})
	if err != nil {
		t.Fatalf("NewTopic: %v", err)
	}
	if err := topic.Subscribe(true); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Subscribe = %v, want ErrNotAuthenticated", err)
	}
	if len(session.requests) != 0 {
		t.Error("gated subscribe sent a request")
	}
}

func TestSubscribeFailure(t *testing.T) {
	h := newTopicHarness(t)
	if err := h.topic.Subscribe(true); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	h.session.reply(h.session.last("sub").ID, 403, nil)
	if h.topic.Subscribed() {
		t.Fatal("subscribed after 403")
	}
	if kinds := h.kinds(); len(kinds) != 1 || kinds[0] != EventSubscribeFailed {
		t.Errorf("events = %v", kinds)
	}
	// Data is live again once the page is abandoned.
	h.push(3, "usrBob")
	if kinds := h.kinds(); kinds[len(kinds)-1] != EventAppended {
		t.Errorf("data after failed subscribe: %v", kinds)
	}
}

func TestMergeCached(t *testing.T) {
	h := newTopicHarness(t)
	h.topic.MergeCached([]Message{{Seq: 3, From: self, Text: "c"}, {Seq: 1, From: "usrBob", Text: "a"}, {Seq: 2, From: "usrBob", Text: "b"}})
	h.subscribe(t)
	h.topic.MergeCached([]Message{{Seq: 3}, {Seq: 4, From: "usrBob"}})

	if got := seqs(h.topic.Messages()); !equalInts(got, []int{1, 2, 3, 4}) {
		t.Errorf("messages = %v", got)
	}
	if len(h.events.events) != 1 || !equalInts(seqs(h.events.events[0].Batch), []int{4}) {
		t.Errorf("second merge events = %+v", h.events.events)
	}
	if !h.topic.Messages()[2].Outgoing {
		t.Error("cached message from self not outgoing")
	}
	if got := testutil.ToFloat64(h.metrics.DuplicatesIgnored.WithLabelValues(SourceCache)); got != 1 {
		t.Errorf("cache duplicates = %v, want 1", got)
	}
}

func TestMergeCachedKeepsStatus(t *testing.T) {
	h := newTopicHarness(t)
	h.topic.MergeCached([]Message{
		{Seq: 1, From: self, Text: "a", Status: StatusRead},
		{Seq: 2, From: self, Text: "b", Status: StatusDelivered},
		{Seq: 3, From: self, Text: "c"},
		{Seq: 4, From: "usrBob", Text: "d", Status: StatusRead},
	})
	h.subscribe(t)

	want := []Status{StatusRead, StatusDelivered, StatusSent, StatusSent}
	for i, message := range h.topic.Messages() {
		if message.Status != want[i] {
			t.Errorf("seq %d status = %v, want %v", message.Seq, message.Status, want[i])
		}
	}

	// A later receipt still only moves statuses forward.
	h.topic.HandleInfo(&messaging.Info{Topic: "grp1", From: "usrBob", What: "recv", Seq: 3})
	want = []Status{StatusRead, StatusDelivered, StatusDelivered, StatusSent}
	for i, message := range h.topic.Messages() {
		if message.Status != want[i] {
			t.Errorf("after recv: seq %d status = %v, want %v", message.Seq, message.Status, want[i])
		}
	}
}

func TestSubscribeAppliesMemberReceipts(t *testing.T) {
	h := newTopicHarness(t)
	if err := h.topic.Subscribe(true); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub := h.session.last("sub")
	if sub.Message.Sub.Get.What != "desc sub data" {
		t.Fatalf("sub what = %q, want \"desc sub data\"", sub.Message.Sub.Get.What)
	}

	subID := strconv.FormatInt(sub.ID, 10)
	h.session.reply(sub.ID, 200, nil)
	h.topic.HandleMeta(&messaging.Meta{Topic: "grp1", Desc: &messaging.TopicDesc{Seq: 4}})
	h.topic.HandleMeta(&messaging.Meta{Topic: "grp1", Sub: []messaging.TopicSub{
		{User: self, Read: 4, Recv: 4},
		{User: "usrBob", Read: 1, Recv: 2},
		{User: "usrCarol", Read: 2, Recv: 3},
	}})
	for _, seq := range []int{1, 2, 3} {
		h.push(seq, self)
	}
	h.push(4, "usrBob")
	h.topic.HandleCtrl(&messaging.Ctrl{
		ID:     subID,
		Topic:  "grp1",
		Code:   messaging.CodeDelivered,
		Params: map[string]any{"what": "data", "count": float64(4)},
	})

	messages := h.topic.Messages()
	if got := seqs(messages); !equalInts(got, []int{1, 2, 3, 4}) {
		t.Fatalf("messages = %v", got)
	}
	want := []Status{StatusRead, StatusRead, StatusDelivered, StatusSent}
	for i, message := range messages {
		if message.Status != want[i] {
			t.Errorf("seq %d status = %v, want %v", message.Seq, message.Status, want[i])
		}
	}
}

func TestSubscribeWithoutHistoryAsksForReceipts(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	if what := h.session.last("sub").Message.Sub.Get.What; what != "desc sub" {
		t.Errorf("sub what = %q, want \"desc sub\"", what)
	}
}

func TestDescriptionUpdatesSnapshot(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	h.topic.HandleMeta(&messaging.Meta{Topic: "grp1", Desc: &messaging.TopicDesc{
		Public: &messaging.Public{FullName: "Book club"},
		Seq:    12,
		Read:   10,
		Online: true,
	}})
	snapshot := h.topic.Snapshot()
	if snapshot.DisplayName != "Book club" || snapshot.MaxSeq != 12 || snapshot.ReadSeq != 10 || snapshot.Unread != 2 || !snapshot.Online {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if !h.topic.HasOlder() {
		t.Error("HasOlder with nothing loaded and seq 12")
	}
}

func TestLeaveStopsTimers(t *testing.T) {
	h := newTopicHarness(t)
	h.subscribe(t)
	h.topic.Send("one")
	h.topic.Send("two")
	if err := h.topic.Leave(false); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if leave := h.session.last("leave"); leave.Message.Leave.Topic != "grp1" {
		t.Errorf("leave = %+v", leave.Message.Leave)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("%d timers left after Leave", h.clock.Pending())
	}
	if err := h.topic.Subscribe(false); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Subscribe after Leave = %v", err)
	}
}
