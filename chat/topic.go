// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

// Message is one server-assigned message in a topic.
type Message struct {
	Seq       int
	From      string
	Text      string
	Outgoing  bool
	Timestamp time.Time

	// Status is the delivery status of an outgoing message.
	Status Status
}

// PendingSend tracks a published message until its echo arrives.
type PendingSend struct {
	CorrelationID int64
	Topic         string
	Text          string
	IssuedAt      time.Time
	Resolved      bool

	// Seq is the server-assigned seq once the pub is accepted.
	Seq int

	// TimedOut is set when the send timeout passed unresolved. The
	// send stays pending; a late echo still resolves it.
	TimedOut bool
}

// TopicEventKind discriminates TopicEvent.
type TopicEventKind int

const (
	// EventAppended: a live message was inserted.
	EventAppended TopicEventKind = iota + 1

	// EventUpdated: a message's delivery status changed.
	EventUpdated

	// EventHistoryPrepended: one history page (or cache seed) was
	// merged. Batch holds only the messages actually inserted.
	EventHistoryPrepended

	// EventSendResolved: the echo of a send arrived.
	EventSendResolved

	// EventSendFailed: the server refused a send or the connection
	// dropped before the reply.
	EventSendFailed

	// EventSendTimedOut: a send was not confirmed in time. Err is a
	// *SendTimeout.
	EventSendTimedOut

	// EventReadPosition: the local user's last-read seq advanced.
	EventReadPosition

	// EventSubscribed and EventSubscribeFailed report the sub reply.
	EventSubscribed
	EventSubscribeFailed

	// EventHistoryFailed: a history page request failed.
	EventHistoryFailed

	// EventDescribed: display name, online flag, or seq bounds changed
	// from a topic description.
	EventDescribed
)

var topicEventNames = map[TopicEventKind]string{
	EventAppended:         "appended",
	EventUpdated:          "updated",
	EventHistoryPrepended: "history_prepended",
	EventSendResolved:     "send_resolved",
	EventSendFailed:       "send_failed",
	EventSendTimedOut:     "send_timed_out",
	EventReadPosition:     "read_position",
	EventSubscribed:       "subscribed",
	EventSubscribeFailed:  "subscribe_failed",
	EventHistoryFailed:    "history_failed",
	EventDescribed:        "described",
}

func (k TopicEventKind) String() string {
	if name, ok := topicEventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TopicEventKind(%d)", int(k))
}

// TopicEvent is emitted by a Topic. Fields are copies.
type TopicEvent struct {
	Kind  TopicEventKind
	Topic string

	Message Message
	Batch   []Message
	Send    PendingSend
	ReadSeq int
	Err     error
}

// TopicSnapshot is a copy of a topic's state.
type TopicSnapshot struct {
	Name        string
	DisplayName string
	Online      bool
	Subscribed  bool

	// MaxSeq is the highest seq known to exist, which may exceed the
	// last loaded message.
	MaxSeq  int
	ReadSeq int
	Unread  int

	Messages []Message
	Pending  []PendingSend
}

// TopicConfig holds the parameters for NewTopic.
type TopicConfig struct {
	Name      string
	Transport Transport

	// Gate refuses Subscribe until authenticated. Nil allows it.
	Gate Gate

	// Executor runs timer callbacks. It must be the executor that
	// delivers inbound envelopes.
	Executor messaging.Executor
	Clock    clock.Clock

	// PageSize bounds history pages (default 20).
	PageSize int

	// SendTimeout is how long a send may stay unconfirmed before
	// EventSendTimedOut (default 10s).
	SendTimeout time.Duration

	// TypingInterval is the minimum spacing of outbound typing notes
	// (default 1.5s).
	TypingInterval time.Duration

	Metrics *Metrics
	Logger  *slog.Logger
}

// Topic synchronizes one conversation. Messages are kept strictly
// ascending by seq with no duplicates regardless of the order live
// data, history pages, and cache seeds arrive in.
type Topic struct {
	name      string
	transport Transport
	gate      Gate
	executor  messaging.Executor
	clock     clock.Clock
	metrics   *Metrics
	logger    *slog.Logger

	pageSize       int
	sendTimeout    time.Duration
	typingInterval time.Duration

	displayName string
	online      bool
	subscribed  bool
	subscribing bool
	active      bool
	closed      bool

	maxSeq  int
	readSeq int

	// Highest receipts seen from other users, applied to outgoing
	// messages as they arrive.
	peerRead int
	peerRecv int

	messages []Message
	page     *pendingPage
	pending  map[int64]*pendingSend
	lastKP   time.Time

	observers messaging.Observers[TopicEvent]
}

// pendingPage collects a history page until its closing ctrl. Data
// with seq below before (any seq when before is 0) belongs to the
// page.
type pendingPage struct {
	requestID int64
	before    int
	initial   bool
	batch     []Message
}

type pendingSend struct {
	PendingSend
	timer *clock.Timer
}

// NewTopic returns an unsubscribed Topic.
func NewTopic(config TopicConfig) (*Topic, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("chat: topic name is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("chat: topic %s: transport is required", config.Name)
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("chat: topic %s: executor is required", config.Name)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.PageSize <= 0 {
		config.PageSize = 20
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	if config.TypingInterval <= 0 {
		config.TypingInterval = 1500 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Topic{
		name:           config.Name,
		transport:      config.Transport,
		gate:           config.Gate,
		executor:       config.Executor,
		clock:          config.Clock,
		metrics:        config.Metrics,
		logger:         logger.With("topic", config.Name),
		pageSize:       config.PageSize,
		sendTimeout:    config.SendTimeout,
		typingInterval: config.TypingInterval,
		displayName:    config.Name,
		pending:        make(map[int64]*pendingSend),
	}, nil
}

// Name returns the topic id.
func (t *Topic) Name() string { return t.name }

// OnEvent observes the topic's events.
func (t *Topic) OnEvent(handler func(TopicEvent)) (cancel func()) {
	return t.observers.Observe(handler)
}

// Subscribed reports whether the sub was accepted.
func (t *Topic) Subscribed() bool { return t.subscribed }

// Subscribe joins the topic and asks for its description and member
// receipts. With withHistory the latest page of messages is fetched in
// the same round trip and delivered as one EventHistoryPrepended.
// Subscribing twice is a no-op.
func (t *Topic) Subscribe(withHistory bool) error {
	if t.closed {
		return ErrNotSubscribed
	}
	if t.gate != nil && !t.gate.Authenticated() {
		return ErrNotAuthenticated
	}
	if t.subscribed || t.subscribing {
		return nil
	}

	// "sub" brings the members' read and recv marks, which set the
	// status of outgoing messages in the history page.
	query := &messaging.GetQuery{What: "desc sub"}
	if withHistory {
		query.What = "desc sub data"
		query.Data = &messaging.GetOpts{Limit: t.pageSize}
	}
	id, err := t.transport.Request(&messaging.ClientMessage{Sub: &messaging.Sub{
		Topic: t.name,
		Get:   query,
	}}, t.subscribeReply)
	if err != nil {
		return fmt.Errorf("chat: subscribing to %s: %w", t.name, err)
	}
	t.subscribing = true
	if withHistory {
		t.page = &pendingPage{requestID: id, initial: true}
	}
	t.logger.Debug("subscribing", "request_id", id, "with_history", withHistory)
	return nil
}

func (t *Topic) subscribeReply(ctrl *messaging.Ctrl, err error) {
	if t.closed {
		return
	}
	t.subscribing = false
	if err == nil && !ctrl.Success() && ctrl.Code != 304 {
		err = messaging.ReplyErrorFrom(ctrl)
	}
	if err != nil {
		t.page = nil
		t.logger.Warn("subscribe failed", "error", err)
		t.notify(TopicEvent{Kind: EventSubscribeFailed, Err: err})
		return
	}
	t.subscribed = true
	t.logger.Info("subscribed")
	t.notify(TopicEvent{Kind: EventSubscribed})
}

// LoadOlder requests the page of messages strictly before beforeSeq.
// Zero means before the lowest loaded message. The page arrives as one
// EventHistoryPrepended.
func (t *Topic) LoadOlder(beforeSeq int) error {
	if !t.subscribed {
		return ErrNotSubscribed
	}
	if t.page != nil {
		return ErrPageInFlight
	}
	if beforeSeq <= 0 && len(t.messages) > 0 {
		beforeSeq = t.messages[0].Seq
	}
	if beforeSeq == 1 || (beforeSeq <= 0 && t.maxSeq == 0) {
		return ErrNoOlderHistory
	}

	id, err := t.transport.Request(&messaging.ClientMessage{Get: &messaging.Get{
		Topic: t.name,
		GetQuery: messaging.GetQuery{
			What: "data",
			Data: &messaging.GetOpts{Before: beforeSeq, Limit: t.pageSize},
		},
	}}, func(ctrl *messaging.Ctrl, err error) {
		t.completePage(ctrl, err)
	})
	if err != nil {
		return fmt.Errorf("chat: loading history of %s: %w", t.name, err)
	}
	t.page = &pendingPage{requestID: id, before: beforeSeq}
	t.logger.Debug("loading older", "request_id", id, "before", beforeSeq)
	return nil
}

// HasOlder reports whether messages below the lowest loaded one may
// exist.
func (t *Topic) HasOlder() bool {
	if len(t.messages) == 0 {
		return t.maxSeq > 0
	}
	return t.messages[0].Seq > 1
}

// Send publishes text and returns its correlation id. The outcome is
// reported as EventSendResolved, EventSendFailed, or EventSendTimedOut.
// The message itself appears only when the server echoes it back.
func (t *Topic) Send(text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyMessage
	}
	if !t.subscribed {
		return 0, ErrNotSubscribed
	}

	send := &pendingSend{PendingSend: PendingSend{
		Topic:    t.name,
		Text:     text,
		IssuedAt: t.clock.Now(),
	}}
	id, err := t.transport.Request(&messaging.ClientMessage{Pub: &messaging.Pub{
		Topic:   t.name,
		Content: text,
	}}, func(ctrl *messaging.Ctrl, err error) {
		t.sendReply(send, ctrl, err)
	})
	if err != nil {
		return 0, fmt.Errorf("chat: sending to %s: %w", t.name, err)
	}
	send.CorrelationID = id
	t.pending[id] = send
	send.timer = t.clock.AfterFunc(t.sendTimeout, func() {
		t.executor.Post(func() { t.sendExpired(send) })
	})
	return id, nil
}

func (t *Topic) sendReply(send *pendingSend, ctrl *messaging.Ctrl, err error) {
	if _, ok := t.pending[send.CorrelationID]; !ok {
		return
	}
	if err == nil && !ctrl.Success() {
		err = messaging.ReplyErrorFrom(ctrl)
	}
	if err != nil {
		send.timer.Stop()
		delete(t.pending, send.CorrelationID)
		t.metrics.sendFailure()
		t.logger.Warn("send failed", "correlation_id", send.CorrelationID, "error", err)
		t.notify(TopicEvent{Kind: EventSendFailed, Send: send.PendingSend, Err: err})
		return
	}

	seq, ok := ctrl.ParamInt("seq")
	if !ok || seq <= 0 {
		t.resolve(send)
		return
	}
	send.Seq = seq
	if seq > t.maxSeq {
		t.maxSeq = seq
	}
	if _, found := t.find(seq); found {
		t.resolve(send)
	}
}

func (t *Topic) sendExpired(send *pendingSend) {
	if _, ok := t.pending[send.CorrelationID]; !ok || send.TimedOut {
		return
	}
	send.TimedOut = true
	t.metrics.sendTimeout()
	t.logger.Warn("send not confirmed", "correlation_id", send.CorrelationID, "timeout", t.sendTimeout)
	t.notify(TopicEvent{
		Kind: EventSendTimedOut,
		Send: send.PendingSend,
		Err:  &SendTimeout{CorrelationID: send.CorrelationID, Topic: t.name, Timeout: t.sendTimeout},
	})
}

func (t *Topic) resolve(send *pendingSend) {
	send.timer.Stop()
	send.Resolved = true
	delete(t.pending, send.CorrelationID)
	t.notify(TopicEvent{Kind: EventSendResolved, Send: send.PendingSend})
}

// MarkRead advances the read position to upToSeq, clamped to the
// highest known seq, and sends a read note. Moving backwards is a
// no-op.
func (t *Topic) MarkRead(upToSeq int) error {
	if !t.subscribed {
		return ErrNotSubscribed
	}
	if upToSeq > t.maxSeq {
		upToSeq = t.maxSeq
	}
	if upToSeq <= t.readSeq {
		return nil
	}
	if _, err := t.transport.Request(&messaging.ClientMessage{Note: &messaging.Note{
		Topic: t.name,
		What:  "read",
		Seq:   upToSeq,
	}}, nil); err != nil {
		return fmt.Errorf("chat: marking %s read: %w", t.name, err)
	}
	t.setReadSeq(upToSeq)
	return nil
}

// SetActive records whether the topic is on screen. Live messages that
// become the tail of an active topic are marked read automatically,
// and activating marks the current tail read.
func (t *Topic) SetActive(active bool) {
	t.active = active
	if !active || !t.subscribed {
		return
	}
	if tail, ok := t.tail(); ok && !tail.Outgoing && tail.Seq > t.readSeq {
		if err := t.MarkRead(tail.Seq); err != nil {
			t.logger.Warn("auto read failed", "seq", tail.Seq, "error", err)
		}
	}
}

// NoteTyping tells the other participants the user is typing. Calls
// closer together than the typing interval are dropped.
func (t *Topic) NoteTyping() error {
	if !t.subscribed {
		return ErrNotSubscribed
	}
	now := t.clock.Now()
	if !t.lastKP.IsZero() && now.Sub(t.lastKP) < t.typingInterval {
		return nil
	}
	if _, err := t.transport.Request(&messaging.ClientMessage{Note: &messaging.Note{
		Topic: t.name,
		What:  "kp",
	}}, nil); err != nil {
		return fmt.Errorf("chat: typing note for %s: %w", t.name, err)
	}
	t.lastKP = now
	return nil
}

// MergeCached seeds the topic with locally stored messages. It follows
// the history path: duplicates are skipped and one
// EventHistoryPrepended reports what was inserted.
func (t *Topic) MergeCached(messages []Message) {
	batch := slices.Clone(messages)
	t.mergeBatch(batch, SourceCache)
}

// Leave unsubscribes. With unsub the server also drops the persistent
// subscription. The Topic cannot be used afterwards.
func (t *Topic) Leave(unsub bool) error {
	if t.closed {
		return nil
	}
	var err error
	if t.subscribed || t.subscribing {
		_, err = t.transport.Request(&messaging.ClientMessage{Leave: &messaging.Leave{
			Topic: t.name,
			Unsub: unsub,
		}}, nil)
	}
	t.shutdown()
	if err != nil {
		return fmt.Errorf("chat: leaving %s: %w", t.name, err)
	}
	return nil
}

// shutdown stops every timer and refuses further work. Pending sends
// are abandoned without events.
func (t *Topic) shutdown() {
	t.closed = true
	t.subscribed = false
	t.subscribing = false
	t.page = nil
	for id, send := range t.pending {
		send.timer.Stop()
		delete(t.pending, id)
	}
}

// connectionLost marks the topic unsubscribed. The server forgets
// subscriptions with the connection; history collection is abandoned.
// Pending sends fail through their reply callbacks.
func (t *Topic) connectionLost() {
	if t.page != nil {
		t.completePage(nil, fmt.Errorf("chat: %s: connection lost", t.name))
	}
	t.subscribed = false
	t.subscribing = false
}

// Messages returns a copy of the ordered message list.
func (t *Topic) Messages() []Message { return slices.Clone(t.messages) }

// Pending returns copies of the unresolved sends, oldest first.
func (t *Topic) Pending() []PendingSend {
	sends := make([]PendingSend, 0, len(t.pending))
	for _, send := range t.pending {
		sends = append(sends, send.PendingSend)
	}
	slices.SortFunc(sends, func(a, b PendingSend) int { return cmp.Compare(a.CorrelationID, b.CorrelationID) })
	return sends
}

// Snapshot returns a copy of the topic's state.
func (t *Topic) Snapshot() TopicSnapshot {
	return TopicSnapshot{
		Name:        t.name,
		DisplayName: t.displayName,
		Online:      t.online,
		Subscribed:  t.subscribed,
		MaxSeq:      t.maxSeq,
		ReadSeq:     t.readSeq,
		Unread:      max(t.maxSeq-t.readSeq, 0),
		Messages:    t.Messages(),
		Pending:     t.Pending(),
	}
}

// HandleData merges one inbound message.
func (t *Topic) HandleData(data *messaging.Data) {
	if t.closed {
		return
	}
	message := Message{
		Seq:       data.Seq,
		From:      data.From,
		Text:      data.Text(),
		Timestamp: data.Timestamp,
	}
	if t.page != nil && (t.page.before == 0 || data.Seq < t.page.before) {
		t.page.batch = append(t.page.batch, message)
		return
	}

	inserted, ok := t.insert(message)
	if !ok {
		t.metrics.duplicate(SourceLive)
		t.logger.Debug("duplicate ignored", "seq", data.Seq, "source", SourceLive)
		return
	}
	t.notify(TopicEvent{Kind: EventAppended, Message: inserted})
	t.resolveEcho(inserted)

	if tail, _ := t.tail(); t.active && tail.Seq == inserted.Seq && !inserted.Outgoing {
		if err := t.MarkRead(inserted.Seq); err != nil {
			t.logger.Warn("auto read failed", "seq", inserted.Seq, "error", err)
		}
	}
}

// HandleCtrl closes a history page that arrived as part of a sub. Page
// replies to LoadOlder are handled by its reply callback.
func (t *Topic) HandleCtrl(ctrl *messaging.Ctrl) {
	if t.page == nil || ctrl.RequestID() != t.page.requestID || !t.page.initial {
		return
	}
	what, _ := ctrl.ParamString("what")
	if what == "data" || !ctrl.Success() {
		t.completePage(ctrl, nil)
	}
}

// HandleMeta applies a topic description and member receipts.
func (t *Topic) HandleMeta(meta *messaging.Meta) {
	if t.closed {
		return
	}
	if desc := meta.Desc; desc != nil {
		t.displayName = desc.Public.DisplayName(t.name)
		t.online = desc.Online
		if desc.Seq > t.maxSeq {
			t.maxSeq = desc.Seq
		}
		if page := t.page; page != nil && page.initial && page.before == 0 {
			page.before = desc.Seq + 1
		}
		if read := min(desc.Read, t.maxSeq); read > t.readSeq {
			t.setReadSeq(read)
		}
		t.notify(TopicEvent{Kind: EventDescribed})
	}
	self := t.transport.UserID()
	for _, sub := range meta.Sub {
		if sub.User == "" || sub.User == self {
			continue
		}
		t.applyReceipt(StatusDelivered, sub.Recv)
		t.applyReceipt(StatusRead, sub.Read)
	}
}

// HandleInfo applies read and delivery receipts. A read receipt from
// the local user's other sessions moves the read position instead.
func (t *Topic) HandleInfo(info *messaging.Info) {
	if t.closed {
		return
	}
	self := info.From != "" && info.From == t.transport.UserID()
	switch info.What {
	case "read":
		if self {
			if seq := min(info.Seq, t.maxSeq); seq > t.readSeq {
				t.setReadSeq(seq)
			}
			return
		}
		t.applyReceipt(StatusRead, info.Seq)
	case "recv":
		if !self {
			t.applyReceipt(StatusDelivered, info.Seq)
		}
	}
}

// applyReceipt upgrades outgoing messages with seq <= upTo. Statuses
// only move forward.
func (t *Topic) applyReceipt(status Status, upTo int) {
	watermark := &t.peerRecv
	if status == StatusRead {
		watermark = &t.peerRead
	}
	if upTo <= *watermark {
		return
	}
	*watermark = upTo

	end, _ := slices.BinarySearchFunc(t.messages, upTo+1, compareSeq)
	for i := range t.messages[:end] {
		message := &t.messages[i]
		if message.Outgoing && message.Status < status {
			message.Status = status
			t.notify(TopicEvent{Kind: EventUpdated, Message: *message})
		}
	}
}

// completePage merges the collected page. A nil ctrl with err, or an
// error ctrl, still merges what arrived and then reports the failure.
func (t *Topic) completePage(ctrl *messaging.Ctrl, err error) {
	page := t.page
	if page == nil {
		return
	}
	t.page = nil
	if err == nil && !ctrl.Success() {
		err = messaging.ReplyErrorFrom(ctrl)
	}
	t.mergeBatch(page.batch, SourceHistory)
	if err != nil {
		t.logger.Warn("history page failed", "request_id", page.requestID, "error", err)
		t.notify(TopicEvent{Kind: EventHistoryFailed, Err: err})
	}
}

func (t *Topic) mergeBatch(batch []Message, source string) {
	slices.SortStableFunc(batch, func(a, b Message) int { return cmp.Compare(a.Seq, b.Seq) })
	var inserted []Message
	for _, message := range batch {
		if message.Seq <= 0 {
			continue
		}
		stored, ok := t.insert(message)
		if !ok {
			t.metrics.duplicate(source)
			t.logger.Debug("duplicate ignored", "seq", message.Seq, "source", source)
			continue
		}
		inserted = append(inserted, stored)
	}
	if len(inserted) == 0 {
		return
	}
	t.notify(TopicEvent{Kind: EventHistoryPrepended, Batch: inserted})
	for _, message := range inserted {
		t.resolveEcho(message)
	}
}

// insert places message at its seq position. It reports false for a
// seq that is already present.
func (t *Topic) insert(message Message) (Message, bool) {
	index, found := slices.BinarySearchFunc(t.messages, message.Seq, compareSeq)
	if found {
		return Message{}, false
	}
	message.Outgoing = message.From != "" && message.From == t.transport.UserID()
	if message.Outgoing {
		// A status carried in (from the cache) is kept when it is
		// ahead of what the receipts seen so far give.
		switch {
		case message.Seq <= t.peerRead:
			message.Status = StatusRead
		case message.Seq <= t.peerRecv:
			message.Status = max(message.Status, StatusDelivered)
		}
	} else {
		message.Status = StatusSent
	}
	t.messages = slices.Insert(t.messages, index, message)
	if message.Seq > t.maxSeq {
		t.maxSeq = message.Seq
	}
	return message, true
}

func (t *Topic) resolveEcho(message Message) {
	if !message.Outgoing {
		return
	}
	for _, send := range t.pending {
		if send.Seq == message.Seq {
			t.resolve(send)
			return
		}
	}
}

func (t *Topic) find(seq int) (Message, bool) {
	index, found := slices.BinarySearchFunc(t.messages, seq, compareSeq)
	if !found {
		return Message{}, false
	}
	return t.messages[index], true
}

func (t *Topic) tail() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

func (t *Topic) setReadSeq(seq int) {
	t.readSeq = seq
	t.notify(TopicEvent{Kind: EventReadPosition, ReadSeq: seq})
}

func (t *Topic) notify(event TopicEvent) {
	event.Topic = t.name
	t.observers.Notify(event)
}

func compareSeq(message Message, seq int) int {
	return cmp.Compare(message.Seq, seq)
}
