// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const self = "usrSelf"

// sentRequest is one request the code under test issued.
type sentRequest struct {
	ID      int64
	Message *messaging.ClientMessage
}

// fakeSession plays messaging.Session: it records requests, and the
// test answers them with reply or fail. Inbound envelopes go through
// the same observer order as the real Session.
type fakeSession struct {
	t *testing.T

	nextID   int64
	userID   string
	requests []sentRequest
	replies  map[int64]messaging.ReplyFunc
	topics   map[int64]string

	// err fails every Request while set.
	err error

	dropped int
	cleared int

	ctrl       messaging.Observers[*messaging.Ctrl]
	data       messaging.Observers[*messaging.Data]
	pres       messaging.Observers[*messaging.Pres]
	meta       messaging.Observers[*messaging.Meta]
	info       messaging.Observers[*messaging.Info]
	disconnect messaging.Observers[*messaging.ConnectionError]
}

var _ Session = (*fakeSession)(nil)

func newFakeSession(t *testing.T) *fakeSession {
	return &fakeSession{
		t:       t,
		userID:  self,
		replies: make(map[int64]messaging.ReplyFunc),
		topics:  make(map[int64]string),
	}
}

func (s *fakeSession) Request(message *messaging.ClientMessage, onReply messaging.ReplyFunc) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if message.Kind() == "" {
		s.t.Fatalf("Request with malformed message %+v", message)
	}
	s.nextID++
	id := s.nextID
	// Callers may zero secrets once Request returns, as the real
	// Session has encoded them by then.
	copied := *message
	if message.Login != nil {
		login := *message.Login
		login.Secret = bytes.Clone(login.Secret)
		copied.Login = &login
	}
	if message.Acc != nil {
		acc := *message.Acc
		acc.Secret = bytes.Clone(acc.Secret)
		copied.Acc = &acc
	}
	s.requests = append(s.requests, sentRequest{ID: id, Message: &copied})
	s.topics[id] = message.Topic()
	if onReply != nil {
		s.replies[id] = onReply
	}
	return id, nil
}

func (s *fakeSession) UserID() string { return s.userID }

func (s *fakeSession) DropSubscriptions() error {
	s.dropped++
	return nil
}

func (s *fakeSession) ClearCredentials() { s.cleared++ }

func (s *fakeSession) OnCtrl(handler func(*messaging.Ctrl)) func() { return s.ctrl.Observe(handler) }
func (s *fakeSession) OnData(handler func(*messaging.Data)) func() { return s.data.Observe(handler) }
func (s *fakeSession) OnPres(handler func(*messaging.Pres)) func() { return s.pres.Observe(handler) }
func (s *fakeSession) OnMeta(handler func(*messaging.Meta)) func() { return s.meta.Observe(handler) }
func (s *fakeSession) OnInfo(handler func(*messaging.Info)) func() { return s.info.Observe(handler) }
func (s *fakeSession) OnDisconnect(handler func(*messaging.ConnectionError)) func() {
	return s.disconnect.Observe(handler)
}

// reply answers request id with a ctrl, calling its reply callback
// first and then the ctrl observers.
func (s *fakeSession) reply(id int64, code int, params map[string]any) *messaging.Ctrl {
	s.t.Helper()
	ctrl := &messaging.Ctrl{
		ID:     strconv.FormatInt(id, 10),
		Topic:  s.topics[id],
		Code:   code,
		Params: params,
	}
	if onReply, ok := s.replies[id]; ok {
		delete(s.replies, id)
		onReply(ctrl, nil)
	}
	s.ctrl.Notify(ctrl)
	return ctrl
}

// fail fails every outstanding reply and notifies disconnect
// observers, as a lost connection does.
func (s *fakeSession) fail() {
	err := &messaging.ConnectionError{Op: "read", Err: errFakeConnection}
	for id, onReply := range s.replies {
		delete(s.replies, id)
		onReply(nil, err)
	}
	s.disconnect.Notify(err)
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errFakeConnection = fakeError("connection reset")

func (s *fakeSession) pushData(topic string, seq int, from, text string) {
	s.data.Notify(&messaging.Data{
		Topic:     topic,
		From:      from,
		Seq:       seq,
		Timestamp: epoch.Add(time.Duration(seq) * time.Second),
		Content:   []byte(strconv.Quote(text)),
	})
}

// requestsOf returns the recorded requests of kind.
func (s *fakeSession) requestsOf(kind string) []sentRequest {
	var matched []sentRequest
	for _, request := range s.requests {
		if request.Message.Kind() == kind {
			matched = append(matched, request)
		}
	}
	return matched
}

// last returns the most recent request of kind.
func (s *fakeSession) last(kind string) sentRequest {
	s.t.Helper()
	matched := s.requestsOf(kind)
	if len(matched) == 0 {
		s.t.Fatalf("no %s request sent; requests: %d", kind, len(s.requests))
	}
	return matched[len(matched)-1]
}

type allowGate bool

func (g allowGate) Authenticated() bool { return bool(g) }

// eventLog records events in order.
type eventLog[T any] struct {
	events []T
}

func (l *eventLog[T]) record(event T) { l.events = append(l.events, event) }

func (l *eventLog[T]) reset() { l.events = nil }

func newFakeClock() *clock.FakeClock { return clock.Fake(epoch) }
