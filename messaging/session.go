// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pulse-chat/pulse/lib/secret"
)

// SessionConfig holds the parameters for NewSession.
type SessionConfig struct {
	// Dialer opens each connection. Required.
	Dialer Dialer

	// Executor receives every dispatch and reply callback. Required;
	// normally a *Loop.
	Executor Executor

	// Version, UserAgent, and Language fill the hi handshake.
	Version   string
	UserAgent string
	Language  string

	// Metrics may be nil.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ReplyFunc receives the ctrl answering a request. When the connection
// is lost first, ctrl is nil and err is the *ConnectionError.
type ReplyFunc func(ctrl *Ctrl, err error)

// Session owns the connection to the server. Its methods are safe for
// concurrent use; callbacks and observers run on the Executor.
type Session struct {
	dialer    Dialer
	executor  Executor
	version   string
	userAgent string
	language  string
	metrics   *Metrics
	logger    *slog.Logger

	requestCounter atomic.Int64

	mu            sync.Mutex
	current       *connection
	closed        bool
	token         *secret.Buffer
	userID        string
	pending       map[int64]*pendingRequest
	subscriptions map[string]struct{}

	ctrl        Observers[*Ctrl]
	data        Observers[*Data]
	pres        Observers[*Pres]
	meta        Observers[*Meta]
	info        Observers[*Info]
	disconnects Observers[*ConnectionError]
}

type pendingRequest struct {
	kind    string
	topic   string
	onReply ReplyFunc
	conn    *connection
}

// connection is one physical connection. handshakeSent is guarded by
// Session.mu; outbox by its own mutex.
type connection struct {
	id   string
	conn Conn

	handshakeSent bool

	outboxMu sync.Mutex
	outbox   [][]byte
	wake     chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func (c *connection) enqueue(frame []byte) {
	c.outboxMu.Lock()
	c.outbox = append(c.outbox, frame)
	c.outboxMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// NewSession creates a disconnected session.
func NewSession(config SessionConfig) (*Session, error) {
	if config.Dialer == nil {
		return nil, errors.New("messaging: Dialer is required")
	}
	if config.Executor == nil {
		return nil, errors.New("messaging: Executor is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		dialer:        config.Dialer,
		executor:      config.Executor,
		version:       config.Version,
		userAgent:     config.UserAgent,
		language:      config.Language,
		metrics:       config.Metrics,
		logger:        logger,
		pending:       make(map[int64]*pendingRequest),
		subscriptions: make(map[string]struct{}),
	}, nil
}

// Connect dials a new connection. A failed dial returns a
// *ConnectionError; the caller decides whether and when to retry.
// Connect may be called again after the connection is lost.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.current != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	c := &connection{
		id:   uuid.NewString(),
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed || s.current != nil {
		closed := s.closed
		s.mu.Unlock()
		conn.Close()
		if closed {
			return ErrClosed
		}
		return ErrAlreadyConnected
	}
	s.current = c
	s.mu.Unlock()

	s.metrics.connected()
	s.logger.Info("connected", "connection_id", c.id)

	go s.readLoop(c)
	go s.writeLoop(c)
	return nil
}

// Handshake sends hi. It must be the first request on each connection
// and may be sent only once per connection.
func (s *Session) Handshake(onReply ReplyFunc) (int64, error) {
	return s.Request(&ClientMessage{Hi: &Hi{
		Version:   s.version,
		UserAgent: s.userAgent,
		Language:  s.language,
	}}, onReply)
}

// Send transmits a request whose reply, if any, the caller does not
// need correlated.
func (s *Session) Send(message *ClientMessage) (int64, error) {
	return s.Request(message, nil)
}

// Request assigns message the next request id, writes the id into the
// message, and queues it for transmission. onReply, when non-nil, is
// called once with the first ctrl carrying that id. Request never
// waits for the network.
func (s *Session) Request(message *ClientMessage, onReply ReplyFunc) (int64, error) {
	kind := message.Kind()
	if kind == "" {
		return 0, ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	c := s.current
	if c == nil {
		return 0, ErrNotConnected
	}
	if kind == "hi" {
		if c.handshakeSent {
			return 0, ErrHandshakeSent
		}
	} else if !c.handshakeSent {
		return 0, ErrHandshakeRequired
	}

	id := s.requestCounter.Add(1)
	message.setID(strconv.FormatInt(id, 10))
	frame, err := Encode(message)
	if err != nil {
		return 0, fmt.Errorf("messaging: encoding %s: %w", kind, err)
	}

	if kind == "hi" {
		c.handshakeSent = true
	}
	if onReply != nil || kind == "sub" || kind == "leave" {
		s.pending[id] = &pendingRequest{kind: kind, topic: message.Topic(), onReply: onReply, conn: c}
	}
	c.enqueue(frame)
	s.metrics.request(kind)
	s.logger.Debug("request queued", "connection_id", c.id, "request_id", id, "kind", kind, "topic", message.Topic())
	return id, nil
}

// Disconnect closes the current connection without notifying
// disconnect observers. Outstanding replies fail with a
// *ConnectionError.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c != nil {
		s.teardown(c, "close", errors.New("disconnected by client"), false)
	}
}

// Close disconnects and releases the session token. The Session cannot
// be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Disconnect()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	if s.token != nil {
		err := s.token.Close()
		s.token = nil
		return err
	}
	return nil
}

// Connected reports whether a connection is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// ConnectionID identifies the open connection in logs, or "".
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.id
}

// Token returns a heap copy of the session token, or "" before the
// server has issued one.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return ""
	}
	return s.token.String()
}

// UserID returns the authenticated user id, or "".
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// ClearCredentials forgets the token and user id.
func (s *Session) ClearCredentials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	if s.token != nil {
		s.token.Close()
		s.token = nil
	}
}

// Subscriptions lists the topics with a confirmed subscription.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.subscriptions))
	for topic := range s.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// DropSubscriptions forgets every subscription and, when connected,
// sends leave for each.
func (s *Session) DropSubscriptions() error {
	topics := s.Subscriptions()
	s.mu.Lock()
	s.subscriptions = make(map[string]struct{})
	s.mu.Unlock()

	var errs []error
	for _, topic := range topics {
		_, err := s.Send(&ClientMessage{Leave: &Leave{Topic: topic}})
		if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("leaving %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// OnCtrl observes every ctrl, after any reply callback for it.
func (s *Session) OnCtrl(handler func(*Ctrl)) (cancel func()) { return s.ctrl.Observe(handler) }

// OnData observes data envelopes.
func (s *Session) OnData(handler func(*Data)) (cancel func()) { return s.data.Observe(handler) }

// OnPres observes pres envelopes.
func (s *Session) OnPres(handler func(*Pres)) (cancel func()) { return s.pres.Observe(handler) }

// OnMeta observes meta envelopes.
func (s *Session) OnMeta(handler func(*Meta)) (cancel func()) { return s.meta.Observe(handler) }

// OnInfo observes info envelopes.
func (s *Session) OnInfo(handler func(*Info)) (cancel func()) { return s.info.Observe(handler) }

// OnDisconnect observes connections lost to read or write failures.
func (s *Session) OnDisconnect(handler func(*ConnectionError)) (cancel func()) {
	return s.disconnects.Observe(handler)
}

func (s *Session) readLoop(c *connection) {
	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			s.teardown(c, "read", err, true)
			return
		}
		message, err := Decode(frame)
		if err != nil {
			var protocolErr *ProtocolError
			errors.As(err, &protocolErr)
			s.metrics.dropped(protocolErr.Reason)
			s.logger.Warn("dropping malformed envelope",
				"connection_id", c.id,
				"reason", protocolErr.Reason,
				"error", protocolErr.Err,
				"frame", protocolErr.Frame,
			)
			continue
		}
		s.executor.Post(func() { s.dispatch(message) })
	}
}

func (s *Session) writeLoop(c *connection) {
	for {
		c.outboxMu.Lock()
		batch := c.outbox
		c.outbox = nil
		c.outboxMu.Unlock()

		for _, frame := range batch {
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.conn.WriteFrame(frame); err != nil {
				s.teardown(c, "write", err, true)
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-c.done:
			return
		case <-c.wake:
		}
	}
}

// teardown closes c exactly once, fails its outstanding replies, and
// when notify is set tells disconnect observers.
func (s *Session) teardown(c *connection, op string, cause error, notify bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()

		connErr := &ConnectionError{Op: op, ConnectionID: c.id, Err: cause}

		s.mu.Lock()
		if s.current == c {
			s.current = nil
		}
		var orphaned []int64
		callbacks := make(map[int64]ReplyFunc)
		for id, request := range s.pending {
			if request.conn != c {
				continue
			}
			delete(s.pending, id)
			if request.onReply != nil {
				orphaned = append(orphaned, id)
				callbacks[id] = request.onReply
			}
		}
		s.mu.Unlock()
		sort.Slice(orphaned, func(i, j int) bool { return orphaned[i] < orphaned[j] })

		if notify {
			s.metrics.disconnected()
			s.logger.Warn("connection lost", "connection_id", c.id, "op", op, "error", cause, "orphaned_replies", len(orphaned))
		} else {
			s.logger.Info("disconnected", "connection_id", c.id, "orphaned_replies", len(orphaned))
		}

		s.executor.Post(func() {
			for _, id := range orphaned {
				callbacks[id](nil, connErr)
			}
			if notify {
				s.disconnects.Notify(connErr)
			}
		})
	})
}

func (s *Session) dispatch(message *ServerMessage) {
	kind := message.Kind()
	s.metrics.received(kind)
	switch kind {
	case "ctrl":
		s.handleCtrl(message.Ctrl)
	case "data":
		s.data.Notify(message.Data)
	case "pres":
		s.pres.Notify(message.Pres)
	case "meta":
		s.meta.Notify(message.Meta)
	case "info":
		s.info.Notify(message.Info)
	}
}

// codeNotModified answers a sub for a topic that is already subscribed.
const codeNotModified = 304

func (s *Session) handleCtrl(ctrl *Ctrl) {
	id := ctrl.RequestID()

	s.mu.Lock()
	var request *pendingRequest
	if id != 0 {
		request = s.pending[id]
		delete(s.pending, id)
	}
	if ctrl.Success() {
		if token, ok := ctrl.ParamString("token"); ok {
			s.setTokenLocked(token)
		}
		if user, ok := ctrl.ParamString("user"); ok {
			s.userID = user
		}
	}
	if request != nil {
		switch {
		case request.kind == "sub" && (ctrl.Success() || ctrl.Code == codeNotModified):
			s.subscriptions[request.topic] = struct{}{}
		case request.kind == "leave" && ctrl.Success():
			delete(s.subscriptions, request.topic)
		}
	}
	s.mu.Unlock()

	if request != nil && request.onReply != nil {
		request.onReply(ctrl, nil)
	}
	s.ctrl.Notify(ctrl)
}

func (s *Session) setTokenLocked(token string) {
	protected, err := secret.ProtectString(token)
	if err != nil {
		s.logger.Error("protecting session token", "error", err)
		return
	}
	if s.token != nil {
		s.token.Close()
	}
	s.token = protected
}
