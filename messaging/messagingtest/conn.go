// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagingtest provides an in-memory server side for
// messaging.Session tests.
//
// A [Dialer] hands out [Conn] values. The test plays the server: it
// reads what the client wrote with [Conn.Next] and answers with
// [Conn.Push].
//
//	dialer := messagingtest.NewDialer()
//	session, _ := messaging.NewSession(messaging.SessionConfig{Dialer: dialer, Executor: loop})
//	session.Connect(ctx)
//	conn := dialer.Accept(t)
//	hi := conn.Next(t)
//	conn.Push(t, map[string]any{"ctrl": map[string]any{"id": hi.Hi.ID, "code": 201}})
package messagingtest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pulse-chat/pulse/lib/testutil"
	"github.com/pulse-chat/pulse/messaging"
)

// Timeout bounds every wait in this package.
const Timeout = 5 * time.Second

// Dialer creates a new Conn per Dial. Set Err to make the next dials
// fail.
type Dialer struct {
	mu  sync.Mutex
	err error

	conns chan *Conn
}

// NewDialer returns a Dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{conns: make(chan *Conn, 16)}
}

// FailWith makes subsequent dials fail with err (nil restores).
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dial implements messaging.Dialer.
func (d *Dialer) Dial(ctx context.Context) (messaging.Conn, error) {
	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := NewConn()
	d.conns <- conn
	return conn, nil
}

// Accept returns the server side of the next dialed connection.
func (d *Dialer) Accept(t testutil.T) *Conn {
	t.Helper()
	return testutil.RequireReceive(t, d.conns, Timeout, "waiting for the client to dial")
}

// Conn is both ends of one fake connection.
type Conn struct {
	toClient   chan []byte
	fromClient chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	readErr error
}

// NewConn returns an open connection.
func NewConn() *Conn {
	return &Conn{
		toClient:   make(chan []byte, 256),
		fromClient: make(chan []byte, 256),
		closed:     make(chan struct{}),
	}
}

// ReadFrame implements messaging.Conn.
func (c *Conn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.toClient:
		return frame, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
}

// WriteFrame implements messaging.Conn.
func (c *Conn) WriteFrame(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("messagingtest: write on closed connection")
	default:
	}
	c.fromClient <- append([]byte(nil), frame...)
	return nil
}

// Close implements messaging.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed is closed once either side closes the connection.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Sever simulates a network failure: the client's pending read
// returns err.
func (c *Conn) Sever(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.Close()
}

// PushRaw delivers a frame to the client verbatim.
func (c *Conn) PushRaw(frame []byte) {
	c.toClient <- frame
}

// Push marshals envelope to JSON and delivers it to the client.
func (c *Conn) Push(t testutil.T, envelope any) {
	t.Helper()
	frame, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshalling pushed envelope: %v", err)
	}
	c.PushRaw(frame)
}

// NextFrame returns the next frame the client wrote.
func (c *Conn) NextFrame(t testutil.T) []byte {
	t.Helper()
	return testutil.RequireReceive(t, c.fromClient, Timeout, "waiting for a client frame")
}

// Next decodes the next frame the client wrote.
func (c *Conn) Next(t testutil.T) *messaging.ClientMessage {
	t.Helper()
	frame := c.NextFrame(t)
	var message messaging.ClientMessage
	if err := json.Unmarshal(frame, &message); err != nil {
		t.Fatalf("client wrote undecodable frame %s: %v", frame, err)
	}
	return &message
}

// ExpectQuiet fails if the client writes anything within wait.
func (c *Conn) ExpectQuiet(t testutil.T, wait time.Duration) {
	t.Helper()
	testutil.RequireNoReceive(t, c.fromClient, wait, "client wrote unexpectedly")
}

// Ctrl builds a ctrl envelope for Push.
func Ctrl(id string, code int, params map[string]any) map[string]any {
	ctrl := map[string]any{"id": id, "code": code, "ts": time.Now().UTC().Format(time.RFC3339Nano)}
	if params != nil {
		ctrl["params"] = params
	}
	return map[string]any{"ctrl": ctrl}
}
