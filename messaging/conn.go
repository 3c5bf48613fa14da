// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a framed, bidirectional connection. ReadFrame is called from
// one goroutine and WriteFrame from another; Close may be called from
// any goroutine and unblocks both.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Dialer opens connections for a Session.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// WebSocketDialer dials a Tinode-style websocket endpoint.
type WebSocketDialer struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// APIKey, when set, is sent as X-Tinode-APIKey on the upgrade.
	APIKey string

	// Header holds extra upgrade headers.
	Header http.Header

	// HandshakeTimeout bounds the websocket upgrade. Zero means 10s.
	HandshakeTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dial performs the websocket upgrade and starts the keepalive pinger.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	header := http.Header{}
	for key, values := range d.Header {
		header[key] = append([]string(nil), values...)
	}
	if d.APIKey != "" {
		header.Set("X-Tinode-APIKey", d.APIKey)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	socket, response, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("websocket upgrade %s: HTTP %d: %w", d.URL, response.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}
	return newWebSocketConn(socket, logger), nil
}

type webSocketConn struct {
	socket *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newWebSocketConn(socket *websocket.Conn, logger *slog.Logger) *webSocketConn {
	conn := &webSocketConn{
		socket: socket,
		logger: logger,
		closed: make(chan struct{}),
	}
	socket.SetReadLimit(maxMessageSize)
	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})
	go conn.keepalive()
	return conn
}

func (c *webSocketConn) ReadFrame() ([]byte, error) {
	for {
		messageType, frame, err := c.socket.ReadMessage()
		if err != nil {
			return nil, err
		}
		// The server never sends binary frames; skip rather than fail.
		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text websocket frame", "type", messageType)
			continue
		}
		return frame, nil
	}
}

func (c *webSocketConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.socket.WriteMessage(websocket.TextMessage, frame)
}

func (c *webSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.socket.Close()
	})
	return err
}

func (c *webSocketConn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
