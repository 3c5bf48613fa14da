// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by requests made while no connection
	// is open.
	ErrNotConnected = errors.New("messaging: not connected")

	// ErrAlreadyConnected is returned by Connect on a live connection.
	ErrAlreadyConnected = errors.New("messaging: already connected")

	// ErrClosed is returned by every operation after Session.Close.
	ErrClosed = errors.New("messaging: session closed")

	// ErrHandshakeRequired is returned by any request other than hi
	// before the handshake has been sent on the current connection.
	ErrHandshakeRequired = errors.New("messaging: handshake required before other requests")

	// ErrHandshakeSent is returned by a second hi on one connection.
	ErrHandshakeSent = errors.New("messaging: handshake already sent on this connection")

	// ErrInvalidRequest is returned for a ClientMessage that does not
	// set exactly one envelope.
	ErrInvalidRequest = errors.New("messaging: request must set exactly one envelope")
)

// ConnectionError is a dial, read, or write failure. It is fatal to
// the connection it happened on; the Session must Connect again.
type ConnectionError struct {
	// Op is "dial", "read", or "write".
	Op string

	// ConnectionID identifies the connection in logs. Empty for dial
	// failures.
	ConnectionID string

	Err error
}

func (e *ConnectionError) Error() string {
	if e.ConnectionID == "" {
		return fmt.Sprintf("messaging: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("messaging: connection %s: %s: %v", e.ConnectionID, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Protocol error reasons, also used as metric labels.
const (
	ReasonInvalidJSON   = "invalid_json"
	ReasonEnvelopeShape = "envelope_shape"
	ReasonUnknownKind   = "unknown_kind"
	ReasonInvalidField  = "invalid_field"
)

// ProtocolError is an inbound frame that could not be dispatched. The
// Session logs and drops it; it never reaches an observer.
type ProtocolError struct {
	Reason string

	// Frame is the offending frame, truncated for logging.
	Frame string

	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("messaging: protocol error (%s): %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ReplyError is a ctrl reply with a failure code. Text is the
// server's wording and is meant for logs, not for users.
type ReplyError struct {
	RequestID int64
	Topic     string
	Code      int
	Text      string
}

func (e *ReplyError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("messaging: request %d on %s: %d %s", e.RequestID, e.Topic, e.Code, e.Text)
	}
	return fmt.Sprintf("messaging: request %d: %d %s", e.RequestID, e.Code, e.Text)
}

// ReplyErrorFrom returns a *ReplyError for a failed ctrl, or nil for
// a successful one.
func ReplyErrorFrom(ctrl *Ctrl) error {
	if ctrl.Success() {
		return nil
	}
	return &ReplyError{
		RequestID: ctrl.RequestID(),
		Topic:     ctrl.Topic,
		Code:      ctrl.Code,
		Text:      ctrl.Text,
	}
}

// IsReplyCode reports whether err is a *ReplyError with the given code.
func IsReplyCode(err error, code int) bool {
	var replyErr *ReplyError
	if errors.As(err, &replyErr) {
		return replyErr.Code == code
	}
	return false
}
