// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotAuthenticated is returned by operations that need a logged
	// in session.
	ErrNotAuthenticated = errors.New("chat: not authenticated")

	// ErrInvalidState is returned by an auth step that does not apply
	// to the current state.
	ErrInvalidState = errors.New("chat: operation not valid in the current auth state")

	// ErrAuthInFlight is returned while an auth request awaits its
	// reply.
	ErrAuthInFlight = errors.New("chat: an auth request is already in flight")

	// ErrNotSubscribed is returned by topic operations that need an
	// active subscription.
	ErrNotSubscribed = errors.New("chat: topic not subscribed")

	// ErrPageInFlight is returned by LoadOlder while a history page is
	// outstanding.
	ErrPageInFlight = errors.New("chat: a history page is already loading")

	// ErrNoOlderHistory is returned by LoadOlder when seq 1 is already
	// loaded.
	ErrNoOlderHistory = errors.New("chat: no older history")

	// ErrEmptyMessage is returned by Send for blank text.
	ErrEmptyMessage = errors.New("chat: empty message")
)

// AuthReason classifies an AuthError for the UI to render.
type AuthReason int

const (
	// ReasonInvalidCredentials: wrong username, password, or token.
	ReasonInvalidCredentials AuthReason = iota + 1

	// ReasonInvalidCode: the one-time code was rejected.
	ReasonInvalidCode

	// ReasonAccountExists: the requested username is taken.
	ReasonAccountExists

	// ReasonInvalidInput: local validation failed before sending.
	ReasonInvalidInput

	// ReasonRejected: any other server refusal.
	ReasonRejected

	// ReasonConnection: the connection dropped before a reply.
	ReasonConnection
)

// AuthError is a recoverable authentication failure. Message is safe
// to show a user; Cause holds the protocol-level detail for logs.
type AuthError struct {
	Reason AuthReason

	// Field names the offending input for ReasonInvalidInput.
	Field string

	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chat: auth: %s: %v", e.Message, e.Cause)
	}
	return "chat: auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Cause }

// SendTimeout reports a send that was not confirmed in time. The
// pending send stays unresolved; it is not retried.
type SendTimeout struct {
	CorrelationID int64
	Topic         string
	Timeout       time.Duration
}

func (e *SendTimeout) Error() string {
	return fmt.Sprintf("chat: send %d to %s not confirmed within %v", e.CorrelationID, e.Topic, e.Timeout)
}
