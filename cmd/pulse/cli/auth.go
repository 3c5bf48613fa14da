// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"time"

	"github.com/pulse-chat/pulse/chat"
	"github.com/pulse-chat/pulse/lib/credstore"
)

// AuthTimeout bounds each wait for an auth reply.
const AuthTimeout = 30 * time.Second

// AuthWatch buffers auth events from the loop for a command
// goroutine.
type AuthWatch struct {
	events chan chat.AuthEvent
	cancel func()
}

// WatchAuth starts buffering auth events. Close the watch when done.
func (e *Environment) WatchAuth(ctx context.Context) (*AuthWatch, error) {
	watch := &AuthWatch{events: make(chan chat.AuthEvent, 16)}
	err := e.Do(ctx, func() {
		watch.cancel = e.Client.Auth().OnEvent(func(event chat.AuthEvent) {
			select {
			case watch.events <- event:
			default:
			}
		})
	})
	if err != nil {
		return nil, Internal("watching auth: %w", err)
	}
	return watch, nil
}

// Wait returns the first event that carries an error or satisfies
// done. An event carrying an error is returned with that error
// mapped to a CommandError.
func (w *AuthWatch) Wait(ctx context.Context, done func(chat.AuthEvent) bool) (chat.AuthEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, AuthTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.events:
			if event.Err != nil {
				return event, AuthFailure(event.Err)
			}
			if done(event) {
				return event, nil
			}
		case <-ctx.Done():
			return chat.AuthEvent{}, Transient("no reply from the server: %w", ctx.Err())
		}
	}
}

// Close stops buffering.
func (w *AuthWatch) Close() {
	if w.cancel != nil {
		w.cancel()
	}
}

// Authenticated is a Wait predicate.
func Authenticated(event chat.AuthEvent) bool {
	return event.State == chat.StateAuthenticated
}

// AuthFailure maps an auth error to a CommandError carrying only the
// user-facing message.
func AuthFailure(err error) error {
	var authErr *chat.AuthError
	if !errors.As(err, &authErr) {
		return Internal("%w", err)
	}
	switch authErr.Reason {
	case chat.ReasonInvalidInput:
		return Validation("%s", authErr.Message)
	case chat.ReasonConnection:
		return Transient("%s", authErr.Message)
	default:
		return Auth("%s", authErr.Message)
	}
}

// Authenticate runs start on the loop and waits for the session to
// authenticate.
func (e *Environment) Authenticate(ctx context.Context, start func(*chat.Auth) error) (chat.AuthEvent, error) {
	watch, err := e.WatchAuth(ctx)
	if err != nil {
		return chat.AuthEvent{}, err
	}
	defer watch.Close()

	var startErr error
	if err := e.Do(ctx, func() { startErr = start(e.Client.Auth()) }); err != nil {
		return chat.AuthEvent{}, Internal("%w", err)
	}
	if startErr != nil {
		return chat.AuthEvent{}, AuthFailure(startErr)
	}
	return watch.Wait(ctx, Authenticated)
}

// SaveSession persists the token from an authenticated event, falling
// back to the token the session captured.
func (e *Environment) SaveSession(event chat.AuthEvent) error {
	token := event.Token
	if token == "" {
		token = e.Session.Token()
	}
	if token == "" {
		return Internal("server issued no session token")
	}
	err := e.Credentials.Save(credstore.Record{
		Server:  e.Config.Server.URL,
		UserID:  event.UserID,
		Token:   token,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return Internal("saving session: %w", err)
	}
	return nil
}

// RestoreSession authenticates with the stored token. A token the
// server refuses is removed from the store.
func (e *Environment) RestoreSession(ctx context.Context) (chat.AuthEvent, error) {
	record, err := e.Credentials.Load()
	if errors.Is(err, credstore.ErrNotFound) {
		return chat.AuthEvent{}, Validation("not logged in (run 'pulse login' first)")
	}
	if err != nil {
		return chat.AuthEvent{}, Internal("loading session: %w", err)
	}
	if record.Server != e.Config.Server.URL {
		return chat.AuthEvent{}, Validation("stored session is for %s, not %s (run 'pulse login')", record.Server, e.Config.Server.URL)
	}

	event, err := e.Authenticate(ctx, func(auth *chat.Auth) error {
		return auth.RestoreSession(record.Token)
	})
	if err == nil {
		return event, nil
	}
	var commandErr *CommandError
	if errors.As(err, &commandErr) && commandErr.Category == CategoryAuth {
		if clearErr := e.Credentials.Clear(); clearErr != nil {
			e.Logger.Warn("clearing refused session", "error", clearErr)
		}
		return chat.AuthEvent{}, Auth("stored session was refused (run 'pulse login'): %w", err)
	}
	return chat.AuthEvent{}, err
}
