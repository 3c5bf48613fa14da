// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pulse-chat/pulse/lib/secret"
	"github.com/pulse-chat/pulse/messaging"
)

// AuthState is the position in the login state machine.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateAwaitingCode
	StateAuthenticated
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Login schemes.
const (
	SchemeBasic = "basic"
	SchemeToken = "token"
	SchemeCode  = "code"
)

// AuthEvent is emitted on every state change and every failed attempt.
type AuthEvent struct {
	State AuthState

	// Err is set when an attempt failed. State is the state the flow
	// remains in.
	Err *AuthError

	// UserID and Token are set when State becomes StateAuthenticated.
	// The caller persists Token; Auth never does.
	UserID string
	Token  string

	// CodeSent is set when the server confirms it sent a one-time
	// code, so the caller knows to prompt for it.
	CodeSent bool
}

// AuthConfig holds the parameters for NewAuth.
type AuthConfig struct {
	Transport AuthTransport
	Logger    *slog.Logger
}

// Auth is the login state machine:
//
//	Unauthenticated --SubmitIdentifier--> AwaitingCode --SubmitCode--> Authenticated
//	Unauthenticated --Login/RestoreSession/CreateAccount--> Authenticated
//	any --Logout--> Unauthenticated
//
// One request may be in flight at a time. Methods must be called on
// the session's executor.
type Auth struct {
	transport AuthTransport
	logger    *slog.Logger

	state    AuthState
	userID   string
	inFlight bool

	// attempt invalidates replies that arrive after Logout.
	attempt uint64

	observers messaging.Observers[AuthEvent]
}

// NewAuth returns an Auth in StateUnauthenticated.
func NewAuth(config AuthConfig) *Auth {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{transport: config.Transport, logger: logger}
}

// State returns the current state.
func (a *Auth) State() AuthState { return a.state }

// Authenticated implements Gate.
func (a *Auth) Authenticated() bool { return a.state == StateAuthenticated }

// UserID returns the authenticated user, or "".
func (a *Auth) UserID() string { return a.userID }

// OnEvent observes state changes and failures.
func (a *Auth) OnEvent(handler func(AuthEvent)) (cancel func()) {
	return a.observers.Observe(handler)
}

// SubmitIdentifier asks the server to send a one-time code to
// identifier (a phone number or email) and moves to AwaitingCode. A
// refusal moves back to Unauthenticated with an AuthError event.
func (a *Auth) SubmitIdentifier(identifier string) error {
	if err := a.ready(StateUnauthenticated); err != nil {
		return err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return invalidInput("identifier", "Enter a phone number or email address.")
	}

	err := a.login(SchemeCode, []byte(identifier), func(ctrl *messaging.Ctrl, err error) {
		switch {
		case err != nil:
			a.setState(StateUnauthenticated)
			a.fail(ReasonConnection, err)
		case ctrl.Code >= 400:
			a.setState(StateUnauthenticated)
			a.fail(ReasonRejected, messaging.ReplyErrorFrom(ctrl))
		case ctrl.Success() && hasToken(ctrl):
			a.authenticated(ctrl)
		default:
			a.logger.Info("one-time code requested", "code", ctrl.Code)
			a.observers.Notify(AuthEvent{State: a.state, CodeSent: true})
		}
	})
	if err != nil {
		return err
	}
	a.setState(StateAwaitingCode)
	return nil
}

// SubmitCode verifies the one-time code. Success authenticates; a
// rejected code keeps AwaitingCode so the user can retry.
func (a *Auth) SubmitCode(code string) error {
	if err := a.ready(StateAwaitingCode); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return invalidInput("code", "Enter the code you received.")
	}

	return a.login(SchemeCode, []byte(code), func(ctrl *messaging.Ctrl, err error) {
		switch {
		case err != nil:
			a.fail(ReasonConnection, err)
		case ctrl.Success():
			a.authenticated(ctrl)
		default:
			a.fail(ReasonInvalidCode, messaging.ReplyErrorFrom(replyFailure(ctrl)))
		}
	})
}

// RestoreSession logs in with a stored token. On failure the flow
// stays Unauthenticated; clearing the stored token is the caller's
// decision.
func (a *Auth) RestoreSession(token string) error {
	if err := a.ready(StateUnauthenticated); err != nil {
		return err
	}
	if token == "" {
		return invalidInput("token", "No saved session.")
	}
	return a.login(SchemeToken, []byte(token), a.credentialReply)
}

// Login authenticates with a username and password.
func (a *Auth) Login(username, password string) error {
	if err := a.ready(StateUnauthenticated); err != nil {
		return err
	}
	if username == "" || password == "" {
		return invalidInput("username", "Enter your username and password.")
	}
	credentials := []byte(username + ":" + password)
	defer secret.Zero(credentials)
	return a.login(SchemeBasic, credentials, a.credentialReply)
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// MinPasswordLength is the shortest password CreateAccount accepts.
const MinPasswordLength = 6

// ValidateRegistration checks account fields before anything is sent.
func ValidateRegistration(username, password, displayName string) error {
	if !usernamePattern.MatchString(username) {
		return invalidInput("username", "Username must be 3 to 20 letters, digits, or underscores.")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return invalidInput("password", "Password must be at least 6 characters.")
	}
	if strings.TrimSpace(displayName) == "" {
		return invalidInput("display_name", "Enter a display name.")
	}
	return nil
}

// CreateAccount registers a new basic-auth account and logs into it.
func (a *Auth) CreateAccount(username, password, displayName string) error {
	if err := a.ready(StateUnauthenticated); err != nil {
		return err
	}
	if err := ValidateRegistration(username, password, displayName); err != nil {
		return err
	}

	credentials := []byte(username + ":" + password)
	defer secret.Zero(credentials)
	attempt := a.attempt
	_, err := a.transport.Request(&messaging.ClientMessage{Acc: &messaging.Acc{
		User:   "new",
		Scheme: SchemeBasic,
		Secret: credentials,
		Login:  true,
		Desc:   &messaging.SetDesc{Public: &messaging.Public{FullName: strings.TrimSpace(displayName)}},
	}}, func(ctrl *messaging.Ctrl, err error) {
		if attempt != a.attempt {
			return
		}
		a.inFlight = false
		switch {
		case err != nil:
			a.fail(ReasonConnection, err)
		case ctrl.Success():
			a.authenticated(ctrl)
		case ctrl.Code == 409:
			a.fail(ReasonAccountExists, messaging.ReplyErrorFrom(ctrl))
		default:
			a.fail(ReasonRejected, messaging.ReplyErrorFrom(replyFailure(ctrl)))
		}
	})
	if err != nil {
		return err
	}
	a.inFlight = true
	return nil
}

// Logout returns to Unauthenticated, drops every subscription, and
// clears the session's credentials. Replies to requests sent before
// Logout are ignored.
func (a *Auth) Logout() error {
	a.attempt++
	a.inFlight = false
	a.userID = ""
	err := a.transport.DropSubscriptions()
	a.transport.ClearCredentials()
	a.setState(StateUnauthenticated)
	return err
}

// connectionLost returns to Unauthenticated, since a new connection
// has to log in again. Subscriptions and credentials are kept so the
// caller can RestoreSession and resubscribe. The event carries a
// ReasonConnection error.
func (a *Auth) connectionLost(cause *messaging.ConnectionError) {
	a.attempt++
	a.inFlight = false
	if a.state == StateUnauthenticated {
		return
	}
	a.logger.Info("auth state changed", "from", a.state.String(), "to", StateUnauthenticated.String(), "error", cause)
	a.state = StateUnauthenticated
	a.userID = ""
	a.observers.Notify(AuthEvent{
		State: StateUnauthenticated,
		Err:   &AuthError{Reason: ReasonConnection, Message: reasonMessage(ReasonConnection), Cause: cause},
	})
}

func (a *Auth) ready(want AuthState) error {
	if a.state != want {
		return ErrInvalidState
	}
	if a.inFlight {
		return ErrAuthInFlight
	}
	return nil
}

func (a *Auth) login(scheme string, secretBytes []byte, onReply messaging.ReplyFunc) error {
	attempt := a.attempt
	_, err := a.transport.Request(&messaging.ClientMessage{Login: &messaging.Login{
		Scheme: scheme,
		Secret: secretBytes,
	}}, func(ctrl *messaging.Ctrl, err error) {
		if attempt != a.attempt {
			return
		}
		a.inFlight = false
		onReply(ctrl, err)
	})
	if err != nil {
		return err
	}
	a.inFlight = true
	return nil
}

func (a *Auth) credentialReply(ctrl *messaging.Ctrl, err error) {
	switch {
	case err != nil:
		a.fail(ReasonConnection, err)
	case ctrl.Success():
		a.authenticated(ctrl)
	default:
		a.fail(ReasonInvalidCredentials, messaging.ReplyErrorFrom(replyFailure(ctrl)))
	}
}

func (a *Auth) authenticated(ctrl *messaging.Ctrl) {
	userID, ok := ctrl.ParamString("user")
	if !ok {
		userID = a.transport.UserID()
	}
	token, _ := ctrl.ParamString("token")
	a.userID = userID
	a.state = StateAuthenticated
	a.logger.Info("authenticated", "user", userID)
	a.observers.Notify(AuthEvent{State: StateAuthenticated, UserID: userID, Token: token})
}

func (a *Auth) setState(state AuthState) {
	if a.state == state {
		return
	}
	a.logger.Info("auth state changed", "from", a.state.String(), "to", state.String())
	a.state = state
	a.observers.Notify(AuthEvent{State: state, UserID: a.userID})
}

func (a *Auth) fail(reason AuthReason, cause error) {
	authErr := &AuthError{Reason: reason, Message: reasonMessage(reason), Cause: cause}
	a.logger.Warn("auth attempt failed", "state", a.state.String(), "error", cause)
	a.observers.Notify(AuthEvent{State: a.state, Err: authErr})
}

func hasToken(ctrl *messaging.Ctrl) bool {
	_, ok := ctrl.ParamString("token")
	return ok
}

// replyFailure treats a 3xx reply, which asks for more steps this
// flow does not take, as a failure.
func replyFailure(ctrl *messaging.Ctrl) *messaging.Ctrl {
	if ctrl.Code < 300 {
		failed := *ctrl
		failed.Code = 400
		return &failed
	}
	return ctrl
}

func invalidInput(field, message string) *AuthError {
	return &AuthError{Reason: ReasonInvalidInput, Field: field, Message: message, Cause: errors.New("invalid " + field)}
}

func reasonMessage(reason AuthReason) string {
	switch reason {
	case ReasonInvalidCredentials:
		return "Wrong username or password."
	case ReasonInvalidCode:
		return "That code is not valid. Try again."
	case ReasonAccountExists:
		return "That username is taken."
	case ReasonConnection:
		return "Connection lost. Try again."
	}
	return "The server refused the request."
}
