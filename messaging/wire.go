// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Well-known topic names.
const (
	// TopicMe carries the user's own subscriptions and account-wide
	// presence notifications.
	TopicMe = "me"

	// TopicFind is the directory search topic.
	TopicFind = "fnd"
)

// Ctrl codes the sync layer interprets.
const (
	CodeOK        = 200
	CodeCreated   = 201
	CodeAccepted  = 202
	CodeNoContent = 204
	CodeDelivered = 208
)

// ClientMessage is one outbound envelope. Exactly one field is set.
type ClientMessage struct {
	Hi    *Hi    `json:"hi,omitempty"`
	Login *Login `json:"login,omitempty"`
	Acc   *Acc   `json:"acc,omitempty"`
	Sub   *Sub   `json:"sub,omitempty"`
	Get   *Get   `json:"get,omitempty"`
	Pub   *Pub   `json:"pub,omitempty"`
	Note  *Note  `json:"note,omitempty"`
	Leave *Leave `json:"leave,omitempty"`
}

// Hi is the handshake. It must be the first request on a connection.
type Hi struct {
	ID        string `json:"id,omitempty"`
	Version   string `json:"ver"`
	UserAgent string `json:"ua,omitempty"`
	Language  string `json:"lang,omitempty"`
}

// Login authenticates with scheme basic ("user:password"), token, or
// code.
type Login struct {
	ID     string `json:"id,omitempty"`
	Scheme string `json:"scheme"`
	Secret []byte `json:"secret"`
}

// Acc creates an account. User is "new" for a fresh account.
type Acc struct {
	ID     string   `json:"id,omitempty"`
	User   string   `json:"user"`
	Scheme string   `json:"scheme"`
	Secret []byte   `json:"secret"`
	Login  bool     `json:"login,omitempty"`
	Desc   *SetDesc `json:"desc,omitempty"`
}

// SetDesc is the descriptor attached to account creation.
type SetDesc struct {
	Public *Public `json:"public,omitempty"`
}

// Public is the publicly visible part of a user or topic descriptor.
// Only the display name is interpreted.
type Public struct {
	FullName string `json:"fn,omitempty"`
}

// Sub subscribes to a topic, optionally fetching data in the same
// round trip.
type Sub struct {
	ID    string    `json:"id,omitempty"`
	Topic string    `json:"topic"`
	Get   *GetQuery `json:"get,omitempty"`
}

// Get queries a subscribed topic.
type Get struct {
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	GetQuery
}

// GetQuery selects what a sub or get fetches. What is a space
// separated list of "desc", "sub", "data".
type GetQuery struct {
	What string   `json:"what"`
	Data *GetOpts `json:"data,omitempty"`
	Sub  *GetOpts `json:"sub,omitempty"`
}

// GetOpts bounds a data page or carries a directory query.
type GetOpts struct {
	// Before requests messages with seq strictly below it.
	Before int    `json:"before,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Query  string `json:"query,omitempty"`
}

// Pub publishes content to a topic. Content is a plain string for
// text messages.
type Pub struct {
	ID      string `json:"id,omitempty"`
	Topic   string `json:"topic"`
	NoEcho  bool   `json:"noecho,omitempty"`
	Content any    `json:"content"`
}

// Note is a fire-and-forget notification: what is "kp" (key press),
// "read", or "recv". The server never replies to a note.
type Note struct {
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

// Leave unsubscribes from a topic. Unsub also drops the persistent
// subscription server side.
type Leave struct {
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Unsub bool   `json:"unsub,omitempty"`
}

// Kind names the envelope that is set, or "" when zero or several are.
func (m *ClientMessage) Kind() string {
	kind, count := "", 0
	for name, set := range map[string]bool{
		"hi":    m.Hi != nil,
		"login": m.Login != nil,
		"acc":   m.Acc != nil,
		"sub":   m.Sub != nil,
		"get":   m.Get != nil,
		"pub":   m.Pub != nil,
		"note":  m.Note != nil,
		"leave": m.Leave != nil,
	} {
		if set {
			kind = name
			count++
		}
	}
	if count != 1 {
		return ""
	}
	return kind
}

// Topic returns the topic the request addresses, if any.
func (m *ClientMessage) Topic() string {
	switch {
	case m.Sub != nil:
		return m.Sub.Topic
	case m.Get != nil:
		return m.Get.Topic
	case m.Pub != nil:
		return m.Pub.Topic
	case m.Note != nil:
		return m.Note.Topic
	case m.Leave != nil:
		return m.Leave.Topic
	}
	return ""
}

func (m *ClientMessage) setID(id string) {
	switch {
	case m.Hi != nil:
		m.Hi.ID = id
	case m.Login != nil:
		m.Login.ID = id
	case m.Acc != nil:
		m.Acc.ID = id
	case m.Sub != nil:
		m.Sub.ID = id
	case m.Get != nil:
		m.Get.ID = id
	case m.Pub != nil:
		m.Pub.ID = id
	case m.Note != nil:
		m.Note.ID = id
	case m.Leave != nil:
		m.Leave.ID = id
	}
}

// ServerMessage is one inbound envelope. Exactly one field is set.
type ServerMessage struct {
	Ctrl *Ctrl `json:"ctrl,omitempty"`
	Data *Data `json:"data,omitempty"`
	Pres *Pres `json:"pres,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
	Info *Info `json:"info,omitempty"`
}

// Ctrl is a control reply to a request, or an unsolicited control
// message when ID is empty.
type Ctrl struct {
	ID        string         `json:"id,omitempty"`
	Topic     string         `json:"topic,omitempty"`
	Code      int            `json:"code"`
	Text      string         `json:"text,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

// RequestID parses ID. Zero means the ctrl answers no request.
func (c *Ctrl) RequestID() int64 {
	id, _ := strconv.ParseInt(c.ID, 10, 64)
	return id
}

// Success reports a code below 300. 3xx codes ask the client for more
// (credential validation, redirects) and are not successes.
func (c *Ctrl) Success() bool {
	return c.Code >= 200 && c.Code < 300
}

// ParamString returns a string parameter.
func (c *Ctrl) ParamString(key string) (string, bool) {
	value, ok := c.Params[key].(string)
	return value, ok && value != ""
}

// ParamInt returns an integer parameter. JSON numbers decode as
// float64.
func (c *Ctrl) ParamInt(key string) (int, bool) {
	switch value := c.Params[key].(type) {
	case float64:
		return int(value), true
	case json.Number:
		parsed, err := value.Int64()
		return int(parsed), err == nil
	case string:
		parsed, err := strconv.Atoi(value)
		return parsed, err == nil
	}
	return 0, false
}

// Data is one message in a topic.
type Data struct {
	Topic     string          `json:"topic"`
	From      string          `json:"from,omitempty"`
	Seq       int             `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Head      map[string]any  `json:"head,omitempty"`
	Content   json.RawMessage `json:"content"`
}

// Text extracts displayable text. Plain string content is returned as
// is; rich content objects yield their "txt" field.
func (d *Data) Text() string {
	trimmed := bytes.TrimSpace(d.Content)
	if len(trimmed) == 0 {
		return ""
	}
	var text string
	if json.Unmarshal(trimmed, &text) == nil {
		return text
	}
	var rich struct {
		Text string `json:"txt"`
	}
	if json.Unmarshal(trimmed, &rich) == nil {
		return rich.Text
	}
	return string(trimmed)
}

// Pres is a presence notification. On the me topic, Src names the
// topic or user the notification is about.
type Pres struct {
	Topic string `json:"topic"`
	Src   string `json:"src,omitempty"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

// Subject is the topic a pres is about: Src on the me topic, the
// topic itself elsewhere.
func (p *Pres) Subject() string {
	if p.Topic == TopicMe && p.Src != "" {
		return p.Src
	}
	return p.Topic
}

// Meta carries topic metadata: a description, a subscription list,
// or both.
type Meta struct {
	ID    string     `json:"id,omitempty"`
	Topic string     `json:"topic"`
	Desc  *TopicDesc `json:"desc,omitempty"`
	Sub   []TopicSub `json:"sub,omitempty"`
}

// RequestID parses ID.
func (m *Meta) RequestID() int64 {
	id, _ := strconv.ParseInt(m.ID, 10, 64)
	return id
}

// TopicDesc describes a topic from the reader's point of view.
type TopicDesc struct {
	Public  *Public   `json:"public,omitempty"`
	Seq     int       `json:"seq,omitempty"`
	Read    int       `json:"read,omitempty"`
	Recv    int       `json:"recv,omitempty"`
	Online  bool      `json:"online,omitempty"`
	Touched time.Time `json:"touched,omitempty"`
}

// TopicSub is one entry of a subscription list. On the me topic it
// describes a topic the user is subscribed to; on fnd it is a search
// hit, identified by User.
type TopicSub struct {
	Topic   string    `json:"topic,omitempty"`
	User    string    `json:"user,omitempty"`
	Public  *Public   `json:"public,omitempty"`
	Seq     int       `json:"seq,omitempty"`
	Read    int       `json:"read,omitempty"`
	Recv    int       `json:"recv,omitempty"`
	Online  bool      `json:"online,omitempty"`
	Touched time.Time `json:"touched,omitempty"`
}

// DisplayName returns the public full name, or fallback.
func (p *Public) DisplayName(fallback string) string {
	if p == nil || p.FullName == "" {
		return fallback
	}
	return p.FullName
}

// Info is a notification from another session: read or receive
// receipts and typing ("kp").
type Info struct {
	Topic string `json:"topic"`
	From  string `json:"from"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

// Encode marshals a client envelope.
func Encode(message *ClientMessage) ([]byte, error) {
	if message.Kind() == "" {
		return nil, errors.New("messaging: client message must set exactly one envelope")
	}
	return json.Marshal(message)
}

// Decode parses and validates one inbound frame. Every failure is a
// *ProtocolError.
func Decode(frame []byte) (*ServerMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, &ProtocolError{Reason: ReasonInvalidJSON, Frame: truncateFrame(frame), Err: err}
	}
	if len(envelope) != 1 {
		return nil, &ProtocolError{
			Reason: ReasonEnvelopeShape,
			Frame:  truncateFrame(frame),
			Err:    fmt.Errorf("envelope has %d top-level keys, want 1", len(envelope)),
		}
	}

	message := &ServerMessage{}
	var target any
	var kind string
	for key := range envelope {
		kind = key
	}
	switch kind {
	case "ctrl":
		message.Ctrl = &Ctrl{}
		target = message.Ctrl
	case "data":
		message.Data = &Data{}
		target = message.Data
	case "pres":
		message.Pres = &Pres{}
		target = message.Pres
	case "meta":
		message.Meta = &Meta{}
		target = message.Meta
	case "info":
		message.Info = &Info{}
		target = message.Info
	default:
		return nil, &ProtocolError{Reason: ReasonUnknownKind, Frame: truncateFrame(frame), Err: fmt.Errorf("unknown envelope %q", kind)}
	}
	if err := json.Unmarshal(envelope[kind], target); err != nil {
		return nil, &ProtocolError{Reason: ReasonInvalidField, Frame: truncateFrame(frame), Err: fmt.Errorf("%s: %w", kind, err)}
	}
	if err := message.validate(); err != nil {
		return nil, &ProtocolError{Reason: ReasonInvalidField, Frame: truncateFrame(frame), Err: err}
	}
	return message, nil
}

// Kind names the envelope that is set.
func (m *ServerMessage) Kind() string {
	switch {
	case m.Ctrl != nil:
		return "ctrl"
	case m.Data != nil:
		return "data"
	case m.Pres != nil:
		return "pres"
	case m.Meta != nil:
		return "meta"
	case m.Info != nil:
		return "info"
	}
	return ""
}

func (m *ServerMessage) validate() error {
	switch {
	case m.Ctrl != nil:
		if m.Ctrl.ID != "" {
			if _, err := strconv.ParseInt(m.Ctrl.ID, 10, 64); err != nil {
				return fmt.Errorf("ctrl id %q is not a request id", m.Ctrl.ID)
			}
		}
	case m.Data != nil:
		if m.Data.Topic == "" {
			return errors.New("data without topic")
		}
		if m.Data.Seq <= 0 {
			return fmt.Errorf("data seq %d is not positive", m.Data.Seq)
		}
	case m.Pres != nil:
		if m.Pres.Topic == "" {
			return errors.New("pres without topic")
		}
	case m.Meta != nil:
		if m.Meta.Topic == "" {
			return errors.New("meta without topic")
		}
	case m.Info != nil:
		if m.Info.Topic == "" {
			return errors.New("info without topic")
		}
	}
	return nil
}

const maxLoggedFrame = 256

func truncateFrame(frame []byte) string {
	if len(frame) <= maxLoggedFrame {
		return string(frame)
	}
	return string(frame[:maxLoggedFrame]) + "..."
}
