// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "github.com/pulse-chat/pulse/messaging"

// Transport is the slice of *messaging.Session the synchronizers use
// to issue requests.
type Transport interface {
	Request(message *messaging.ClientMessage, onReply messaging.ReplyFunc) (int64, error)
	UserID() string
}

// AuthTransport adds the credential controls Auth needs on logout.
type AuthTransport interface {
	Transport
	DropSubscriptions() error
	ClearCredentials()
}

// Session is the full view of *messaging.Session the Client wires:
// requests plus the typed inbound channels.
type Session interface {
	AuthTransport
	OnCtrl(handler func(*messaging.Ctrl)) (cancel func())
	OnData(handler func(*messaging.Data)) (cancel func())
	OnPres(handler func(*messaging.Pres)) (cancel func())
	OnMeta(handler func(*messaging.Meta)) (cancel func())
	OnInfo(handler func(*messaging.Info)) (cancel func())
	OnDisconnect(handler func(*messaging.ConnectionError)) (cancel func())
}

var _ Session = (*messaging.Session)(nil)

// Gate reports whether subscriptions are currently allowed. *Auth
// implements it.
type Gate interface {
	Authenticated() bool
}

// Message delivery status of an outgoing message. Incoming messages
// stay StatusSent.
type Status int

const (
	StatusSent Status = iota
	StatusDelivered
	StatusRead
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	}
	return "unknown"
}

// ParseStatus is the inverse of Status.String. Unknown names parse as
// StatusSent.
func ParseStatus(name string) Status {
	switch name {
	case "delivered":
		return StatusDelivered
	case "read":
		return StatusRead
	}
	return StatusSent
}
