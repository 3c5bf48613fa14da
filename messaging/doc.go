// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the transport session of the Pulse client: one
// persistent websocket to a Tinode-style chat server, carrying one JSON
// envelope per text frame.
//
// [Session] owns the connection. It assigns every outbound request a
// monotonically increasing id, refuses any request before the hi
// handshake (and a second hi on the same connection), transmits in
// submission order from a dedicated writer goroutine, and decodes
// inbound frames on a reader goroutine. Decoded envelopes are handed to
// an [Executor], normally a [Loop], and fanned out from there to
// exactly one of five observer sets: ctrl, data, pres, meta, info.
// Everything that observes a Session therefore runs on one logical
// thread and needs no locking of its own.
//
// Frames that do not decode into exactly one known envelope are
// [ProtocolError]s: logged, counted, dropped. A failed dial or a broken
// connection is a [ConnectionError]. A ctrl reply with a code of 300 or
// above can be turned into a [ReplyError] with [ReplyErrorFrom].
//
// Successful ctrl replies that carry a "token" or "user" parameter
// update the session token (held in a lib/secret buffer) and the
// authenticated user id. Both survive a reconnect, as does the set of
// subscribed topics.
package messaging
