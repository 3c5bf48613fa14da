// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts small local files with age x25519 keys.
//
// The client keeps exactly one identity per install: an
// AGE-SECRET-KEY-1 line in a 0600 file under the state directory.
// Everything sensitive that outlives the process (the session token
// record in lib/credstore) is sealed to that identity's recipient.
// Private keys and decrypted plaintext are handed out as
// [secret.Buffer] values and must be closed by the caller.
package sealed
