// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used for everything Pulse writes
// to local disk: the sealed credential record and the per-message
// payload column of the history cache. The wire protocol is JSON; this
// package is never used on the socket.
//
// Encoding is Core Deterministic (RFC 8949 §4.2), so equal values
// always produce equal bytes and cache rows can be compared directly.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	options := cbor.CoreDetEncOptions()
	options.Time = cbor.TimeRFC3339Nano
	encMode, err = options.EncMode()
	if err != nil {
		panic("codec: CBOR encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Free-form payloads (message heads, public descriptors) decode
		// into map[string]any so they can be handed back to JSON.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose renders data in CBOR diagnostic notation, for debug logs.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
