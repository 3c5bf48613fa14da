// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"testing"
)

func TestProtectMovesSecret(t *testing.T) {
	source := []byte("usr-token-abc123")
	buffer, err := Protect(source)
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "usr-token-abc123" {
		t.Errorf("String() = %q", got)
	}
	if buffer.Len() != len("usr-token-abc123") {
		t.Errorf("Len() = %d", buffer.Len())
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed: %d", index, value)
		}
	}
}

func TestProtectEmpty(t *testing.T) {
	if _, err := Protect(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Protect(nil) error = %v, want ErrEmpty", err)
	}
	if _, err := ProtectString(""); !errors.Is(err, ErrEmpty) {
		t.Fatalf("ProtectString(\"\") error = %v, want ErrEmpty", err)
	}
}

func TestEqual(t *testing.T) {
	buffer, err := ProtectString("hunter22")
	if err != nil {
		t.Fatalf("ProtectString: %v", err)
	}
	defer buffer.Close()

	if !buffer.Equal([]byte("hunter22")) {
		t.Error("Equal should match identical secret")
	}
	if buffer.Equal([]byte("hunter23")) {
		t.Error("Equal should reject a different secret")
	}
	if buffer.Equal([]byte("hunter2")) {
		t.Error("Equal should reject a prefix")
	}
}

func TestClone(t *testing.T) {
	original, err := ProtectString("token")
	if err != nil {
		t.Fatalf("ProtectString: %v", err)
	}
	clone, err := original.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	defer clone.Close()

	original.Close()
	if clone.String() != "token" {
		t.Errorf("clone lost its content after original closed: %q", clone.String())
	}
}

func TestCloseIdempotentAndPanicsAfter(t *testing.T) {
	buffer, err := ProtectString("x")
	if err != nil {
		t.Fatalf("ProtectString: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close should panic")
		}
	}()
	buffer.Bytes()
}
