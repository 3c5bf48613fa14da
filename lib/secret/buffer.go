// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrEmpty is returned when protecting a zero-length secret.
var ErrEmpty = errors.New("secret: empty secret")

// Buffer is a secret stored in mmap-backed memory. A Buffer must not be
// copied. Reading a closed Buffer panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	locked bool
	closed bool
}

// Protect moves source into a new Buffer and zeros source in place.
func Protect(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, ErrEmpty
	}

	region, err := unix.Mmap(-1, 0, len(source), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	// Best effort on both: an unpinned, dumpable region still keeps the
	// secret off the Go heap.
	locked := unix.Mlock(region) == nil
	_ = unix.Madvise(region, unix.MADV_DONTDUMP)

	copy(region, source)
	Zero(source)

	return &Buffer{region: region, locked: locked}, nil
}

// ProtectString is Protect for values that arrive as strings (flag
// values, decoded JSON). The string itself stays on the heap until
// collected; only the Buffer copy is durable.
func ProtectString(value string) (*Buffer, error) {
	return Protect([]byte(value))
}

// Bytes returns a slice aliasing the protected region. It is valid
// until Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read after Close")
	}
	return b.region
}

// String returns a heap copy of the secret for API boundaries that
// need a string (JSON bodies, age identities).
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Len returns the secret's length in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.region)
}

// Locked reports whether the region is pinned against swap.
func (b *Buffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Equal compares the secret with other in constant time.
func (b *Buffer) Equal(other []byte) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), other) == 1
}

// Clone returns an independent Buffer holding the same secret.
func (b *Buffer) Clone() (*Buffer, error) {
	data := b.Bytes()
	scratch := make([]byte, len(data))
	copy(scratch, data)
	return Protect(scratch)
}

// Close zeros and releases the region. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	Zero(b.region)
	if b.locked {
		_ = unix.Munlock(b.region)
	}
	err := unix.Munmap(b.region)
	b.region = nil
	if err != nil {
		return fmt.Errorf("secret: munmap: %w", err)
	}
	return nil
}

// Zero overwrites data with zero bytes.
func Zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
