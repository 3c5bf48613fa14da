// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the session token between runs.
//
// The file is a CBOR map from storage key to [Record], sealed with
// lib/sealed to the install's age identity. Pulse only ever writes
// the [StorageKey] entry; other keys survive a rewrite untouched.
// Writes go to a temporary file that is renamed into place, so a
// crash leaves either the old or the new file.
package credstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pulse-chat/pulse/lib/codec"
	"github.com/pulse-chat/pulse/lib/sealed"
	"github.com/pulse-chat/pulse/lib/secret"
)

// StorageKey is the fixed key the session token is stored under.
const StorageKey = "pulse_token"

// ErrNotFound is returned by Load when no token is stored.
var ErrNotFound = errors.New("credstore: no stored session")

// Record is one stored session.
type Record struct {
	// Server is the URL the token was issued by. A token is only
	// offered back to the same server.
	Server string `cbor:"server"`

	UserID  string    `cbor:"user_id"`
	Token   string    `cbor:"token"`
	SavedAt time.Time `cbor:"saved_at"`
}

// Store reads and writes the sealed credential file.
type Store struct {
	path     string
	identity *sealed.Identity
}

// New returns a Store for path. The identity is borrowed.
func New(path string, identity *sealed.Identity) *Store {
	return &Store{path: path, identity: identity}
}

// Load returns the stored session, or ErrNotFound.
func (s *Store) Load() (Record, error) {
	entries, err := s.read()
	if err != nil {
		return Record{}, err
	}
	record, ok := entries[StorageKey]
	if !ok || record.Token == "" {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Save stores record under StorageKey.
func (s *Store) Save(record Record) error {
	entries, err := s.read()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if entries == nil {
		entries = make(map[string]Record)
	}
	entries[StorageKey] = record
	return s.write(entries)
}

// Clear removes the stored session. Clearing an empty store is not an
// error.
func (s *Store) Clear() error {
	entries, err := s.read()
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	delete(entries, StorageKey)
	if len(entries) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("credstore: removing %s: %w", s.path, err)
		}
		return nil
	}
	return s.write(entries)
}

func (s *Store) read() (map[string]Record, error) {
	ciphertext, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", s.path, err)
	}

	plaintext, err := sealed.Open(ciphertext, s.identity.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("credstore: %w", err)
	}
	defer plaintext.Close()

	var entries map[string]Record
	if err := codec.Unmarshal(plaintext.Bytes(), &entries); err != nil {
		return nil, fmt.Errorf("credstore: decoding %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *Store) write(entries map[string]Record) error {
	plaintext, err := codec.Marshal(entries)
	if err != nil {
		return fmt.Errorf("credstore: encoding: %w", err)
	}
	ciphertext, err := sealed.Seal(plaintext, s.identity.Recipient)
	secret.Zero(plaintext)
	if err != nil {
		return fmt.Errorf("credstore: %w", err)
	}

	directory := filepath.Dir(s.path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("credstore: creating %s: %w", directory, err)
	}
	temporary, err := os.CreateTemp(directory, ".credentials-*")
	if err != nil {
		return fmt.Errorf("credstore: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(ciphertext); err != nil {
		temporary.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("credstore: %w", err)
	}
	if err := os.Rename(temporary.Name(), s.path); err != nil {
		return fmt.Errorf("credstore: replacing %s: %w", s.path, err)
	}
	return nil
}
