// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/pulse-chat/pulse/lib/secret"
)

// Identity is an age x25519 keypair. PrivateKey must never be logged.
type Identity struct {
	PrivateKey *secret.Buffer
	Recipient  string
}

// Close releases the private key. Idempotent.
func (i *Identity) Close() error {
	if i == nil || i.PrivateKey == nil {
		return nil
	}
	return i.PrivateKey.Close()
}

// Generate creates a fresh identity.
func Generate() (*Identity, error) {
	generated, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}
	privateKey, err := secret.ProtectString(generated.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting private key: %w", err)
	}
	return &Identity{PrivateKey: privateKey, Recipient: generated.Recipient().String()}, nil
}

// LoadOrCreate reads the identity stored at path, generating and
// writing a new one (mode 0600, parent directories 0700) when the file
// does not exist.
func LoadOrCreate(path string) (*Identity, error) {
	identity, err := Load(path)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	identity, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		identity.Close()
		return nil, fmt.Errorf("sealed: creating identity directory: %w", err)
	}
	content := append([]byte(nil), identity.PrivateKey.Bytes()...)
	content = append(content, '\n')
	err = os.WriteFile(path, content, 0o600)
	secret.Zero(content)
	if err != nil {
		identity.Close()
		return nil, fmt.Errorf("sealed: writing identity: %w", err)
	}
	return identity, nil
}

// Load reads an identity file. Blank lines and # comments are skipped,
// the same layout age-keygen writes.
func Load(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading identity: %w", err)
	}
	defer secret.Zero(raw)

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing identity %s: %w", path, err)
		}
		privateKey, err := secret.ProtectString(line)
		if err != nil {
			return nil, fmt.Errorf("sealed: protecting private key: %w", err)
		}
		return &Identity{PrivateKey: privateKey, Recipient: parsed.Recipient().String()}, nil
	}
	return nil, fmt.Errorf("sealed: %s contains no identity", path)
}

// Seal encrypts plaintext to the given age1... recipients.
func Seal(plaintext []byte, recipients ...string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errors.New("sealed: at least one recipient is required")
	}
	parsed := make([]age.Recipient, 0, len(recipients))
	for _, key := range recipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient %q: %w", key, err)
		}
		parsed = append(parsed, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, parsed...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Open decrypts ciphertext produced by Seal. The private key is
// borrowed, not closed. Empty plaintext is reported as an error since
// nothing Pulse seals is empty.
func Open(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	buffer, err := secret.Protect(plaintext)
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting plaintext: %w", err)
	}
	return buffer, nil
}
