// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/pulse-chat/pulse/lib/secret"
)

// Prompter reads interactive input. Tests substitute In and Out.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	// ReadPassword reads a line without echo. Nil uses the terminal
	// on In, which must then be an *os.File.
	ReadPassword func() ([]byte, error)

	reader *bufio.Reader
}

// Terminal returns a Prompter on stdin and stderr.
func Terminal() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

// Line prints label and returns one trimmed line of input.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.Out, label)
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", Internal("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Password prints label and reads a secret without echo.
func (p *Prompter) Password(label string) (*secret.Buffer, error) {
	fmt.Fprint(p.Out, label)
	read := p.ReadPassword
	if read == nil {
		file, ok := p.In.(*os.File)
		if !ok || !term.IsTerminal(int(file.Fd())) {
			return nil, Validation("no terminal available for a password prompt (use --password-file)")
		}
		read = func() ([]byte, error) { return term.ReadPassword(int(file.Fd())) }
	}
	data, err := read()
	fmt.Fprintln(p.Out)
	if err != nil {
		return nil, Internal("reading password: %w", err)
	}
	if len(data) == 0 {
		return nil, Validation("password is empty")
	}
	return secret.Protect(data)
}

// NewPassword prompts twice and fails unless both entries match.
func (p *Prompter) NewPassword() (*secret.Buffer, error) {
	first, err := p.Password("Password: ")
	if err != nil {
		return nil, err
	}
	second, err := p.Password("Confirm password: ")
	if err != nil {
		first.Close()
		return nil, err
	}
	defer second.Close()
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		first.Close()
		return nil, Validation("passwords do not match")
	}
	return first, nil
}

// ReadSecretFile reads a secret from path, or prompts when path is
// "" or "-". Trailing newlines are stripped.
func (p *Prompter) ReadSecretFile(path, label string) (*secret.Buffer, error) {
	if path == "" || path == "-" {
		return p.Password(label)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Internal("reading %s: %w", path, err)
	}
	trimmed := bytes.TrimRight(data, "\r\n")
	if len(trimmed) == 0 {
		secret.Zero(data)
		return nil, Validation("file %s is empty (after stripping trailing newlines)", path)
	}
	buffer, err := secret.Protect(trimmed)
	secret.Zero(data)
	return buffer, err
}
