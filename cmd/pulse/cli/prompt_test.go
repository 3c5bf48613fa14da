// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func scriptedPasswords(entries ...string) func() ([]byte, error) {
	return func() ([]byte, error) {
		next := entries[0]
		entries = entries[1:]
		return []byte(next), nil
	}
}

func TestPrompterLine(t *testing.T) {
	var output bytes.Buffer
	prompter := &Prompter{In: strings.NewReader("  123456 \nsecond\nlast"), Out: &output}

	for _, want := range []string{"123456", "second", "last"} {
		got, err := prompter.Line("Code: ")
		if err != nil {
			t.Fatalf("Line: %v", err)
		}
		if got != want {
			t.Errorf("Line = %q, want %q", got, want)
		}
	}
	if _, err := prompter.Line("Code: "); err == nil {
		t.Error("Line at EOF succeeded")
	}
	if !strings.HasPrefix(output.String(), "Code: ") {
		t.Errorf("prompt output = %q", output.String())
	}
}

func TestPrompterNewPassword(t *testing.T) {
	prompter := &Prompter{Out: &bytes.Buffer{}, ReadPassword: scriptedPasswords("hunter22", "hunter22")}
	buffer, err := prompter.NewPassword()
	if err != nil {
		t.Fatalf("NewPassword: %v", err)
	}
	defer buffer.Close()
	if buffer.String() != "hunter22" {
		t.Errorf("password = %q", buffer.String())
	}

	prompter.ReadPassword = scriptedPasswords("hunter22", "hunter23")
	if _, err := prompter.NewPassword(); ExitCode(err) != 2 {
		t.Errorf("mismatched passwords: err = %v", err)
	}
}

func TestReadSecretFile(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "password")
	if err := os.WriteFile(path, []byte("hunter22\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	prompter := &Prompter{Out: &bytes.Buffer{}}
	buffer, err := prompter.ReadSecretFile(path, "Password: ")
	if err != nil {
		t.Fatalf("ReadSecretFile: %v", err)
	}
	defer buffer.Close()
	if buffer.String() != "hunter22" {
		t.Errorf("secret = %q", buffer.String())
	}

	empty := filepath.Join(directory, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := prompter.ReadSecretFile(empty, "Password: "); ExitCode(err) != 2 {
		t.Errorf("empty file: err = %v", err)
	}
}
