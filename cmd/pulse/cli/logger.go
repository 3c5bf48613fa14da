// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/pulse-chat/pulse/lib/config"
)

// NewLogger builds the command logger from the log section of the
// configuration. With log.file set, records go to that file as JSON.
// Otherwise they go to stderr: text when stderr is a terminal, JSON
// when it is piped.
//
// The returned closer releases the log file and is never nil.
func NewLogger(settings config.LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := settings.SlogLevel()
	if err != nil {
		return nil, nil, Validation("%w", err)
	}
	options := &slog.HandlerOptions{Level: level}

	if settings.File != "" {
		file, err := os.OpenFile(settings.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, Internal("opening log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(file, options)), file, nil
	}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler), nopCloser{}, nil
}

// NewScreenLogger is NewLogger for commands that own the terminal.
// Without a log file, records go to screen instead of stderr so they
// do not tear the display.
func NewScreenLogger(settings config.LogConfig, screen func(level slog.Level) slog.Handler) (*slog.Logger, io.Closer, error) {
	if settings.File != "" {
		return NewLogger(settings)
	}
	level, err := settings.SlogLevel()
	if err != nil {
		return nil, nil, Validation("%w", err)
	}
	if screen == nil {
		return nil, nil, fmt.Errorf("cli: screen handler is required")
	}
	return slog.New(screen(level)), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
