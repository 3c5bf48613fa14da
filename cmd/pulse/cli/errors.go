// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies command errors for the exit code and for
// how main prints them.
type ErrorCategory string

const (
	// CategoryValidation: bad arguments or flags. Exit code 2.
	CategoryValidation ErrorCategory = "validation"

	// CategoryAuth: the server refused the credentials. Exit code 3.
	CategoryAuth ErrorCategory = "auth"

	// CategoryTransient: the server could not be reached. Exit code 4.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: everything else. Exit code 1.
	CategoryInternal ErrorCategory = "internal"
)

// CommandError is a categorized error returned by Run functions.
type CommandError struct {
	Category ErrorCategory
	Err      error
}

func (e *CommandError) Error() string { return e.Err.Error() }

func (e *CommandError) Unwrap() error { return e.Err }

// Validation reports bad input from the user.
func Validation(format string, args ...any) *CommandError {
	return &CommandError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// Auth reports refused credentials.
func Auth(format string, args ...any) *CommandError {
	return &CommandError{Category: CategoryAuth, Err: fmt.Errorf(format, args...)}
}

// Transient reports an unreachable server.
func Transient(format string, args ...any) *CommandError {
	return &CommandError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal reports an unexpected failure.
func Internal(format string, args ...any) *CommandError {
	return &CommandError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var commandErr *CommandError
	if errors.As(err, &commandErr) {
		switch commandErr.Category {
		case CategoryValidation:
			return 2
		case CategoryAuth:
			return 3
		case CategoryTransient:
			return 4
		}
	}
	return 1
}
