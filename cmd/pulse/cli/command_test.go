// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	root := &Command{
		Name: "pulse",
		Subcommands: []*Command{
			{Name: "login", Run: func(args []string) error { called = "login"; return nil }},
			{Name: "logout", Run: func(args []string) error { called = "logout"; return nil }},
		},
	}
	if err := root.Execute([]string{"logout"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "logout" {
		t.Errorf("dispatched to %q, want %q", called, "logout")
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var passwordFile string
	var received []string
	login := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.StringVar(&passwordFile, "password-file", "", "")
			return flagSet
		},
		Run: func(args []string) error {
			received = args
			return nil
		},
	}
	root := &Command{Name: "pulse", Subcommands: []*Command{login}}

	if err := root.Execute([]string{"login", "alice", "--password-file", "/tmp/pw"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if passwordFile != "/tmp/pw" {
		t.Errorf("password-file = %q", passwordFile)
	}
	if len(received) != 1 || received[0] != "alice" {
		t.Errorf("args = %v, want [alice]", received)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	login := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.String("password-file", "", "")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}
	root := &Command{Name: "pulse", Subcommands: []*Command{login}}

	err := root.Execute([]string{"login", "--pasword-file", "x"})
	if err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --password-file?") {
		t.Errorf("error %q does not suggest --password-file", err)
	}
	if ExitCode(err) != 2 {
		t.Errorf("exit code = %d, want 2", ExitCode(err))
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "pulse",
		Subcommands: []*Command{
			{Name: "register", Run: func(args []string) error { return nil }},
			{Name: "chat", Run: func(args []string) error { return nil }},
		},
	}
	err := root.Execute([]string{"regster"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "register"?`) {
		t.Errorf("error = %v", err)
	}

	err = root.Execute([]string{"zzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	var output bytes.Buffer
	ran := false
	root := &Command{
		Name:    "pulse",
		Summary: "Pulse chat client",
		Subcommands: []*Command{
			{Name: "chat", Summary: "Open the chat screen", Run: func(args []string) error { ran = true; return nil }},
		},
	}
	root.SetOutput(&output)

	if err := root.Execute([]string{"chat", "--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if ran {
		t.Error("--help ran the command")
	}
	if !strings.Contains(output.String(), "Usage:\n  pulse chat [flags]") {
		t.Errorf("help output:\n%s", output.String())
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	var output bytes.Buffer
	root := &Command{
		Name: "pulse",
		Subcommands: []*Command{
			{Name: "login", Summary: "Log in"},
			{Name: "logout", Summary: "Log out"},
		},
	}
	root.SetOutput(&output)

	err := root.Execute(nil)
	var commandErr *CommandError
	if !errors.As(err, &commandErr) || commandErr.Category != CategoryValidation {
		t.Errorf("error = %v, want a validation error", err)
	}
	for _, want := range []string{"Commands:", "login", "Log out", "Run 'pulse <command> --help'"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, output.String())
		}
	}
}

func TestCommand_PrintHelp_WithFlagsAndExamples(t *testing.T) {
	command := &Command{
		Name:        "register",
		Description: "Create an account.",
		Usage:       "pulse register <username> --name <display name>",
		Examples:    []Example{{Description: "Create alice", Command: "pulse register alice --name Alice"}},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("register", pflag.ContinueOnError)
			flagSet.String("name", "", "display name shown to other users")
			return flagSet
		},
	}
	var output bytes.Buffer
	command.PrintHelp(&output)
	help := output.String()
	for _, want := range []string{
		"Create an account.",
		"pulse register <username> --name <display name>",
		"--name string",
		"display name shown to other users",
		"# Create alice",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{Validation("bad"), 2},
		{Auth("refused"), 3},
		{Transient("down"), 4},
		{Internal("bug"), 1},
		{&ExitError{Code: 7}, 7},
	}
	for _, test := range tests {
		if got := ExitCode(test.err); got != test.want {
			t.Errorf("ExitCode(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}
