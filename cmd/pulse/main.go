// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pulse-chat/pulse/cmd/pulse/account"
	"github.com/pulse-chat/pulse/cmd/pulse/chatcmd"
	"github.com/pulse-chat/pulse/cmd/pulse/cli"
	"github.com/pulse-chat/pulse/lib/version"
)

func main() {
	if err := run(); err != nil {
		// An ExitError means the command already printed what it had
		// to say.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

func root() *cli.Command {
	return &cli.Command{
		Name: "pulse",
		Description: `Pulse: a terminal chat client.

Log in once with 'pulse login'; the session token is kept sealed on
disk and 'pulse chat' picks it up.`,
		Subcommands: []*cli.Command{
			account.LoginCommand(),
			account.RegisterCommand(),
			account.LogoutCommand(),
			account.WhoamiCommand(),
			chatcmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					if len(args) > 0 {
						return cli.Validation("unexpected argument: %s", args[0])
					}
					fmt.Printf("pulse %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
