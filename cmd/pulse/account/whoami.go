// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/pulse-chat/pulse/cmd/pulse/cli"
	"github.com/pulse-chat/pulse/lib/credstore"
)

// WhoamiCommand returns "pulse whoami". It reads the credential store
// only and never connects.
func WhoamiCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the stored session",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			cli.ConfigFlag(flagSet, &configPath)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			env, err := cli.Open(cli.Options{ConfigPath: configPath})
			if err != nil {
				return err
			}
			defer env.Close()
			return describeSession(env, os.Stdout)
		},
	}
}

func describeSession(env *cli.Environment, output io.Writer) error {
	record, err := env.Credentials.Load()
	if errors.Is(err, credstore.ErrNotFound) {
		return cli.Validation("not logged in (run 'pulse login' first)")
	}
	if err != nil {
		return cli.Internal("loading session: %w", err)
	}
	fmt.Fprintf(output, "%s on %s\n", record.UserID, record.Server)
	fmt.Fprintf(output, "logged in %s\n", record.SavedAt.Local().Format(time.DateTime))
	if record.Server != env.Config.Server.URL {
		fmt.Fprintf(output, "warning: the configured server is %s\n", env.Config.Server.URL)
	}
	return nil
}
