// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pulse-chat/pulse/chat"
	"github.com/pulse-chat/pulse/cmd/pulse/cli"
	"github.com/pulse-chat/pulse/lib/secret"
)

type registerParams struct {
	configPath   string
	displayName  string
	passwordFile string
}

// RegisterCommand returns "pulse register".
func RegisterCommand() *cli.Command {
	var params registerParams
	return &cli.Command{
		Name:    "register",
		Summary: "Create an account and log in",
		Description: `Create an account on the server and log in as it.

Usernames are 3 to 20 letters, digits, or underscores. Passwords need at
least 6 characters. The display name is what other users see in their
conversation lists and search results. Input is checked locally before
anything is sent.`,
		Usage: "pulse register <username> --name <display name> [flags]",
		Examples: []cli.Example{
			{Description: "Create an account, prompting for the password twice", Command: `pulse register alice --name "Alice Liddell"`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("register", pflag.ContinueOnError)
			cli.ConfigFlag(flagSet, &params.configPath)
			flagSet.StringVar(&params.displayName, "name", "", "display name shown to other users (required)")
			flagSet.StringVar(&params.passwordFile, "password-file", "", "file containing the password (default: prompt twice)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("username is required\n\nUsage: pulse register <username> --name <display name>")
			}
			username := args[0]
			if strings.TrimSpace(params.displayName) == "" {
				return cli.Validation("--name is required")
			}

			prompter := cli.Terminal()
			var (
				password *secret.Buffer
				err      error
			)
			if params.passwordFile != "" && params.passwordFile != "-" {
				password, err = prompter.ReadSecretFile(params.passwordFile, "")
			} else {
				password, err = prompter.NewPassword()
			}
			if err != nil {
				return err
			}
			defer password.Close()

			if err := chat.ValidateRegistration(username, password.String(), params.displayName); err != nil {
				return cli.AuthFailure(err)
			}

			ctx := context.Background()
			env, err := cli.Connected(ctx, params.configPath)
			if err != nil {
				return err
			}
			defer env.Close()
			return registerExchange(ctx, env, username, password, params.displayName, os.Stderr)
		},
	}
}

func registerExchange(ctx context.Context, env *cli.Environment, username string, password *secret.Buffer, displayName string, output io.Writer) error {
	event, err := env.Authenticate(ctx, func(auth *chat.Auth) error {
		return auth.CreateAccount(username, password.String(), displayName)
	})
	if err != nil {
		return err
	}
	return finish(env, event, output)
}
