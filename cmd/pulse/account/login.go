// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/pulse-chat/pulse/chat"
	"github.com/pulse-chat/pulse/cmd/pulse/cli"
	"github.com/pulse-chat/pulse/lib/secret"
)

// maxCodeAttempts is how many wrong codes login accepts before giving
// up. The server may lock the identifier sooner.
const maxCodeAttempts = 3

type loginParams struct {
	configPath   string
	passwordFile string
	code         string
}

// LoginCommand returns "pulse login".
func LoginCommand() *cli.Command {
	var params loginParams
	return &cli.Command{
		Name:    "login",
		Summary: "Log in and store the session",
		Description: `Log in to the server and store the session token for later commands.

With a username, logs in with a password read from --password-file or
prompted without echo. With --code, sends the identifier (a phone number
or email address) to the server, which delivers a one-time code, and
prompts for that code.

The token is sealed with the local age identity before it is written.`,
		Usage: "pulse login <username> [flags] | pulse login --code <identifier>",
		Examples: []cli.Example{
			{Description: "Log in with a prompted password", Command: "pulse login alice"},
			{Description: "Log in with a one-time code", Command: "pulse login --code +15550100"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			cli.ConfigFlag(flagSet, &params.configPath)
			flagSet.StringVar(&params.passwordFile, "password-file", "", "file containing the password, or - to prompt (default: prompt)")
			flagSet.StringVar(&params.code, "code", "", "identifier to request a one-time code for")
			return flagSet
		},
		Run: func(args []string) error {
			if params.code != "" {
				if len(args) > 0 {
					return cli.Validation("unexpected argument with --code: %s", args[0])
				}
				return runCodeLogin(context.Background(), params, cli.Terminal(), os.Stderr)
			}
			if len(args) != 1 {
				return cli.Validation("username is required\n\nUsage: pulse login <username> [flags]")
			}
			return runPasswordLogin(context.Background(), params, args[0], cli.Terminal(), os.Stderr)
		},
	}
}

func runPasswordLogin(ctx context.Context, params loginParams, username string, prompter *cli.Prompter, output io.Writer) error {
	password, err := prompter.ReadSecretFile(params.passwordFile, "Password: ")
	if err != nil {
		return err
	}
	defer password.Close()

	env, err := cli.Connected(ctx, params.configPath)
	if err != nil {
		return err
	}
	defer env.Close()
	return passwordExchange(ctx, env, username, password, output)
}

func passwordExchange(ctx context.Context, env *cli.Environment, username string, password *secret.Buffer, output io.Writer) error {
	event, err := env.Authenticate(ctx, func(auth *chat.Auth) error {
		return auth.Login(username, password.String())
	})
	if err != nil {
		return err
	}
	return finish(env, event, output)
}

func runCodeLogin(ctx context.Context, params loginParams, prompter *cli.Prompter, output io.Writer) error {
	env, err := cli.Connected(ctx, params.configPath)
	if err != nil {
		return err
	}
	defer env.Close()
	return codeExchange(ctx, env, params.code, prompter, output)
}

// codeExchange drives the identifier and code steps on a connected
// environment.
func codeExchange(ctx context.Context, env *cli.Environment, identifier string, prompter *cli.Prompter, output io.Writer) error {
	watch, err := env.WatchAuth(ctx)
	if err != nil {
		return err
	}
	defer watch.Close()

	if err := submit(ctx, env, func(auth *chat.Auth) error { return auth.SubmitIdentifier(identifier) }); err != nil {
		return err
	}
	event, err := watch.Wait(ctx, func(event chat.AuthEvent) bool {
		return event.CodeSent || event.State == chat.StateAuthenticated
	})
	if err != nil {
		return err
	}
	if event.State == chat.StateAuthenticated {
		return finish(env, event, output)
	}
	fmt.Fprintf(output, "A code was sent to %s.\n", identifier)

	for attempt := 1; ; attempt++ {
		code, err := prompter.Line("Code: ")
		if err != nil {
			return err
		}
		if err := submit(ctx, env, func(auth *chat.Auth) error { return auth.SubmitCode(code) }); err != nil {
			return err
		}

		event, err := watch.Wait(ctx, cli.Authenticated)
		if err == nil {
			return finish(env, event, output)
		}
		var commandErr *cli.CommandError
		if !errors.As(err, &commandErr) || commandErr.Category != cli.CategoryAuth || attempt == maxCodeAttempts {
			return err
		}
		fmt.Fprintln(output, commandErr.Error())
	}
}

// submit runs step on the loop.
func submit(ctx context.Context, env *cli.Environment, step func(*chat.Auth) error) error {
	var stepErr error
	if err := env.Do(ctx, func() { stepErr = step(env.Client.Auth()) }); err != nil {
		return cli.Internal("%w", err)
	}
	if stepErr != nil {
		return cli.AuthFailure(stepErr)
	}
	return nil
}

func finish(env *cli.Environment, event chat.AuthEvent, output io.Writer) error {
	if err := env.SaveSession(event); err != nil {
		return err
	}
	env.Logger.Info("session stored", "user", event.UserID, "path", env.Config.Paths.Credentials)
	fmt.Fprintf(output, "Logged in as %s\n", event.UserID)
	return nil
}
