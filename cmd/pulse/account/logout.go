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

	"github.com/pulse-chat/pulse/cmd/pulse/cli"
	"github.com/pulse-chat/pulse/lib/credstore"
	"github.com/pulse-chat/pulse/lib/historycache"
)

type logoutParams struct {
	configPath  string
	keepHistory bool
	offline     bool
}

// LogoutCommand returns "pulse logout".
func LogoutCommand() *cli.Command {
	var params logoutParams
	return &cli.Command{
		Name:    "logout",
		Summary: "End the session and forget the stored token",
		Description: `Log out: restore the stored session, leave every subscribed topic,
and remove the token from the credential store. The local message cache
is deleted too unless --keep-history is given.

With --offline nothing is sent; the local state is discarded only.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logout", pflag.ContinueOnError)
			cli.ConfigFlag(flagSet, &params.configPath)
			flagSet.BoolVar(&params.keepHistory, "keep-history", false, "keep the local message cache")
			flagSet.BoolVar(&params.offline, "offline", false, "discard local state without contacting the server")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			ctx := context.Background()
			if params.offline {
				env, err := cli.Open(cli.Options{ConfigPath: params.configPath})
				if err != nil {
					return err
				}
				defer env.Close()
				return discardLocal(ctx, env, params.keepHistory, os.Stderr)
			}

			env, err := cli.Connected(ctx, params.configPath)
			if err != nil {
				return err
			}
			defer env.Close()
			return logoutExchange(ctx, env, params.keepHistory, os.Stderr)
		},
	}
}

func logoutExchange(ctx context.Context, env *cli.Environment, keepHistory bool, output io.Writer) error {
	if _, err := env.RestoreSession(ctx); err != nil {
		var commandErr *cli.CommandError
		if errors.As(err, &commandErr) && commandErr.Category == cli.CategoryValidation {
			fmt.Fprintln(output, "Not logged in.")
			return nil
		}
		// A refused token is already gone from the store.
		if !errors.As(err, &commandErr) || commandErr.Category != cli.CategoryAuth {
			return err
		}
		return discardLocal(ctx, env, keepHistory, output)
	}

	var logoutErr error
	if err := env.Do(ctx, func() { logoutErr = env.Client.Auth().Logout() }); err != nil {
		return cli.Internal("%w", err)
	}
	if logoutErr != nil {
		env.Logger.Warn("leaving topics", "error", logoutErr)
	}
	return discardLocal(ctx, env, keepHistory, output)
}

// discardLocal removes the stored token and, unless keepHistory, the
// message cache.
func discardLocal(ctx context.Context, env *cli.Environment, keepHistory bool, output io.Writer) error {
	if err := env.Credentials.Clear(); err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return cli.Internal("clearing session: %w", err)
	}
	if !keepHistory && env.Config.Paths.History != "" {
		cache, err := historycache.Open(ctx, env.Config.Paths.History, env.Logger)
		if err != nil {
			return cli.Internal("%w", err)
		}
		defer cache.Close()
		if err := cache.ForgetAll(ctx); err != nil {
			return cli.Internal("%w", err)
		}
	}
	fmt.Fprintln(output, "Logged out.")
	return nil
}
