// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"time"

	"github.com/spf13/pflag"
)

// ConnectTimeout bounds Connect for one-shot commands, on top of the
// retry section's max_elapsed.
const ConnectTimeout = 2 * time.Minute

// ConfigFlag registers --config on flagSet.
func ConfigFlag(flagSet *pflag.FlagSet, path *string) {
	flagSet.StringVarP(path, "config", "c", "", "configuration file (default: $PULSE_CONFIG, then built-in defaults)")
}

// Connected opens an Environment from configPath and connects it. The
// caller closes the Environment.
func Connected(ctx context.Context, configPath string) (*Environment, error) {
	env, err := Open(Options{ConfigPath: configPath})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := env.Connect(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}
