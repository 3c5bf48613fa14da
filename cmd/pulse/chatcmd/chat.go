// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chatcmd

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/pulse-chat/pulse/cmd/pulse/cli"
	"github.com/pulse-chat/pulse/lib/chatui"
	"github.com/pulse-chat/pulse/lib/historycache"
	"github.com/pulse-chat/pulse/messaging"
)

// shutdownTimeout bounds flushing the cache after the screen closes.
const shutdownTimeout = 5 * time.Second

type chatParams struct {
	configPath string
	noCache    bool
}

// Command returns "pulse chat".
func Command() *cli.Command {
	var params chatParams
	return &cli.Command{
		Name:    "chat",
		Summary: "Open the interactive chat screen",
		Description: `Connect with the stored session and open the chat screen: the
conversation list on the left, the active conversation on the right.

Messages are cached locally so a conversation opens with its recent
history before the server answers. Use --no-cache to skip the cache.`,
		Usage: "pulse chat [topic] [flags]",
		Examples: []cli.Example{
			{Description: "Open the chat screen", Command: "pulse chat"},
			{Description: "Open straight into a conversation", Command: "pulse chat usrBob"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("chat", pflag.ContinueOnError)
			cli.ConfigFlag(flagSet, &params.configPath)
			flagSet.BoolVar(&params.noCache, "no-cache", false, "neither read nor write the local message cache")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return cli.Validation("unexpected argument: %s", args[1])
			}
			var topic string
			if len(args) == 1 {
				topic = args[0]
			}
			return run(context.Background(), params, topic)
		},
	}
}

func run(ctx context.Context, params chatParams, topic string) error {
	cfg, err := cli.LoadConfig(params.configPath)
	if err != nil {
		return err
	}

	// Logging to the terminal would tear the screen, so records go to
	// the status bar unless a log file is configured.
	var screen *chatui.ScreenLogHandler
	logger, logCloser, err := cli.NewScreenLogger(cfg.Log, func(level slog.Level) slog.Handler {
		screen = chatui.NewScreenLogHandler(max(level, slog.LevelWarn))
		return screen
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	env, err := cli.Open(cli.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer env.Close()

	connectContext, cancel := context.WithTimeout(ctx, cli.ConnectTimeout)
	err = env.Connect(connectContext)
	cancel()
	if err != nil {
		return err
	}
	if _, err := env.RestoreSession(ctx); err != nil {
		return err
	}

	var cache *historycache.Cache
	if !params.noCache && cfg.Paths.History != "" {
		cache, err = historycache.Open(ctx, cfg.Paths.History, logger.With("component", "historycache"))
		if err != nil {
			return cli.Internal("%w", err)
		}
		defer cache.Close()
	}

	bridge, err := chatui.NewBridge(chatui.BridgeConfig{
		Client:   env.Client,
		Loop:     env.Loop,
		Cache:    cache,
		SeedSize: cfg.Session.HistoryPageSize,
		Logger:   logger.With("component", "chatui"),
	})
	if err != nil {
		return cli.Internal("%w", err)
	}

	model := chatui.NewModel(bridge, chatui.Options{InitialTopic: topic})
	program := tea.NewProgram(model, tea.WithAltScreen())
	if screen != nil {
		screen.SetSender(program)
		defer screen.SetSender(nil)
	}
	cancelDisconnect := env.Session.OnDisconnect(func(err *messaging.ConnectionError) {
		program.Send(chatui.DisconnectedMsg{Err: err})
	})
	defer cancelDisconnect()

	bridge.Start(program)
	_, runErr := program.Run()

	shutdownContext, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := bridge.Close(shutdownContext); err != nil {
		logger.Warn("closing chat screen", "error", err)
	}
	if runErr != nil {
		return cli.Internal("chat screen: %w", runErr)
	}
	return nil
}
