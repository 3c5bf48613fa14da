// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulse-chat/pulse/chat"
	"github.com/pulse-chat/pulse/lib/config"
	"github.com/pulse-chat/pulse/lib/credstore"
	"github.com/pulse-chat/pulse/lib/sealed"
	"github.com/pulse-chat/pulse/messaging"
)

// Options configures Open. Zero values load everything from the
// configuration file.
type Options struct {
	// ConfigPath overrides PULSE_CONFIG.
	ConfigPath string

	// Config skips loading entirely.
	Config *config.Config

	// Dialer replaces the websocket dialer built from server.url.
	Dialer messaging.Dialer

	// Logger replaces the logger built from the log section.
	Logger *slog.Logger
}

// Environment is one running client: the event loop, the session,
// the chat components on top of it, and the local credential store.
// Open starts it; Close stops it.
type Environment struct {
	Config      *config.Config
	Logger      *slog.Logger
	Registry    *prometheus.Registry
	Loop        *messaging.Loop
	Session     *messaging.Session
	Client      *chat.Client
	Credentials *credstore.Store

	identity      *sealed.Identity
	stopLoop      context.CancelFunc
	metricsServer *http.Server
}

// LoadConfig loads and validates the configuration at path, or the
// one PULSE_CONFIG names when path is empty.
func LoadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, Validation("%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, Validation("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// Open builds the Environment and starts its event loop. Nothing is
// dialed until Connect.
func Open(options Options) (*Environment, error) {
	cfg := options.Config
	if cfg == nil {
		loaded, err := LoadConfig(options.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, Internal("%w", err)
	}

	logger := options.Logger
	if logger == nil {
		built, _, err := NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = built
	}

	identity, err := sealed.LoadOrCreate(cfg.Paths.Identity)
	if err != nil {
		return nil, Internal("loading identity: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	loopContext, stopLoop := context.WithCancel(context.Background())
	loop := messaging.NewLoop()
	go loop.Run(loopContext)

	dialer := options.Dialer
	if dialer == nil {
		dialer = &messaging.WebSocketDialer{
			URL:    cfg.Server.URL,
			APIKey: cfg.Server.APIKey,
			Logger: logger.With("component", "websocket"),
		}
	}
	session, err := messaging.NewSession(messaging.SessionConfig{
		Dialer:    dialer,
		Executor:  loop,
		Version:   cfg.Server.ProtocolVersion,
		UserAgent: cfg.Server.UserAgent,
		Language:  cfg.Server.Language,
		Metrics:   messaging.NewMetrics(registry),
		Logger:    logger.With("component", "session"),
	})
	if err != nil {
		stopLoop()
		identity.Close()
		return nil, Internal("%w", err)
	}
	client, err := chat.NewClient(chat.ClientConfig{
		Session:         session,
		Executor:        loop,
		HistoryPageSize: cfg.Session.HistoryPageSize,
		SendTimeout:     cfg.Session.SendTimeout,
		TypingExpiry:    cfg.Session.TypingExpiry,
		SearchDebounce:  cfg.Session.SearchDebounce,
		SearchMinLength: cfg.Session.SearchMinLength,
		Metrics:         chat.NewMetrics(registry),
		Logger:          logger,
	})
	if err != nil {
		session.Close()
		stopLoop()
		identity.Close()
		return nil, Internal("%w", err)
	}

	env := &Environment{
		Config:      cfg,
		Logger:      logger,
		Registry:    registry,
		Loop:        loop,
		Session:     session,
		Client:      client,
		Credentials: credstore.New(cfg.Paths.Credentials, identity),
		identity:    identity,
		stopLoop:    stopLoop,
	}
	if cfg.Metrics.Listen != "" {
		if err := env.serveMetrics(cfg.Metrics.Listen); err != nil {
			env.Close()
			return nil, err
		}
	}
	return env, nil
}

func (e *Environment) serveMetrics(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return Internal("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{}))
	e.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Error("metrics server stopped", "error", err)
		}
	}()
	e.Logger.Info("serving metrics", "address", listener.Addr().String())
	return nil
}

// Do runs f on the event loop and waits for it.
func (e *Environment) Do(ctx context.Context, f func()) error {
	return e.Loop.Do(ctx, f)
}

// Connect dials and completes the handshake, retrying dial and
// connection failures with exponential backoff from the retry
// section. A handshake the server refuses is not retried.
func (e *Environment) Connect(ctx context.Context) error {
	retry := e.Config.Retry
	strategy := backoff.WithContext(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(retry.InitialInterval),
			backoff.WithMaxInterval(retry.MaxInterval),
			backoff.WithMaxElapsedTime(retry.MaxElapsed),
		),
		ctx,
	)

	operation := func() error {
		err := e.connectOnce(ctx)
		var connErr *messaging.ConnectionError
		if err != nil && !errors.As(err, &connErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.RetryNotify(operation, strategy, func(err error, next time.Duration) {
		e.Logger.Warn("connect failed, retrying", "error", err, "next_attempt", next)
	})
	if err == nil {
		return nil
	}
	var connErr *messaging.ConnectionError
	if errors.As(err, &connErr) {
		return Transient("cannot reach %s: %w", e.Config.Server.URL, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return Internal("handshake with %s: %w", e.Config.Server.URL, err)
}

func (e *Environment) connectOnce(ctx context.Context) error {
	if err := e.Session.Connect(ctx); err != nil {
		return err
	}
	replies := make(chan error, 1)
	if _, err := e.Session.Handshake(func(ctrl *messaging.Ctrl, err error) {
		if err == nil {
			err = messaging.ReplyErrorFrom(ctrl)
		}
		replies <- err
	}); err != nil {
		e.Session.Disconnect()
		return err
	}
	select {
	case err := <-replies:
		if err != nil {
			e.Session.Disconnect()
		}
		return err
	case <-ctx.Done():
		e.Session.Disconnect()
		return ctx.Err()
	}
}

// Close stops the client and releases everything Open acquired.
func (e *Environment) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Loop.Do(ctx, e.Client.Close); err != nil {
		e.Logger.Debug("closing client", "error", err)
	}
	var errs []error
	if err := e.Session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing session: %w", err))
	}
	e.stopLoop()
	<-e.Loop.Done()
	if e.metricsServer != nil {
		if err := e.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping metrics server: %w", err))
		}
	}
	if err := e.identity.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
