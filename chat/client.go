// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

// ClientConfig holds the parameters for NewClient.
type ClientConfig struct {
	Session Session

	// Executor must be the executor the Session dispatches on.
	Executor messaging.Executor
	Clock    clock.Clock

	HistoryPageSize int
	SendTimeout     time.Duration
	TypingExpiry    time.Duration
	SearchDebounce  time.Duration
	SearchMinLength int

	Metrics *Metrics
	Logger  *slog.Logger
}

// Client owns the synchronizers for one Session and routes each
// inbound envelope to the components it concerns. Methods must be
// called on the executor.
type Client struct {
	session  Session
	executor messaging.Executor
	clock    clock.Clock
	config   ClientConfig
	metrics  *Metrics
	logger   *slog.Logger

	auth      *Auth
	presence  *Presence
	directory *Directory
	roster    *Roster
	topics    map[string]*Topic

	cancels []func()
}

// NewClient builds every component and starts routing.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("chat: client: session is required")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("chat: client: executor is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		session:  config.Session,
		executor: config.Executor,
		clock:    config.Clock,
		config:   config,
		metrics:  config.Metrics,
		logger:   logger,
		topics:   make(map[string]*Topic),
	}
	c.auth = NewAuth(AuthConfig{Transport: config.Session, Logger: logger.With("component", "auth")})
	c.presence = NewPresence(PresenceConfig{
		Executor:     config.Executor,
		Clock:        config.Clock,
		TypingExpiry: config.TypingExpiry,
		UserID:       config.Session.UserID,
		Metrics:      config.Metrics,
		Logger:       logger.With("component", "presence"),
	})
	var err error
	c.directory, err = NewDirectory(DirectoryConfig{
		Transport: config.Session,
		Executor:  config.Executor,
		Clock:     config.Clock,
		Debounce:  config.SearchDebounce,
		MinLength: config.SearchMinLength,
		Metrics:   config.Metrics,
		Logger:    logger.With("component", "directory"),
	})
	if err != nil {
		return nil, err
	}
	c.roster, err = NewRoster(RosterConfig{
		Transport: config.Session,
		Gate:      c.auth,
		Clock:     config.Clock,
		Logger:    logger.With("component", "roster"),
	})
	if err != nil {
		return nil, err
	}

	c.cancels = append(c.cancels,
		config.Session.OnCtrl(c.routeCtrl),
		config.Session.OnData(c.routeData),
		config.Session.OnPres(c.routePres),
		config.Session.OnMeta(c.routeMeta),
		config.Session.OnInfo(c.routeInfo),
		config.Session.OnDisconnect(c.connectionLost),
		c.auth.OnEvent(c.authChanged),
	)
	return c, nil
}

// Auth returns the login state machine.
func (c *Client) Auth() *Auth { return c.auth }

// Presence returns the presence tracker.
func (c *Client) Presence() *Presence { return c.presence }

// Directory returns the user search.
func (c *Client) Directory() *Directory { return c.directory }

// Roster returns the conversation list.
func (c *Client) Roster() *Roster { return c.roster }

// Open returns the Topic for name, creating it on first use. The
// caller subscribes it.
func (c *Client) Open(name string) (*Topic, error) {
	if topic, ok := c.topics[name]; ok {
		return topic, nil
	}
	if name == messaging.TopicMe || name == messaging.TopicFind {
		return nil, fmt.Errorf("chat: %s is a system topic", name)
	}
	topic, err := NewTopic(TopicConfig{
		Name:           name,
		Transport:      c.session,
		Gate:           c.auth,
		Executor:       c.executor,
		Clock:          c.clock,
		PageSize:       c.config.HistoryPageSize,
		SendTimeout:    c.config.SendTimeout,
		TypingInterval: c.config.TypingExpiry / 2,
		Metrics:        c.metrics,
		Logger:         c.logger,
	})
	if err != nil {
		return nil, err
	}
	topic.OnEvent(func(event TopicEvent) {
		if event.Kind == EventReadPosition {
			c.roster.UpdateRead(event.Topic, event.ReadSeq)
		}
	})
	c.topics[name] = topic
	return topic, nil
}

// Topic returns an open topic.
func (c *Client) Topic(name string) (*Topic, bool) {
	topic, ok := c.topics[name]
	return topic, ok
}

// Topics returns the names of the open topics, sorted.
func (c *Client) Topics() []string {
	return slices.Sorted(maps.Keys(c.topics))
}

// Leave unsubscribes from name and forgets it.
func (c *Client) Leave(name string, unsub bool) error {
	topic, ok := c.topics[name]
	if !ok {
		return nil
	}
	delete(c.topics, name)
	return topic.Leave(unsub)
}

// Close stops routing and releases every component's timers. It does
// not close the Session.
func (c *Client) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	c.dropTopics()
	c.presence.Reset()
	c.directory.Reset()
}

func (c *Client) routeCtrl(ctrl *messaging.Ctrl) {
	switch ctrl.Topic {
	case "", messaging.TopicMe:
	case messaging.TopicFind:
		c.directory.HandleCtrl(ctrl)
	default:
		if topic, ok := c.topics[ctrl.Topic]; ok {
			topic.HandleCtrl(ctrl)
		}
	}
}

func (c *Client) routeData(data *messaging.Data) {
	topic, ok := c.topics[data.Topic]
	if !ok {
		c.metrics.unrouted("data")
		c.logger.Debug("data for unopened topic", "topic", data.Topic, "seq", data.Seq)
		return
	}
	topic.HandleData(data)
}

func (c *Client) routePres(pres *messaging.Pres) {
	c.presence.HandlePres(pres)
	if pres.Topic == messaging.TopicMe {
		c.roster.HandlePres(pres)
		if topic, ok := c.topics[pres.Src]; ok && pres.What == "read" {
			topic.HandleInfo(&messaging.Info{Topic: pres.Src, From: c.session.UserID(), What: "read", Seq: pres.Seq})
		}
	}
}

func (c *Client) routeMeta(meta *messaging.Meta) {
	switch meta.Topic {
	case messaging.TopicMe:
		c.roster.HandleMeta(meta)
	case messaging.TopicFind:
		c.directory.HandleMeta(meta)
	default:
		topic, ok := c.topics[meta.Topic]
		if !ok {
			c.metrics.unrouted("meta")
			return
		}
		topic.HandleMeta(meta)
		if meta.Desc != nil {
			c.presence.SetOnline(meta.Topic, meta.Desc.Online)
		}
	}
}

func (c *Client) routeInfo(info *messaging.Info) {
	c.presence.HandleInfo(info)
	if topic, ok := c.topics[info.Topic]; ok {
		topic.HandleInfo(info)
	} else if info.What != "kp" {
		c.metrics.unrouted("info")
	}
}

func (c *Client) connectionLost(err *messaging.ConnectionError) {
	c.logger.Warn("connection lost", "error", err)
	c.auth.connectionLost(err)
	for _, name := range c.Topics() {
		c.topics[name].connectionLost()
	}
	c.roster.connectionLost()
	c.directory.Reset()
	c.presence.Reset()
}

func (c *Client) authChanged(event AuthEvent) {
	if event.State != StateUnauthenticated || event.Err != nil {
		return
	}
	c.dropTopics()
	c.roster.Reset()
	c.directory.Reset()
	c.presence.Reset()
}

func (c *Client) dropTopics() {
	for name, topic := range c.topics {
		topic.shutdown()
		delete(c.topics, name)
	}
}
