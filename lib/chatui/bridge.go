// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pulse-chat/pulse/chat"
	"github.com/pulse-chat/pulse/lib/historycache"
	"github.com/pulse-chat/pulse/messaging"
)

// Sender delivers messages to the screen. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Actions are the user's requests, as the screen issues them. Every
// method returns at once; outcomes arrive later as messages.
type Actions interface {
	// Open makes topic the active conversation, subscribing with the
	// latest page of history if needed.
	Open(topic string)

	Send(topic, text string)

	// LoadOlder fetches the page above the loaded messages.
	LoadOlder(topic string)

	// Search starts a debounced directory search. A short query
	// clears the results.
	Search(query string)

	// Typing tells the topic's participants the user is typing.
	Typing(topic string)
}

// Loop is the part of messaging.Loop the bridge uses.
type Loop interface {
	messaging.Executor
	Do(ctx context.Context, f func()) error
}

const (
	defaultSeedSize    = 50
	persistQueueLength = 64
	cacheTimeout       = 5 * time.Second
)

// BridgeConfig holds the parameters for NewBridge.
type BridgeConfig struct {
	Client *chat.Client

	// Loop must be the loop the client's session delivers on.
	Loop Loop

	// Cache, when set, seeds topics before they subscribe and stores
	// every message that arrives. Optional.
	Cache *historycache.Cache

	// SeedSize is how many cached messages a topic starts with
	// (default 50).
	SeedSize int

	Logger *slog.Logger
}

// Bridge connects the chat components on the event loop to the
// screen. All of its state is owned by the loop.
type Bridge struct {
	client   *chat.Client
	loop     Loop
	cache    *historycache.Cache
	seedSize int
	logger   *slog.Logger

	sender  Sender
	active  string
	seeding bool
	closed  bool
	cancels []func()
	watched map[string]func()
	seeded  map[string]bool

	persist    chan []historycache.Entry
	quit       chan struct{}
	workerDone chan struct{}
}

var _ Actions = (*Bridge)(nil)

// NewBridge checks config and returns an idle bridge.
func NewBridge(config BridgeConfig) (*Bridge, error) {
	if config.Client == nil {
		return nil, errors.New("chatui: client is required")
	}
	if config.Loop == nil {
		return nil, errors.New("chatui: loop is required")
	}
	if config.SeedSize <= 0 {
		config.SeedSize = defaultSeedSize
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{
		client:     config.Client,
		loop:       config.Loop,
		cache:      config.Cache,
		seedSize:   config.SeedSize,
		logger:     config.Logger,
		watched:    make(map[string]func()),
		seeded:     make(map[string]bool),
		persist:    make(chan []historycache.Entry, persistQueueLength),
		quit:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}, nil
}

// Start begins forwarding to sender and subscribes the roster. The
// client must already be authenticated.
func (b *Bridge) Start(sender Sender) {
	b.sender = sender
	if b.cache != nil {
		go b.persistLoop()
	} else {
		close(b.workerDone)
	}
	b.loop.Post(func() {
		roster := b.client.Roster()
		b.cancels = append(b.cancels,
			roster.OnEvent(b.rosterEvent),
			b.client.Presence().OnChange(func(state chat.PresenceState) {
				b.sender.Send(PresenceMsg{State: state})
			}),
			b.client.Directory().OnResults(func(event chat.SearchEvent) {
				b.sender.Send(SearchMsg{Event: event})
			}),
		)
		b.sender.Send(SelfMsg{UserID: b.client.Auth().UserID()})
		b.sender.Send(RosterMsg{Entries: roster.Entries()})
		for _, state := range b.client.Presence().Snapshot() {
			b.sender.Send(PresenceMsg{State: state})
		}
		if err := roster.Subscribe(); err != nil {
			b.notice(true, "Cannot load conversations: %v", err)
		}
	})
}

// Close stops forwarding and flushes queued cache writes. It must be
// called while the loop still runs.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.loop.Do(ctx, func() {
		b.closed = true
		for _, cancel := range b.cancels {
			cancel()
		}
		for _, cancel := range b.watched {
			cancel()
		}
		b.cancels = nil
		clear(b.watched)
	})
	close(b.quit)
	select {
	case <-b.workerDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (b *Bridge) Open(topic string) {
	b.loop.Post(func() { b.open(topic) })
}

func (b *Bridge) Send(topic, text string) {
	b.loop.Post(func() {
		t, ok := b.client.Topic(topic)
		if !ok {
			b.notice(true, "%s is not open", topic)
			return
		}
		if _, err := t.Send(text); err != nil {
			b.notice(true, "Not sent: %v", err)
		}
	})
}

func (b *Bridge) LoadOlder(topic string) {
	b.loop.Post(func() {
		t, ok := b.client.Topic(topic)
		if !ok {
			return
		}
		err := t.LoadOlder(0)
		switch {
		case err == nil, errors.Is(err, chat.ErrPageInFlight):
		case errors.Is(err, chat.ErrNoOlderHistory):
			b.notice(false, "No older messages.")
		default:
			b.notice(true, "Cannot load history: %v", err)
		}
	})
}

func (b *Bridge) Search(query string) {
	b.loop.Post(func() { b.client.Directory().Search(query) })
}

func (b *Bridge) Typing(topic string) {
	b.loop.Post(func() {
		t, ok := b.client.Topic(topic)
		if !ok {
			return
		}
		if err := t.NoteTyping(); err != nil {
			b.logger.Debug("typing note dropped", "topic", topic, "error", err)
		}
	})
}

func (b *Bridge) open(name string) {
	if b.closed {
		return
	}
	if b.active != "" && b.active != name {
		if previous, ok := b.client.Topic(b.active); ok {
			previous.SetActive(false)
		}
	}
	topic, err := b.client.Open(name)
	if err != nil {
		b.notice(true, "Cannot open %s: %v", name, err)
		return
	}
	b.active = name
	b.watch(topic)
	b.sendTopic(topic)

	if topic.Subscribed() {
		topic.SetActive(true)
		return
	}
	if b.cache == nil || b.seeded[name] {
		b.subscribe(topic)
		return
	}
	b.seeded[name] = true
	go b.seed(name)
}

// seed reads the cache off the loop, then merges and subscribes on it.
func (b *Bridge) seed(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	entries, err := b.cache.Recent(ctx, name, b.seedSize)
	cancel()
	if err != nil {
		b.logger.Warn("reading cached history failed", "topic", name, "error", err)
	}
	b.loop.Post(func() {
		topic, ok := b.client.Topic(name)
		if !ok || b.closed {
			return
		}
		if len(entries) > 0 {
			b.seeding = true
			topic.MergeCached(cachedMessages(entries))
			b.seeding = false
		}
		b.subscribe(topic)
	})
}

func (b *Bridge) subscribe(topic *chat.Topic) {
	if err := topic.Subscribe(true); err != nil {
		b.notice(true, "Cannot open %s: %v", topic.Name(), err)
		return
	}
	// Only records the flag: the topic is not subscribed yet. The tail
	// is marked read on EventSubscribed or EventHistoryPrepended.
	topic.SetActive(topic.Name() == b.active)
}

func (b *Bridge) watch(topic *chat.Topic) {
	name := topic.Name()
	if _, ok := b.watched[name]; ok {
		return
	}
	b.watched[name] = topic.OnEvent(func(event chat.TopicEvent) {
		b.topicEvent(topic, event)
	})
}

func (b *Bridge) topicEvent(topic *chat.Topic, event chat.TopicEvent) {
	name := topic.Name()
	switch event.Kind {
	case chat.EventAppended, chat.EventUpdated:
		b.store(name, event.Message)
	case chat.EventHistoryPrepended:
		if !b.seeding {
			b.store(name, event.Batch...)
		}
		if name == b.active {
			topic.SetActive(true)
		}
	case chat.EventSubscribed:
		if name == b.active {
			topic.SetActive(true)
		}
	case chat.EventSendFailed:
		b.notice(true, "Message to %s was not sent: %v", name, event.Err)
	case chat.EventSendTimedOut:
		b.notice(true, "Message to %s is not confirmed yet.", name)
	case chat.EventSubscribeFailed:
		b.notice(true, "Cannot join %s: %v", name, event.Err)
	case chat.EventHistoryFailed:
		b.notice(true, "Cannot load history of %s: %v", name, event.Err)
	}
	b.sendTopic(topic)
}

func (b *Bridge) rosterEvent(event chat.RosterEvent) {
	if event.Kind == chat.RosterFailed {
		b.notice(true, "Cannot load conversations: %v", event.Err)
		return
	}
	b.sender.Send(RosterMsg{Entries: b.client.Roster().Entries()})
}

func (b *Bridge) sendTopic(topic *chat.Topic) {
	b.sender.Send(TopicMsg{Snapshot: topic.Snapshot(), HasOlder: topic.HasOlder()})
}

func (b *Bridge) notice(isError bool, format string, args ...any) {
	b.sender.Send(NoticeMsg{Text: fmt.Sprintf(format, args...), Error: isError})
}

// store queues messages for the cache. Runs on the loop, so it never
// blocks: a full queue drops the batch.
func (b *Bridge) store(topic string, messages ...chat.Message) {
	if b.cache == nil || b.closed || len(messages) == 0 {
		return
	}
	entries := make([]historycache.Entry, len(messages))
	for i, message := range messages {
		entries[i] = historycache.Entry{
			Topic:  topic,
			Seq:    message.Seq,
			From:   message.From,
			SentAt: message.Timestamp,
			Text:   message.Text,
			Status: message.Status.String(),
		}
	}
	select {
	case b.persist <- entries:
	default:
		b.logger.Warn("history cache queue full, dropping messages", "topic", topic, "count", len(entries))
	}
}

func (b *Bridge) persistLoop() {
	defer close(b.workerDone)
	for {
		select {
		case entries := <-b.persist:
			b.write(entries)
		case <-b.quit:
			for {
				select {
				case entries := <-b.persist:
					b.write(entries)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) write(entries []historycache.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := b.cache.Store(ctx, entries); err != nil {
		b.logger.Warn("caching messages failed", "topic", entries[0].Topic, "error", err)
	}
}

func cachedMessages(entries []historycache.Entry) []chat.Message {
	messages := make([]chat.Message, len(entries))
	for i, entry := range entries {
		messages[i] = chat.Message{
			Seq:       entry.Seq,
			From:      entry.From,
			Text:      entry.Text,
			Timestamp: entry.SentAt,
			Status:    chat.ParseStatus(entry.Status),
		}
	}
	return messages
}
