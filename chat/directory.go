// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pulse-chat/pulse/lib/clock"
	"github.com/pulse-chat/pulse/messaging"
)

// SearchResult is one directory hit.
type SearchResult struct {
	// TopicID is the id to open a conversation with, usually a user
	// id.
	TopicID     string
	DisplayName string
}

// SearchEvent reports the results for Query. Err is set when the
// search request failed.
type SearchEvent struct {
	Query   string
	Results []SearchResult
	Err     error
}

// DirectoryConfig holds the parameters for NewDirectory.
type DirectoryConfig struct {
	Transport Transport
	Executor  messaging.Executor
	Clock     clock.Clock

	// Debounce is the quiet period after the last Search call before
	// a request is sent (default 500ms).
	Debounce time.Duration

	// MinLength is the shortest query that is searched (default 3).
	MinLength int

	Metrics *Metrics
	Logger  *slog.Logger
}

// Directory runs debounced user searches against the fnd topic. Every
// Search call supersedes the previous one: its pending debounce is
// dropped and any reply to its request is discarded when it arrives.
type Directory struct {
	transport Transport
	executor  messaging.Executor
	clock     clock.Clock
	debounce  time.Duration
	minLength int
	metrics   *Metrics
	logger    *slog.Logger

	generation uint64
	timer      *clock.Timer
	query      string
	inFlight   int64
	results    []SearchResult

	subscribed  bool
	subscribing bool

	observers messaging.Observers[SearchEvent]
}

// NewDirectory returns an idle Directory.
func NewDirectory(config DirectoryConfig) (*Directory, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("chat: directory: transport is required")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("chat: directory: executor is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	if config.MinLength <= 0 {
		config.MinLength = 3
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		transport: config.Transport,
		executor:  config.Executor,
		clock:     config.Clock,
		debounce:  config.Debounce,
		minLength: config.MinLength,
		metrics:   config.Metrics,
		logger:    logger,
	}, nil
}

// OnResults observes search results.
func (d *Directory) OnResults(handler func(SearchEvent)) (cancel func()) {
	return d.observers.Observe(handler)
}

// Query returns the latest query passed to Search.
func (d *Directory) Query() string { return d.query }

// Results returns a copy of the latest results.
func (d *Directory) Results() []SearchResult { return slices.Clone(d.results) }

// Search starts a search for query. A query shorter than the minimum
// length yields empty results at once.
func (d *Directory) Search(query string) {
	d.cancel()
	query = strings.TrimSpace(query)
	d.query = query

	if utf8.RuneCountInString(query) < d.minLength {
		d.publish(SearchEvent{Query: query})
		return
	}

	generation := d.generation
	d.timer = d.clock.AfterFunc(d.debounce, func() {
		d.executor.Post(func() { d.fire(generation, query) })
	})
}

// cancel supersedes the current search.
func (d *Directory) cancel() {
	d.generation++
	d.inFlight = 0
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Directory) fire(generation uint64, query string) {
	if generation != d.generation {
		return
	}
	d.timer = nil

	if err := d.ensureSubscribed(); err != nil {
		d.publish(SearchEvent{Query: query, Err: err})
		return
	}
	id, err := d.transport.Request(&messaging.ClientMessage{Get: &messaging.Get{
		Topic: messaging.TopicFind,
		GetQuery: messaging.GetQuery{
			What: "sub",
			Sub:  &messaging.GetOpts{Query: query},
		},
	}}, nil)
	if err != nil {
		d.publish(SearchEvent{Query: query, Err: fmt.Errorf("chat: search: %w", err)})
		return
	}
	d.inFlight = id
	d.logger.Debug("search sent", "request_id", id, "query", query)
}

// ensureSubscribed subscribes to fnd once. The get is pipelined behind
// the sub on the same connection, so it does not wait for the reply.
func (d *Directory) ensureSubscribed() error {
	if d.subscribed || d.subscribing {
		return nil
	}
	_, err := d.transport.Request(&messaging.ClientMessage{Sub: &messaging.Sub{
		Topic: messaging.TopicFind,
	}}, func(ctrl *messaging.Ctrl, err error) {
		d.subscribing = false
		if err == nil && (ctrl.Success() || ctrl.Code == 304) {
			d.subscribed = true
			return
		}
		if err == nil {
			err = messaging.ReplyErrorFrom(ctrl)
		}
		d.logger.Warn("subscribing to directory failed", "error", err)
	})
	if err != nil {
		return fmt.Errorf("chat: search: subscribing to %s: %w", messaging.TopicFind, err)
	}
	d.subscribing = true
	return nil
}

// HandleMeta accepts the result list of the in-flight search. Replies
// to superseded searches are counted and dropped.
func (d *Directory) HandleMeta(meta *messaging.Meta) {
	if meta.Topic != messaging.TopicFind {
		return
	}
	if id := meta.RequestID(); id == 0 || id != d.inFlight {
		d.metrics.staleSearch()
		d.logger.Debug("stale search reply discarded", "request_id", meta.ID)
		return
	}
	d.inFlight = 0

	results := make([]SearchResult, 0, len(meta.Sub))
	for _, sub := range meta.Sub {
		id := sub.User
		if id == "" {
			id = sub.Topic
		}
		if id == "" {
			continue
		}
		results = append(results, SearchResult{TopicID: id, DisplayName: sub.Public.DisplayName(id)})
	}
	d.publish(SearchEvent{Query: d.query, Results: results})
}

// HandleCtrl completes a search that found nothing (no content) or
// failed. Successful searches complete through HandleMeta.
func (d *Directory) HandleCtrl(ctrl *messaging.Ctrl) {
	if ctrl.Topic != messaging.TopicFind || d.inFlight == 0 || ctrl.RequestID() != d.inFlight {
		return
	}
	switch {
	case ctrl.Code == messaging.CodeNoContent:
		d.inFlight = 0
		d.publish(SearchEvent{Query: d.query})
	case !ctrl.Success():
		d.inFlight = 0
		d.publish(SearchEvent{Query: d.query, Err: messaging.ReplyErrorFrom(ctrl)})
	}
}

// Reset supersedes any search and forgets the fnd subscription, as
// after logout or a lost connection.
func (d *Directory) Reset() {
	d.cancel()
	d.subscribed = false
	d.subscribing = false
	d.query = ""
	d.results = nil
}

func (d *Directory) publish(event SearchEvent) {
	if event.Err == nil {
		d.results = slices.Clone(event.Results)
	}
	d.observers.Notify(event)
}
