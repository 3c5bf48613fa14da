// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "github.com/prometheus/client_golang/prometheus"

// Duplicate sources, the label on DuplicatesIgnored.
const (
	SourceLive    = "live"
	SourceHistory = "history"
	SourceCache   = "cache"
)

// Metrics are the sync-layer counters. A nil *Metrics records nothing.
type Metrics struct {
	DuplicatesIgnored *prometheus.CounterVec
	StaleSearches     prometheus.Counter
	SendTimeouts      prometheus.Counter
	SendFailures      prometheus.Counter
	TypingExpiries    prometheus.Counter
	Unrouted          *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on registerer
// when it is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		DuplicatesIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "sync",
			Name:      "duplicates_ignored_total",
			Help:      "Messages dropped because their seq was already present, by source.",
		}, []string{"source"}),
		StaleSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "sync",
			Name:      "stale_search_replies_total",
			Help:      "Directory replies discarded because a newer query superseded them.",
		}),
		SendTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "sync",
			Name:      "send_timeouts_total",
			Help:      "Sends not confirmed within the send timeout.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "sync",
			Name:      "send_failures_total",
			Help:      "Sends refused by the server.",
		}),
		TypingExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "sync",
			Name:      "typing_expiries_total",
			Help:      "Typing indicators cleared by timeout.",
		}),
		Unrouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "sync",
			Name:      "unrouted_envelopes_total",
			Help:      "Envelopes for topics with no open synchronizer, by category.",
		}, []string{"category"}),
	}
	if registerer != nil {
		registerer.MustRegister(
			metrics.DuplicatesIgnored,
			metrics.StaleSearches,
			metrics.SendTimeouts,
			metrics.SendFailures,
			metrics.TypingExpiries,
			metrics.Unrouted,
		)
	}
	return metrics
}

func (m *Metrics) duplicate(source string) {
	if m != nil {
		m.DuplicatesIgnored.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) staleSearch() {
	if m != nil {
		m.StaleSearches.Inc()
	}
}

func (m *Metrics) sendTimeout() {
	if m != nil {
		m.SendTimeouts.Inc()
	}
}

func (m *Metrics) sendFailure() {
	if m != nil {
		m.SendFailures.Inc()
	}
}

func (m *Metrics) typingExpired() {
	if m != nil {
		m.TypingExpiries.Inc()
	}
}

func (m *Metrics) unrouted(category string) {
	if m != nil {
		m.Unrouted.WithLabelValues(category).Inc()
	}
}
