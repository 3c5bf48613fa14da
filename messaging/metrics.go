// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the transport counters. A nil *Metrics records nothing.
type Metrics struct {
	Received   *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Requests   *prometheus.CounterVec
	Connects   prometheus.Counter
	Disconnect prometheus.Counter
}

// NewMetrics creates the counters and registers them on registerer
// when it is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "transport",
			Name:      "envelopes_received_total",
			Help:      "Inbound envelopes dispatched, by category.",
		}, []string{"category"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "transport",
			Name:      "envelopes_dropped_total",
			Help:      "Inbound frames dropped as protocol errors, by reason.",
		}, []string{"reason"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "transport",
			Name:      "requests_sent_total",
			Help:      "Outbound requests queued, by envelope kind.",
		}, []string{"kind"}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "transport",
			Name:      "connects_total",
			Help:      "Connections established.",
		}),
		Disconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "transport",
			Name:      "disconnects_total",
			Help:      "Connections lost to read or write failures.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(metrics.Received, metrics.Dropped, metrics.Requests, metrics.Connects, metrics.Disconnect)
	}
	return metrics
}

func (m *Metrics) received(category string) {
	if m != nil {
		m.Received.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) request(kind string) {
	if m != nil {
		m.Requests.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.Connects.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.Disconnect.Inc()
	}
}
