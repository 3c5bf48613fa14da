// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time so that timer-driven behavior
// (typing indicator expiry, search debounce, send deadlines) can be
// tested deterministically.
//
// Components hold a Clock field. Production code passes [Real]; tests
// pass [Fake] and move time with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	tracker := chat.NewPresenceTracker(chat.PresenceConfig{Clock: fake})
//	fake.Advance(3 * time.Second)
//
// AfterFunc callbacks registered on a FakeClock run synchronously inside
// Advance, in deadline order. A component whose timer callback posts
// work to an inline executor therefore observes the expiry before
// Advance returns.
package clock
