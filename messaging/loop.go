// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"sync"
)

// Executor runs posted functions one at a time, in order.
type Executor interface {
	Post(f func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(f func())

// Post calls e(f).
func (e ExecutorFunc) Post(f func()) { e(f) }

// Inline runs each posted function immediately on the posting
// goroutine. It is only sequential if every Post comes from one
// goroutine, which holds in unit tests driven by a fake clock.
var Inline Executor = ExecutorFunc(func(f func()) { f() })

// ErrLoopStopped is returned by Do once the loop has stopped.
var ErrLoopStopped = errors.New("messaging: event loop stopped")

// Loop is the client's single event loop. Post never blocks: the queue
// is unbounded, so handlers running on the loop may post to it.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewLoop returns a loop that does nothing until Run.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues f. Functions posted after the loop stops are dropped.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs f on the loop and waits for it to return. It must not be
// called from the loop itself.
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		f()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is done. Work still queued
// at that point is discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, f := range batch {
			if ctx.Err() != nil {
				break
			}
			f()
		}
		if len(batch) > 0 && ctx.Err() == nil {
			continue
		}

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.queue = nil
			l.mu.Unlock()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
