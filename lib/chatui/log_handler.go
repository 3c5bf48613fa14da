// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// ScreenLogHandler is a slog.Handler that shows records in the chat
// screen's status bar instead of writing to the terminal underneath
// it. Records below the level are dropped, and so is anything logged
// before SetSender.
//
// Handlers derived with WithAttrs and WithGroup share the sender, so
// one SetSender call reaches all of them.
type ScreenLogHandler struct {
	level  slog.Level
	sender *atomic.Pointer[senderBox]
	attrs  []slog.Attr
	groups []string
}

type senderBox struct{ Sender }

// NewScreenLogHandler returns a handler for records at or above level.
func NewScreenLogHandler(level slog.Level) *ScreenLogHandler {
	return &ScreenLogHandler{
		level:  level,
		sender: &atomic.Pointer[senderBox]{},
	}
}

// SetSender starts delivery. Safe to call from any goroutine.
func (handler *ScreenLogHandler) SetSender(sender Sender) {
	if sender == nil {
		handler.sender.Store(nil)
		return
	}
	handler.sender.Store(&senderBox{sender})
}

// Enabled implements slog.Handler.
func (handler *ScreenLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

// Handle formats the record as "message (key=value, ...)" and sends it
// to the screen.
func (handler *ScreenLogHandler) Handle(_ context.Context, record slog.Record) error {
	box := handler.sender.Load()
	if box == nil {
		return nil
	}

	prefix := strings.Join(handler.groups, ".")
	if prefix != "" {
		prefix += "."
	}
	var parts []string
	for _, attr := range handler.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s%s=%s", prefix, attr.Key, attr.Value))
		return true
	})

	summary := record.Message
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}
	box.Send(logRecordMsg{Summary: summary, Level: record.Level})
	return nil
}

// WithAttrs implements slog.Handler.
func (handler *ScreenLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(handler.groups, ".")
	derived := handler.derive()
	for _, attr := range attrs {
		if prefix != "" {
			attr.Key = prefix + "." + attr.Key
		}
		derived.attrs = append(derived.attrs, attr)
	}
	return derived
}

// WithGroup implements slog.Handler.
func (handler *ScreenLogHandler) WithGroup(name string) slog.Handler {
	derived := handler.derive()
	if name != "" {
		derived.groups = append(derived.groups, name)
	}
	return derived
}

func (handler *ScreenLogHandler) derive() *ScreenLogHandler {
	return &ScreenLogHandler{
		level:  handler.level,
		sender: handler.sender,
		attrs:  append([]slog.Attr(nil), handler.attrs...),
		groups: append([]string(nil), handler.groups...),
	}
}
