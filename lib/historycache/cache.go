// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package historycache keeps recently seen messages per topic in a
// local SQLite database, so a conversation can render before the
// server replies to its subscribe.
//
// Rows are keyed by (topic, seq). Seq is assigned by the server and
// never reused within a topic, so a re-stored message replaces its
// row in place (only the delivery status ever changes).
package historycache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/pulse-chat/pulse/lib/codec"
	"github.com/pulse-chat/pulse/lib/sqlitepool"
)

var migrations = []string{
	`CREATE TABLE messages (
		topic   TEXT    NOT NULL,
		seq     INTEGER NOT NULL,
		sender  TEXT    NOT NULL,
		sent_at INTEGER NOT NULL,
		body    BLOB    NOT NULL,
		PRIMARY KEY (topic, seq)
	) WITHOUT ROWID;`,
}

// Entry is one cached message.
type Entry struct {
	Topic  string
	Seq    int
	From   string
	SentAt time.Time
	Text   string

	// Status is the delivery status name (sent, delivered, read) as
	// last observed.
	Status string
}

// body is the CBOR payload column. Fields only ever get added.
type body struct {
	Text   string `cbor:"text"`
	Status string `cbor:"status,omitempty"`
}

// Cache is safe for concurrent use.
type Cache struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens or creates the cache database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       path,
		Migrations: migrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("historycache: %w", err)
	}
	return &Cache{pool: pool, logger: logger}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.pool.Close()
}

// Store upserts entries in one transaction.
func (c *Cache) Store(ctx context.Context, entries []Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("historycache: %w", err)
	}
	defer c.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("historycache: begin: %w", err)
	}
	defer endFn(&err)

	for _, entry := range entries {
		if entry.Seq <= 0 {
			return fmt.Errorf("historycache: topic %s: invalid seq %d", entry.Topic, entry.Seq)
		}
		encoded, err := codec.Marshal(body{Text: entry.Text, Status: entry.Status})
		if err != nil {
			return fmt.Errorf("historycache: encoding seq %d: %w", entry.Seq, err)
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO messages (topic, seq, sender, sent_at, body) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (topic, seq) DO UPDATE SET body = excluded.body`,
			&sqlitex.ExecOptions{Args: []any{entry.Topic, entry.Seq, entry.From, entry.SentAt.UnixMilli(), encoded}})
		if err != nil {
			return fmt.Errorf("historycache: storing %s/%d: %w", entry.Topic, entry.Seq, err)
		}
	}
	return nil
}

// Recent returns up to limit of the newest entries for topic, in
// ascending seq order.
func (c *Cache) Recent(ctx context.Context, topic string, limit int) ([]Entry, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("historycache: %w", err)
	}
	defer c.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn,
		`SELECT seq, sender, sent_at, body FROM messages WHERE topic = ? ORDER BY seq DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{topic, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				raw := make([]byte, stmt.ColumnLen(3))
				stmt.ColumnBytes(3, raw)
				var decoded body
				if err := codec.Unmarshal(raw, &decoded); err != nil {
					return fmt.Errorf("decoding seq %d: %w", stmt.ColumnInt(0), err)
				}
				entries = append(entries, Entry{
					Topic:  topic,
					Seq:    stmt.ColumnInt(0),
					From:   stmt.ColumnText(1),
					SentAt: time.UnixMilli(stmt.ColumnInt64(2)),
					Text:   decoded.Text,
					Status: decoded.Status,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("historycache: reading %s: %w", topic, err)
	}

	for left, right := 0, len(entries)-1; left < right; left, right = left+1, right-1 {
		entries[left], entries[right] = entries[right], entries[left]
	}
	return entries, nil
}

// Forget drops every entry for topic.
func (c *Cache) Forget(ctx context.Context, topic string) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("historycache: %w", err)
	}
	defer c.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM messages WHERE topic = ?`, &sqlitex.ExecOptions{Args: []any{topic}}); err != nil {
		return fmt.Errorf("historycache: forgetting %s: %w", topic, err)
	}
	c.logger.Debug("history cache cleared", "topic", topic)
	return nil
}

// ForgetAll drops every cached message.
func (c *Cache) ForgetAll(ctx context.Context) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("historycache: %w", err)
	}
	defer c.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM messages`, nil); err != nil {
		return fmt.Errorf("historycache: clearing: %w", err)
	}
	c.logger.Debug("history cache cleared")
	return nil
}
