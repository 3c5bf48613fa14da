// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens small SQLite connection pools for local
// client state.
//
// It wraps zombiezen's sqlitex.Pool. Every connection gets WAL
// journaling, synchronous=NORMAL, and a busy timeout; the pool then
// brings the schema up to date by running [Config].Migrations in
// order, tracked with PRAGMA user_version. Callers [Pool.Take] a
// connection, use it from one goroutine, and [Pool.Put] it back.
//
//	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
//	    Path:       cfg.Paths.History,
//	    Migrations: []string{createMessages, addHeadColumn},
//	    Logger:     logger,
//	})
package sqlitepool
