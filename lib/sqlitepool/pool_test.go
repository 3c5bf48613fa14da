// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/pulse-chat/pulse/lib/sqlitepool"
)

func queryInt(t *testing.T, conn *sqlite.Conn, query string) int {
	t.Helper()
	var result int
	err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return result
}

func TestOpenAppliesPragmas(t *testing.T) {
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var journalMode string
	err = sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
	if synchronous := queryInt(t, conn, "PRAGMA synchronous"); synchronous != 1 {
		t.Errorf("synchronous = %d, want 1 (NORMAL)", synchronous)
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	migrations := []string{
		`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`,
		`INSERT INTO items (name) VALUES ('seed');`,
	}

	for round := 0; round < 2; round++ {
		pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path, Migrations: migrations})
		if err != nil {
			t.Fatalf("Open round %d: %v", round, err)
		}
		conn, err := pool.Take(context.Background())
		if err != nil {
			t.Fatalf("Take: %v", err)
		}
		if version := queryInt(t, conn, "PRAGMA user_version"); version != 2 {
			t.Errorf("round %d: user_version = %d, want 2", round, version)
		}
		if count := queryInt(t, conn, "SELECT count(*) FROM items"); count != 1 {
			t.Errorf("round %d: items = %d, want 1 (seed inserted once)", round, count)
		}
		pool.Put(conn)
		if err := pool.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestMigrationsAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	first := []string{`CREATE TABLE items (id INTEGER PRIMARY KEY);`}
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path, Migrations: first})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pool.Close()

	second := append(first, `ALTER TABLE items ADD COLUMN name TEXT;`)
	pool, err = sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path, Migrations: second})
	if err != nil {
		t.Fatalf("Open with appended migration: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteTransient(conn, "INSERT INTO items (name) VALUES ('x')", nil); err != nil {
		t.Fatalf("insert into migrated column: %v", err)
	}
}

func TestNewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:       path,
		Migrations: []string{`CREATE TABLE a (x);`, `CREATE TABLE b (x);`},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pool.Close()

	_, err = sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:       path,
		Migrations: []string{`CREATE TABLE a (x);`},
	})
	if err == nil || !strings.Contains(err.Error(), "newer than this binary") {
		t.Fatalf("Open with fewer migrations = %v, want newer-schema error", err)
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	_, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:       path,
		Migrations: []string{`CREATE TABLE a (x);`, `THIS IS NOT SQL;`},
	})
	if err == nil {
		t.Fatal("Open with a broken migration should fail")
	}

	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer pool.Close()
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)
	if version := queryInt(t, conn, "PRAGMA user_version"); version != 0 {
		t.Errorf("user_version = %d after failed migration, want 0", version)
	}
	if tables := queryInt(t, conn, "SELECT count(*) FROM sqlite_master WHERE name = 'a'"); tables != 0 {
		t.Errorf("table a exists after rollback")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sqlitepool.Open(context.Background(), sqlitepool.Config{}); err == nil {
		t.Fatal("Open without a path should fail")
	}
}
