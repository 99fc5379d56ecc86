// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLite schema:
//
// CREATE TABLE IF NOT EXISTS kv_leaves (
//   path  TEXT PRIMARY KEY,
//   value TEXT NOT NULL
// );
//
// Each row is one flattened leaf keyed by its full path. A subtree at P is the
// row P plus the rows in the half-open range [P + "/", P + "0"), since '0' is
// the byte after '/'.
const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv_leaves (
	path  TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteStore persists the document tree in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "scorekeeper.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv_leaves table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	p := Join(segs...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, value FROM kv_leaves WHERE path = ? OR (path >= ? AND path < ?)`,
		p, p+"/", p+"0")
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", p, err)
	}
	defer func() { _ = rows.Close() }()
	var leaves []leaf
	for rows.Next() {
		var l leaf
		if err := rows.Scan(&l.path, &l.value); err != nil {
			return nil, fmt.Errorf("sqlite scan %s: %w", p, err)
		}
		leaves = append(leaves, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", p, err)
	}
	return unflatten(p, leaves)
}

func (s *SQLiteStore) Set(ctx context.Context, path string, value json.RawMessage) (retErr error) {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	p := Join(segs...)
	v, err := decodeValue(value)
	if err != nil {
		return err
	}
	leaves, err := flatten(p, v)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv_leaves WHERE path = ? OR (path >= ? AND path < ?)`, p, p+"/", p+"0"); err != nil {
		return fmt.Errorf("sqlite clear %s: %w", p, err)
	}
	if v != nil {
		for _, a := range ancestors(p) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv_leaves WHERE path = ?`, a); err != nil {
				return fmt.Errorf("sqlite clear ancestor %s: %w", a, err)
			}
		}
	}
	for _, l := range leaves {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO kv_leaves(path, value) VALUES (?, ?)`, l.path, l.value); err != nil {
			return fmt.Errorf("sqlite insert %s: %w", l.path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit %s: %w", p, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *SQLiteStore) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	return push(ctx, s, path, value)
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }
