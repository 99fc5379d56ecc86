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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres schema (created on startup):
//
// CREATE TABLE IF NOT EXISTS kv_leaves (
//   path  TEXT COLLATE "C" PRIMARY KEY,
//   value TEXT NOT NULL
// );
//
// The "C" collation keeps byte ordering so a subtree is a primary-key range scan.
const postgresSchema = `CREATE TABLE IF NOT EXISTS kv_leaves (
	path  TEXT COLLATE "C" PRIMARY KEY,
	value TEXT NOT NULL
)`

// PostgresStore persists the document tree in one Postgres table.
type PostgresStore struct {
	pool           *pgxpool.Pool
	defaultTimeout time.Duration
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create kv_leaves table: %w", err)
	}
	return &PostgresStore{pool: pool, defaultTimeout: 10 * time.Second}, nil
}

// bound applies the default timeout when the caller did not set a deadline.
func (p *PostgresStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		return context.WithTimeout(ctx, p.defaultTimeout)
	}
	return ctx, func() {}
}

func (p *PostgresStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	key := Join(segs...)
	ctx, cancel := p.bound(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT path, value FROM kv_leaves WHERE path = $1 OR (path >= $2 AND path < $3)`,
		key, key+"/", key+"0")
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	defer rows.Close()
	var leaves []leaf
	for rows.Next() {
		var l leaf
		if err := rows.Scan(&l.path, &l.value); err != nil {
			return nil, fmt.Errorf("postgres scan %s: %w", key, err)
		}
		leaves = append(leaves, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return unflatten(key, leaves)
}

func (p *PostgresStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	key := Join(segs...)
	v, err := decodeValue(value)
	if err != nil {
		return err
	}
	leaves, err := flatten(key, v)
	if err != nil {
		return err
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM kv_leaves WHERE path = $1 OR (path >= $2 AND path < $3)`, key, key+"/", key+"0"); err != nil {
		return fmt.Errorf("postgres clear %s: %w", key, err)
	}
	if v != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM kv_leaves WHERE path = ANY($1)`, ancestors(key)); err != nil {
			return fmt.Errorf("postgres clear ancestors %s: %w", key, err)
		}
	}
	if len(leaves) > 0 {
		paths := make([]string, len(leaves))
		values := make([]string, len(leaves))
		for i, l := range leaves {
			paths[i], values[i] = l.path, l.value
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO kv_leaves(path, value)
			 SELECT * FROM unnest($1::text[], $2::text[])
			 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value`, paths, values); err != nil {
			return fmt.Errorf("postgres insert %s: %w", key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres commit %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Remove(ctx context.Context, path string) error {
	return p.Set(ctx, path, nil)
}

func (p *PostgresStore) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	return push(ctx, p, path, value)
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
