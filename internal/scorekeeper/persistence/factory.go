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
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Options holds the knobs for building a Store.
type Options struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	// RedisTrace logs every EVAL at debug level.
	RedisTrace bool

	SQLitePath  string
	PostgresDSN string

	Logger *zap.Logger
}

// BuildStore constructs a Store based on a string selector.
// Supported drivers:
//   - "memory": in-process tree (default)
//   - "redis": one hash per root, Lua-scripted writes
//   - "sqlite": embedded single-file database
//   - "postgres": shared database via pgxpool
func BuildStore(ctx context.Context, driver string, opts Options) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if opts.RedisAddr == "" {
			return nil, errors.New("redis driver requires an address")
		}
		prefix := opts.RedisKeyPrefix
		if prefix == "" {
			prefix = "scorekeeper:"
		}
		var evaler RedisEvaler = NewGoRedisEvaler(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if opts.RedisTrace {
			evaler = NewLoggingRedisEvaler(evaler, opts.Logger)
		}
		return NewRedisStore(evaler, prefix), nil
	case "sqlite":
		return NewSQLiteStore(opts.SQLitePath)
	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, errors.New("postgres driver requires a dsn")
		}
		return NewPostgresStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}
