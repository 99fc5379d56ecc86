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
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// GoRedisEvaler is a production-ready Redis client wrapper implementing RedisEvaler.
// It uses github.com/redis/go-redis/v9 under the hood.
// Use NewGoRedisEvaler to construct it with an address like "127.0.0.1:6379".
type GoRedisEvaler struct{ c *redis.Client }

func NewGoRedisEvaler(addr, password string, db int) *GoRedisEvaler {
	opt := &redis.Options{Addr: addr, Password: password, DB: db}
	return &GoRedisEvaler{c: redis.NewClient(opt)}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// Client exposes the wrapped client so other components can share the pool.
func (g *GoRedisEvaler) Client() *redis.Client { return g.c }

// redisClientSource is implemented by evalers that can hand out the
// underlying go-redis client.
type redisClientSource interface {
	Client() *redis.Client
}

func (g *GoRedisEvaler) Close() error { return g.c.Close() }

// LoggingRedisEvaler traces every EVAL at debug level before delegating to next.
type LoggingRedisEvaler struct {
	next   RedisEvaler
	logger *zap.Logger
}

func NewLoggingRedisEvaler(next RedisEvaler, logger *zap.Logger) *LoggingRedisEvaler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingRedisEvaler{next: next, logger: logger}
}

func (l *LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	start := time.Now()
	out, err := l.next.Eval(ctx, script, keys, args...)
	l.logger.Debug("redis eval",
		zap.Int("script_len", len(script)),
		zap.Strings("keys", keys),
		zap.Int("args", len(args)),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	return out, err
}

// Client returns the wrapped evaler's go-redis client, or nil if it has none.
func (l *LoggingRedisEvaler) Client() *redis.Client {
	if src, ok := l.next.(redisClientSource); ok {
		return src.Client()
	}
	return nil
}

func (l *LoggingRedisEvaler) Close() error {
	if c, ok := l.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
