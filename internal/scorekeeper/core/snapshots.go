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

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"scorekeeper/internal/scorekeeper/score"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// SnapshotCache holds the last full table view served to each poll group.
// It is a best-effort cache: a miss means an empty baseline.
type SnapshotCache interface {
	Load(ctx context.Context, group string) (score.Tree, bool, error)
	Store(ctx context.Context, group string, tree score.Tree) error
}

// MemorySnapshotCache keeps snapshots in process memory for the lifetime of
// the process. It is unbounded in groups and never expires entries.
type MemorySnapshotCache struct {
	mu     sync.RWMutex
	groups map[string]score.Tree
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{groups: map[string]score.Tree{}}
}

func (m *MemorySnapshotCache) Load(_ context.Context, group string) (score.Tree, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.groups[group]
	return t, ok, nil
}

func (m *MemorySnapshotCache) Store(_ context.Context, group string, tree score.Tree) error {
	m.mu.Lock()
	m.groups[group] = tree.Clone()
	n := len(m.groups)
	m.mu.Unlock()
	telemetry.SetSnapshotGroups(n)
	return nil
}

// Len returns the number of cached groups.
func (m *MemorySnapshotCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

// RedisSnapshotCache shares snapshots between serving instances. Each group
// is one JSON string key without expiry.
type RedisSnapshotCache struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisSnapshotCache returns a cache storing group g under keyPrefix+g.
func NewRedisSnapshotCache(client redis.Cmdable, keyPrefix string) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, keyPrefix: keyPrefix}
}

func (r *RedisSnapshotCache) key(group string) string { return r.keyPrefix + group }

func (r *RedisSnapshotCache) Load(ctx context.Context, group string) (score.Tree, bool, error) {
	raw, err := r.client.Get(ctx, r.key(group)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %s: %w", group, err)
	}
	t, err := score.DecodeTree(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode snapshot %s: %w", group, err)
	}
	return t, true, nil
}

func (r *RedisSnapshotCache) Store(ctx context.Context, group string, tree score.Tree) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", group, err)
	}
	if err := r.client.Set(ctx, r.key(group), raw, 0).Err(); err != nil {
		return fmt.Errorf("store snapshot %s: %w", group, err)
	}
	return nil
}
