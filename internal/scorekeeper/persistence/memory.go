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
	"sync"
)

// MemoryStore keeps the whole document tree in process memory. It is the
// default backend for single-instance deployments and for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	root map[string]any
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{root: map[string]any{}}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var node any = m.root
	for _, s := range segs {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, ErrNotFound
		}
		if node, ok = obj[s]; !ok {
			return nil, ErrNotFound
		}
	}
	return json.Marshal(node)
}

func (m *MemoryStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	v, err := decodeValue(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	setNode(m.root, segs, v)
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, path string) error {
	return m.Set(ctx, path, nil)
}

func (m *MemoryStore) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	return push(ctx, m, path, value)
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

// setNode writes v at segs below node. Removing a node also removes parents it
// leaves empty; objects that were already empty are kept.
func setNode(node map[string]any, segs []string, v any) {
	key := segs[0]
	if len(segs) == 1 {
		if v == nil {
			delete(node, key)
		} else {
			node[key] = v
		}
		return
	}
	child, ok := node[key].(map[string]any)
	if !ok {
		if v == nil {
			return
		}
		child = map[string]any{}
		node[key] = child
	}
	hadEntries := len(child) > 0
	setNode(child, segs[1:], v)
	if v == nil && hadEntries && len(child) == 0 {
		delete(node, key)
	}
}
