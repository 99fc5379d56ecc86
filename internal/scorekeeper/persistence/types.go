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

// Package persistence provides the hierarchical key-value stores that hold the
// score table, its mirror, the mirror watermark and the audit log.
//
// Every backend exposes the same path-addressed JSON model: a path such as
// "scores/p1/c1/3" names a node in one document tree, writing a value replaces
// the whole subtree at that path, and writing null removes it. Each call is
// atomic for its own path. There are no multi-path transactions: callers that
// need several writes issue several independent calls.
//
// Written values are normalized before they are stored: null object members are
// dropped and arrays become objects keyed by index, so a read returns exactly
// what a previous read-then-write copied. Empty objects are kept as written.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when nothing is stored at the path.
var ErrNotFound = errors.New("persistence: not found")

// ErrInvalidPath is returned for empty paths and paths with empty segments.
var ErrInvalidPath = errors.New("persistence: invalid path")

// Store is the minimal hierarchical store used by the score pipeline.
//
// Get returns the canonical JSON encoding of the subtree at path (object keys
// sorted), or ErrNotFound. Set replaces the subtree at path with value; a nil
// value or JSON null removes it. Remove is Set with null. Push stores value
// under a new child of path whose key is generated by the store, is unique
// across concurrent writers and sorts by creation time.
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value json.RawMessage) error
	Remove(ctx context.Context, path string) error
	Push(ctx context.Context, path string, value json.RawMessage) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Join builds a store path from segments.
func Join(segments ...string) string { return strings.Join(segments, "/") }

// splitPath validates path and returns its segments.
func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// newPushKey returns a time-ordered unique child key.
func newPushKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate push key: %w", err)
	}
	return id.String(), nil
}

// push implements Store.Push on top of Set.
func push(ctx context.Context, s Store, path string, value json.RawMessage) (string, error) {
	key, err := newPushKey()
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}
