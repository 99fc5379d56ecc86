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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/score"
)

// fakeClock is a settable clock shared by the components under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// recordingStore wraps a MemoryStore, counts writes per root and can fail
// writes or reads below chosen roots.
type recordingStore struct {
	*persistence.MemoryStore

	mu        sync.Mutex
	writes    map[string]int
	failWrite map[string]error
	failRead  map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStore: persistence.NewMemoryStore(),
		writes:      map[string]int{},
		failWrite:   map[string]error{},
		failRead:    map[string]error{},
	}
}

func rootOf(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

func (s *recordingStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	err := s.failRead[rootOf(path)]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, path)
}

func (s *recordingStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	s.mu.Lock()
	err := s.failWrite[rootOf(path)]
	if err == nil {
		s.writes[rootOf(path)]++
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, path, value)
}

func (s *recordingStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *recordingStore) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	s.mu.Lock()
	err := s.failWrite[rootOf(path)]
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	// Route through Set so the write is counted.
	key := uuid.NewString()
	if err := s.Set(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *recordingStore) writesTo(root string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[root]
}

func (s *recordingStore) failWrites(root string, err error) {
	s.mu.Lock()
	s.failWrite[root] = err
	s.mu.Unlock()
}

func (s *recordingStore) failReads(root string, err error) {
	s.mu.Lock()
	s.failRead[root] = err
	s.mu.Unlock()
}

var errBoom = errors.New("boom")

func mustGet(t *testing.T, s persistence.Store, path string) string {
	t.Helper()
	raw, err := s.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return string(raw)
}

func mustSet(t *testing.T, s persistence.Store, path, value string) {
	t.Helper()
	if err := s.Set(context.Background(), path, json.RawMessage(value)); err != nil {
		t.Fatalf("set %s: %v", path, err)
	}
}

func absent(t *testing.T, s persistence.Store, path string) bool {
	t.Helper()
	_, err := s.Get(context.Background(), path)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("get %s: %v", path, err)
	}
	return errors.Is(err, persistence.ErrNotFound)
}

func cell(p, c string, h int) score.Cell { return score.Cell{PlayerID: p, CourseID: c, Hole: h} }
