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

// Package integration contains tests spanning the write pipeline, the mirror
// lifecycle and the polling diff over real store backends.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorekeeper/internal/scorekeeper/core"
	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/score"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type engine struct {
	store     persistence.Store
	clock     *clock
	table     *core.ScoreTable
	lifecycle *core.Lifecycle
	reaper    *core.Reaper
	diffs     *core.DiffDetector
}

func newEngine(t *testing.T, store persistence.Store, groups core.GroupMembership) *engine {
	t.Helper()
	clk := &clock{t: time.Date(2026, 5, 2, 7, 0, 0, 0, time.UTC)}
	audit := core.NewAuditLog(store, time.UTC, nil)
	mirror := core.NewMirrorSync(store, clk.Now, nil)
	ic := core.NewInterceptor(audit, mirror, nil, clk.Now, nil)
	return &engine{
		store:     store,
		clock:     clk,
		table:     core.NewScoreTable(store, ic, nil),
		lifecycle: core.NewLifecycle(store, clk.Now, 0, nil),
		reaper:    core.NewReaper(store, clk.Now, 0, nil),
		diffs:     core.NewDiffDetector(store, nil, groups, clk.Now, nil),
	}
}

func backends(t *testing.T) map[string]func(t *testing.T) persistence.Store {
	return map[string]func(t *testing.T) persistence.Store{
		"memory": func(t *testing.T) persistence.Store { return persistence.NewMemoryStore() },
		"sqlite": func(t *testing.T) persistence.Store {
			s, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "scores.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func auditCount(t *testing.T, store persistence.Store) int {
	t.Helper()
	raw, err := store.Get(context.Background(), core.AuditRoot)
	if err != nil {
		require.ErrorIs(t, err, persistence.ErrNotFound)
		return 0
	}
	var buckets map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &buckets))
	n := 0
	for _, entries := range buckets {
		n += len(entries)
	}
	return n
}

func getJSON(t *testing.T, store persistence.Store, path string) string {
	t.Helper()
	raw, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	return string(raw)
}

// TestRound_AuditMirrorAndPolls plays a short round: every genuine change is
// audited once, the mirror tracks the primary table and polls report exactly
// the cells that changed since the previous poll of the group.
func TestRound_AuditMirrorAndPolls(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, open(t), core.StaticGroups{"flight-a": {"ann", "ben"}})
			ctx := context.Background()
			ref := &score.Author{ID: "ref-7", Role: "referee"}

			rng := rand.New(rand.NewSource(7))
			players := []string{"ann", "ben", "cid"}
			want := map[string]map[string]int{}
			genuine := 0
			for i := 0; i < 120; i++ {
				p := players[rng.Intn(len(players))]
				h := rng.Intn(6) + 1
				var v score.Value
				if rng.Intn(10) > 0 {
					v = score.Int(rng.Intn(4) + 2)
				}
				cell := score.Cell{PlayerID: p, CourseID: "north", Hole: h}
				before, err := e.table.Cell(ctx, cell)
				require.NoError(t, err)
				out, err := e.table.SetCell(ctx, cell, v, ref)
				require.NoError(t, err)
				assert.Equal(t, score.Equal(before, v), out.Skipped)
				if !out.Skipped {
					genuine++
				}
				if want[p] == nil {
					want[p] = map[string]int{}
				}
				if v == nil {
					delete(want[p], fmt.Sprint(h))
				} else {
					want[p][fmt.Sprint(h)] = *v
				}
				e.clock.Advance(time.Minute)
			}
			assert.Equal(t, genuine, auditCount(t, e.store))

			primary, err := e.table.Table(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, string(primary), getJSON(t, e.store, core.MirrorRoot))

			tree, err := score.DecodeTree(primary)
			require.NoError(t, err)
			for p, holes := range want {
				for h, v := range holes {
					assert.Equal(t, v, tree[p]["north"][h], "%s hole %s", p, h)
				}
			}

			first, err := e.diffs.Poll(ctx, "flight-a")
			require.NoError(t, err)
			assert.True(t, first.HasChanges)
			assert.NotContains(t, first.Changes, "cid")

			again, err := e.diffs.Poll(ctx, "flight-a")
			require.NoError(t, err)
			assert.False(t, again.HasChanges)

			_, err = e.table.SetCell(ctx, score.Cell{PlayerID: "ben", CourseID: "north", Hole: 9}, score.Int(3), ref)
			require.NoError(t, err)
			_, err = e.table.SetCell(ctx, score.Cell{PlayerID: "cid", CourseID: "north", Hole: 9}, score.Int(4), ref)
			require.NoError(t, err)
			delta, err := e.diffs.Poll(ctx, "flight-a")
			require.NoError(t, err)
			assert.Equal(t, score.Diff{"ben": {"north": {"9": {NewValue: score.Int(3), Changed: true}}}}, delta.Changes)
			assert.Equal(t, 1, delta.Changes.Cells())
		})
	}
}

// TestMirrorLifecycle covers expiry, re-initialization and restore.
func TestMirrorLifecycle(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, open(t), nil)
			ctx := context.Background()

			res, err := e.reaper.Reap(ctx)
			require.NoError(t, err)
			assert.False(t, res.Deleted, "no watermark, nothing to reap")

			_, err = e.table.SetCell(ctx, score.Cell{PlayerID: "ann", CourseID: "south", Hole: 1}, score.Int(4), nil)
			require.NoError(t, err)
			_, err = e.table.SetCell(ctx, score.Cell{PlayerID: "ann", CourseID: "south", Hole: 2}, score.Int(5), nil)
			require.NoError(t, err)

			e.clock.Advance(core.DefaultMirrorTTL)
			res, err = e.reaper.Reap(ctx)
			require.NoError(t, err)
			assert.False(t, res.Deleted, "exactly the TTL is not stale")

			e.clock.Advance(time.Second)
			res, err = e.reaper.Reap(ctx)
			require.NoError(t, err)
			assert.True(t, res.Deleted)
			_, err = e.store.Get(ctx, core.MirrorRoot)
			assert.ErrorIs(t, err, persistence.ErrNotFound)

			_, err = e.lifecycle.Restore(ctx)
			assert.ErrorIs(t, err, core.ErrNoMirrorData)

			init, err := e.lifecycle.InitIfNeeded(ctx)
			require.NoError(t, err)
			assert.True(t, init.Initialized)
			init, err = e.lifecycle.InitIfNeeded(ctx)
			require.NoError(t, err)
			assert.Equal(t, core.InitResult{Reason: core.ReasonExists}, init)

			before := getJSON(t, e.store, core.ScoresRoot)
			require.NoError(t, e.store.Remove(ctx, core.ScoresRoot))
			restored, err := e.lifecycle.Restore(ctx)
			require.NoError(t, err)
			assert.True(t, restored.Restored)
			assert.Equal(t, len(before), restored.Size)
			assert.Equal(t, before, getJSON(t, e.store, core.ScoresRoot))
		})
	}
}

// TestConcurrentReferees writes disjoint cells from many goroutines; each
// write is audited once and mirrored.
func TestConcurrentReferees(t *testing.T) {
	e := newEngine(t, persistence.NewMemoryStore(), nil)
	ctx := context.Background()
	const referees, holes = 8, 18

	var wg sync.WaitGroup
	errs := make(chan error, referees*holes)
	for r := 0; r < referees; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			author := &score.Author{ID: fmt.Sprintf("ref-%d", r), Role: "referee"}
			for h := 1; h <= holes; h++ {
				cell := score.Cell{PlayerID: fmt.Sprintf("p%d", r), CourseID: "c", Hole: h}
				if _, err := e.table.SetCell(ctx, cell, score.Int(h%5+2), author); err != nil {
					errs <- err
				}
			}
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("write failed: %v", err)
	}
	assert.Equal(t, referees*holes, auditCount(t, e.store))
	assert.Equal(t, getJSON(t, e.store, core.ScoresRoot), getJSON(t, e.store, core.MirrorRoot))
}
