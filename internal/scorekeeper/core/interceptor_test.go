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
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorekeeper/internal/scorekeeper/score"
)

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type pipeline struct {
	store *recordingStore
	clock *fakeClock
	ic    *Interceptor
}

func newPipeline(authors AuthorResolver) *pipeline {
	st := newRecordingStore()
	clk := newFakeClock(t0)
	audit := NewAuditLog(st, time.UTC, nil)
	mirror := NewMirrorSync(st, clk.Now, nil)
	return &pipeline{store: st, clock: clk, ic: NewInterceptor(audit, mirror, authors, clk.Now, nil)}
}

func (p *pipeline) auditRecords(t *testing.T, bucket string) []score.AuditRecord {
	t.Helper()
	raw, err := p.store.Get(context.Background(), AuditRoot+"/"+bucket)
	if err != nil {
		return nil
	}
	var entries map[string]score.AuditRecord
	require.NoError(t, json.Unmarshal(raw, &entries))
	out := make([]score.AuditRecord, 0, len(entries))
	for _, r := range entries {
		out = append(out, r)
	}
	return out
}

func TestInterceptor_NoopWritesAreSkipped(t *testing.T) {
	cases := []struct {
		name          string
		before, after score.Value
	}{
		{"both null", nil, nil},
		{"same value", score.Int(4), score.Int(4)},
		{"zero", score.Int(0), score.Int(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newPipeline(nil)
			out, err := p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c1", 1), Before: tc.before, After: tc.after})
			require.NoError(t, err)
			assert.True(t, out.Skipped)
			assert.Zero(t, p.store.writesTo(AuditRoot))
			assert.Zero(t, p.store.writesTo(MirrorRoot))
			assert.Zero(t, p.store.writesTo(MirrorMetaRoot))
		})
	}
}

func TestInterceptor_ChangeWritesAuditAndMirror(t *testing.T) {
	p := newPipeline(nil)
	author := &score.Author{ID: "ref-7", Role: "referee"}
	out, err := p.ic.Handle(context.Background(), WriteEvent{
		Cell: cell("p1", "c1", 3), Before: score.Int(4), After: score.Int(5), Author: author,
	})
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, "2026031409", out.Bucket)
	assert.NotEmpty(t, out.AuditKey)

	recs := p.auditRecords(t, "2026031409")
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "scores/p1/c1/3", rec.Path)
	assert.Equal(t, "p1", rec.PlayerID)
	assert.Equal(t, "c1", rec.CourseID)
	assert.Equal(t, 3, rec.Hole)
	assert.Equal(t, 4, *rec.OldValue)
	assert.Equal(t, 5, *rec.NewValue)
	assert.Equal(t, t0.UnixMilli(), rec.ChangedAt)
	assert.Equal(t, "ref-7", rec.AuthorID)
	assert.Equal(t, "referee", rec.AuthorRole)

	assert.Equal(t, "5", mustGet(t, p.store, "scores_mirror/p1/c1/3"))
	assert.Equal(t, strconv.FormatInt(t0.UnixMilli(), 10), mustGet(t, p.store, WatermarkPath))
	assert.Equal(t, 1, p.store.writesTo(AuditRoot))
	assert.Equal(t, 1, p.store.writesTo(MirrorRoot))
}

func TestInterceptor_BucketFollowsInterceptionTime(t *testing.T) {
	p := newPipeline(nil)
	p.clock.Set(time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC))
	_, err := p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c1", 1), After: score.Int(2)})
	require.NoError(t, err)
	p.clock.Advance(2 * time.Second)
	_, err = p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c1", 1), Before: score.Int(2), After: score.Int(3)})
	require.NoError(t, err)

	assert.Len(t, p.auditRecords(t, "2026031423"), 1)
	assert.Len(t, p.auditRecords(t, "2026031500"), 1)
}

func TestInterceptor_RemovalMirrorsNull(t *testing.T) {
	p := newPipeline(nil)
	mustSet(t, p.store, "scores_mirror/p1/c1/1", "4")
	mustSet(t, p.store, "scores_mirror/p1/c1/2", "5")

	_, err := p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c1", 1), Before: score.Int(4)})
	require.NoError(t, err)
	assert.True(t, absent(t, p.store, "scores_mirror/p1/c1/1"))
	assert.Equal(t, "5", mustGet(t, p.store, "scores_mirror/p1/c1/2"))

	recs := p.auditRecords(t, "2026031409")
	require.Len(t, recs, 1)
	assert.Equal(t, 4, *recs[0].OldValue)
	assert.Nil(t, recs[0].NewValue)
}

func TestInterceptor_UnknownAuthorSentinel(t *testing.T) {
	t.Run("missing identity", func(t *testing.T) {
		p := newPipeline(nil)
		_, err := p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c1", 1), After: score.Int(1)})
		require.NoError(t, err)
		rec := p.auditRecords(t, "2026031409")[0]
		assert.Equal(t, score.Unknown, rec.AuthorID)
		assert.Equal(t, score.Unknown, rec.AuthorRole)
	})
	t.Run("partial identity", func(t *testing.T) {
		p := newPipeline(nil)
		_, err := p.ic.Handle(context.Background(), WriteEvent{
			Cell: cell("p1", "c1", 1), After: score.Int(1), Author: &score.Author{ID: "u1"},
		})
		require.NoError(t, err)
		rec := p.auditRecords(t, "2026031409")[0]
		assert.Equal(t, "u1", rec.AuthorID)
		assert.Equal(t, score.Unknown, rec.AuthorRole)
	})
	t.Run("resolver failure", func(t *testing.T) {
		failing := AuthorResolverFunc(func(context.Context, WriteEvent) (*score.Author, error) {
			return nil, errors.New("identity service down")
		})
		p := newPipeline(failing)
		_, err := p.ic.Handle(context.Background(), WriteEvent{
			Cell: cell("p1", "c1", 1), After: score.Int(1), Author: &score.Author{ID: "ignored"},
		})
		require.NoError(t, err)
		rec := p.auditRecords(t, "2026031409")[0]
		assert.Equal(t, score.Unknown, rec.AuthorID)
		assert.Equal(t, score.Unknown, rec.AuthorRole)
	})
}

func TestInterceptor_AuditFailureDoesNotBlockMirror(t *testing.T) {
	p := newPipeline(nil)
	p.store.failWrites(AuditRoot, errBoom)
	_, err := p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c1", 1), After: score.Int(6)})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "6", mustGet(t, p.store, "scores_mirror/p1/c1/1"))
	assert.Equal(t, 1, p.store.writesTo(MirrorMetaRoot))
}

func TestInterceptor_MirrorFailureDoesNotBlockAudit(t *testing.T) {
	p := newPipeline(nil)
	p.store.failWrites(MirrorRoot, errBoom)
	_, err := p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c1", 1), After: score.Int(6)})
	require.ErrorIs(t, err, errBoom)
	assert.Len(t, p.auditRecords(t, "2026031409"), 1)
	// The watermark follows the cell write and is not stamped when it fails.
	assert.Zero(t, p.store.writesTo(MirrorMetaRoot))
}

func TestInterceptor_InvalidCell(t *testing.T) {
	p := newPipeline(nil)
	_, err := p.ic.Handle(context.Background(), WriteEvent{Cell: cell("", "c1", 1), After: score.Int(1)})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = p.ic.Handle(context.Background(), WriteEvent{Cell: cell("p1", "c/1", 1), After: score.Int(1)})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Zero(t, p.store.writesTo(AuditRoot))
}

func TestInterceptor_ConcurrentDistinctCells(t *testing.T) {
	p := newPipeline(nil)
	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := cell(fmt.Sprintf("p%d", i%4), "c1", i)
			_, err := p.ic.Handle(context.Background(), WriteEvent{Cell: c, After: score.Int(i + 1)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, p.auditRecords(t, "2026031409"), n)

	raw := mustGet(t, p.store, MirrorRoot)
	tree, err := score.DecodeTree([]byte(raw))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		v := tree.Get(cell(fmt.Sprintf("p%d", i%4), "c1", i))
		require.NotNil(t, v)
		assert.Equal(t, i+1, *v)
	}
}
