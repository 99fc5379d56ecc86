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
	"errors"
	"fmt"

	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/score"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// PollResult is what one poll reports to its caller.
type PollResult struct {
	Group      string
	Changes    score.Diff
	Timestamp  int64
	HasChanges bool
}

// DiffDetector reports which cells of the primary table changed since the
// previous poll of the same group.
type DiffDetector struct {
	store  persistence.Store
	cache  SnapshotCache
	groups GroupMembership
	now    Clock
	logger *zap.Logger
}

// NewDiffDetector wires a detector. A nil cache keeps snapshots in memory and
// a nil membership admits every player into every group.
func NewDiffDetector(store persistence.Store, cache SnapshotCache, groups GroupMembership, clock Clock, logger *zap.Logger) *DiffDetector {
	if cache == nil {
		cache = NewMemorySnapshotCache()
	}
	if groups == nil {
		groups = AllGroups{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiffDetector{store: store, cache: cache, groups: groups, now: clock.orSystem(), logger: logger}
}

// Poll diffs the current primary table against the group's cached snapshot
// and then replaces that snapshot with the full current table. A group seen
// for the first time diffs against an empty baseline. Snapshot cache failures
// degrade to an empty baseline and are only logged.
func (d *DiffDetector) Poll(ctx context.Context, group string) (PollResult, error) {
	if group == "" {
		group = DefaultGroup
	}
	cur, err := d.readTable(ctx)
	if err != nil {
		telemetry.ObservePollError()
		return PollResult{}, err
	}

	prev, ok, err := d.cache.Load(ctx, group)
	if err != nil {
		d.logger.Warn("snapshot load failed, using empty baseline", zap.String("group", group), zap.Error(err))
	}
	if !ok || err != nil {
		prev = score.Tree{}
	}

	changes := score.DiffTrees(prev, cur, func(playerID string) bool {
		in, err := d.groups.InGroup(ctx, group, playerID)
		if err != nil {
			d.logger.Warn("group membership unresolved, including player",
				zap.String("group", group), zap.String("player", playerID), zap.Error(err))
			return true
		}
		return in
	})

	if err := d.cache.Store(ctx, group, cur); err != nil {
		d.logger.Warn("snapshot store failed", zap.String("group", group), zap.Error(err))
	}
	telemetry.ObservePoll(changes.Cells())
	return PollResult{
		Group:      group,
		Changes:    changes,
		Timestamp:  d.now().UnixMilli(),
		HasChanges: !changes.Empty(),
	}, nil
}

func (d *DiffDetector) readTable(ctx context.Context) (score.Tree, error) {
	raw, err := d.store.Get(ctx, ScoresRoot)
	if errors.Is(err, persistence.ErrNotFound) {
		return score.Tree{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read primary table: %w", err)
	}
	t, err := score.DecodeTree(raw)
	if err != nil {
		return nil, err
	}
	return t, nil
}
