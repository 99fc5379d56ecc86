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
	"time"

	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/score"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// MirrorSync copies single-cell changes into the mirror and stamps the
// watermark. Last write wins; there is no retry.
type MirrorSync struct {
	store  persistence.Store
	now    Clock
	logger *zap.Logger
}

func NewMirrorSync(store persistence.Store, clock Clock, logger *zap.Logger) *MirrorSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorSync{store: store, now: clock.orSystem(), logger: logger}
}

// Write overwrites the mirror cell with v (nil removes it), then overwrites
// the watermark with the current time.
func (m *MirrorSync) Write(ctx context.Context, cell score.Cell, v score.Value) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode mirror value: %w", err)
	}
	err = m.store.Set(ctx, persistence.Join(MirrorRoot, cell.Path()), raw)
	telemetry.ObserveMirrorWrite(err)
	if err != nil {
		return fmt.Errorf("mirror cell %s: %w", cell.Path(), err)
	}
	return StampWatermark(ctx, m.store, m.now())
}

// ReadWatermark returns the mirror's last write time. ok is false when the
// watermark is absent or zero.
func ReadWatermark(ctx context.Context, store persistence.Store) (at time.Time, ok bool, err error) {
	raw, err := store.Get(ctx, WatermarkPath)
	if errors.Is(err, persistence.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w", err)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, false, fmt.Errorf("decode watermark %s: %w", raw, err)
	}
	ms, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return time.Time{}, false, fmt.Errorf("decode watermark %s: %w", raw, err)
		}
		ms = int64(f)
	}
	if ms == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// StampWatermark overwrites the watermark with at.
func StampWatermark(ctx context.Context, store persistence.Store, at time.Time) error {
	raw := json.RawMessage(strconv.FormatInt(at.UnixMilli(), 10))
	if err := store.Set(ctx, WatermarkPath, raw); err != nil {
		return fmt.Errorf("stamp watermark: %w", err)
	}
	return nil
}
