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

	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/score"
)

// ScoreTable is the referee write path for single-process deployments. It
// writes a primary cell and then delivers the resulting change to the
// interceptor in-process, the way a realtime store trigger would.
type ScoreTable struct {
	store       persistence.Store
	interceptor *Interceptor
	logger      *zap.Logger
}

func NewScoreTable(store persistence.Store, interceptor *Interceptor, logger *zap.Logger) *ScoreTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreTable{store: store, interceptor: interceptor, logger: logger}
}

// ErrMalformedCell is returned by SetCell when the primary cell holds a value
// that is not a stroke count. Such a cell reads as absent, so a write over it
// would not be observed as a change.
var ErrMalformedCell = errors.New("score cell holds a non-integer value")

// Cell returns the current value of cell, nil when absent.
func (t *ScoreTable) Cell(ctx context.Context, cell score.Cell) (score.Value, error) {
	v, _, err := t.read(ctx, cell)
	return v, err
}

// read returns the cell value and whether the stored value is malformed.
func (t *ScoreTable) read(ctx context.Context, cell score.Cell) (score.Value, bool, error) {
	raw, err := t.store.Get(ctx, persistence.Join(ScoresRoot, cell.Path()))
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cell %s: %w", cell.Path(), err)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		// Not a stroke count; treat as absent.
		t.logger.Warn("non-integer score cell", zap.String("cell", cell.Path()), zap.ByteString("value", raw))
		return nil, true, nil
	}
	return score.Int(n), false, nil
}

// SetCell writes v (nil removes the cell) and runs the write pipeline for the
// observed change. The primary write is not rolled back if the pipeline fails.
// Writes over a malformed cell are refused with ErrMalformedCell.
func (t *ScoreTable) SetCell(ctx context.Context, cell score.Cell, v score.Value, author *score.Author) (Outcome, error) {
	if err := cell.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	before, malformed, err := t.read(ctx, cell)
	if err != nil {
		return Outcome{}, err
	}
	if malformed {
		return Outcome{}, fmt.Errorf("write cell %s: %w", cell.Path(), ErrMalformedCell)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode cell value: %w", err)
	}
	if err := t.store.Set(ctx, persistence.Join(ScoresRoot, cell.Path()), raw); err != nil {
		return Outcome{}, fmt.Errorf("write cell %s: %w", cell.Path(), err)
	}
	return t.interceptor.Handle(ctx, WriteEvent{Cell: cell, Before: before, After: v, Author: author})
}

// Table returns the whole primary table as canonical JSON, {} when empty.
func (t *ScoreTable) Table(ctx context.Context) (json.RawMessage, error) {
	raw, err := t.store.Get(ctx, ScoresRoot)
	if errors.Is(err, persistence.ErrNotFound) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read primary table: %w", err)
	}
	return raw, nil
}
