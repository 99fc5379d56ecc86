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
	"time"

	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// ErrNoMirrorData is returned by Restore when there is no mirror to restore from.
var ErrNoMirrorData = errors.New("no mirror data")

// ReasonExists is reported when InitIfNeeded leaves a fresh mirror untouched.
const ReasonExists = "exists"

// InitResult is the outcome of InitIfNeeded.
type InitResult struct {
	Initialized bool   `json:"initialized"`
	Reason      string `json:"reason,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// RestoreResult is the outcome of Restore.
type RestoreResult struct {
	Restored bool `json:"restored"`
	Size     int  `json:"size"`
}

// Lifecycle performs the whole-tree mirror operations: on-demand
// (re)initialization from the primary table and restore back into it.
type Lifecycle struct {
	store  persistence.Store
	now    Clock
	ttl    time.Duration
	logger *zap.Logger
}

// NewLifecycle returns a lifecycle manager. ttl <= 0 uses DefaultMirrorTTL.
func NewLifecycle(store persistence.Store, clock Clock, ttl time.Duration, logger *zap.Logger) *Lifecycle {
	if ttl <= 0 {
		ttl = DefaultMirrorTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{store: store, now: clock.orSystem(), ttl: ttl, logger: logger}
}

// InitIfNeeded copies the primary table into the mirror when the mirror is
// absent or its watermark is missing or older than the TTL. An absent primary
// table is copied as an empty object.
func (l *Lifecycle) InitIfNeeded(ctx context.Context) (InitResult, error) {
	exists, err := l.mirrorExists(ctx)
	if err != nil {
		telemetry.ObserveLifecycle("init", "error", 0)
		return InitResult{}, err
	}
	at, ok, err := ReadWatermark(ctx, l.store)
	if err != nil {
		telemetry.ObserveLifecycle("init", "error", 0)
		return InitResult{}, err
	}
	now := l.now()
	stale := !ok || now.Sub(at) > l.ttl
	if exists && !stale {
		telemetry.ObserveLifecycle("init", ReasonExists, 0)
		return InitResult{Initialized: false, Reason: ReasonExists}, nil
	}

	raw, err := l.store.Get(ctx, ScoresRoot)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		raw = json.RawMessage(`{}`)
	case err != nil:
		telemetry.ObserveLifecycle("init", "error", 0)
		return InitResult{}, fmt.Errorf("read primary table: %w", err)
	}
	if err := l.store.Set(ctx, MirrorRoot, raw); err != nil {
		telemetry.ObserveLifecycle("init", "error", 0)
		return InitResult{}, fmt.Errorf("write mirror: %w", err)
	}
	if err := StampWatermark(ctx, l.store, now); err != nil {
		telemetry.ObserveLifecycle("init", "error", 0)
		return InitResult{}, err
	}
	telemetry.ObserveLifecycle("init", "copied", len(raw))
	l.logger.Info("mirror initialized",
		zap.Bool("mirror_existed", exists),
		zap.Bool("watermark_stale", stale),
		zap.Int("size", len(raw)))
	return InitResult{Initialized: true, Size: len(raw)}, nil
}

// Restore overwrites the whole primary table with the mirror's contents. It
// is destructive and returns ErrNoMirrorData when there is no mirror.
func (l *Lifecycle) Restore(ctx context.Context) (RestoreResult, error) {
	raw, err := l.store.Get(ctx, MirrorRoot)
	if errors.Is(err, persistence.ErrNotFound) {
		telemetry.ObserveLifecycle("restore", "no_mirror", 0)
		return RestoreResult{}, ErrNoMirrorData
	}
	if err != nil {
		telemetry.ObserveLifecycle("restore", "error", 0)
		return RestoreResult{}, fmt.Errorf("read mirror: %w", err)
	}
	if err := l.store.Set(ctx, ScoresRoot, raw); err != nil {
		telemetry.ObserveLifecycle("restore", "error", 0)
		return RestoreResult{}, fmt.Errorf("write primary table: %w", err)
	}
	telemetry.ObserveLifecycle("restore", "restored", len(raw))
	l.logger.Warn("primary table restored from mirror", zap.Int("size", len(raw)))
	return RestoreResult{Restored: true, Size: len(raw)}, nil
}

func (l *Lifecycle) mirrorExists(ctx context.Context) (bool, error) {
	_, err := l.store.Get(ctx, MirrorRoot)
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read mirror: %w", err)
	}
	return true, nil
}
