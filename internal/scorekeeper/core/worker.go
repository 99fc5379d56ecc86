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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// ReapResult reports one reaper run.
type ReapResult struct {
	// Deleted is true when the mirror subtree was removed.
	Deleted bool
	// Age is the watermark age; zero when there is no watermark.
	Age time.Duration
}

// Reaper deletes the mirror once its watermark is older than the TTL. It
// never touches the watermark itself, so a stale watermark keeps triggering
// harmless deletes of the absent mirror until a new write resets it.
type Reaper struct {
	store  persistence.Store
	now    Clock
	ttl    time.Duration
	logger *zap.Logger
}

// NewReaper returns a reaper. ttl <= 0 uses DefaultMirrorTTL.
func NewReaper(store persistence.Store, clock Clock, ttl time.Duration, logger *zap.Logger) *Reaper {
	if ttl <= 0 {
		ttl = DefaultMirrorTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{store: store, now: clock.orSystem(), ttl: ttl, logger: logger}
}

// Reap runs one expiry check. A missing or zero watermark means there was
// never any mirror activity and nothing is deleted.
func (r *Reaper) Reap(ctx context.Context) (ReapResult, error) {
	at, ok, err := ReadWatermark(ctx, r.store)
	if err != nil {
		telemetry.ObserveReap("error")
		return ReapResult{}, err
	}
	if !ok {
		telemetry.ObserveReap("idle")
		return ReapResult{}, nil
	}
	age := r.now().Sub(at)
	if age <= r.ttl {
		telemetry.ObserveReap("fresh")
		return ReapResult{Age: age}, nil
	}
	if err := r.store.Remove(ctx, MirrorRoot); err != nil {
		telemetry.ObserveReap("error")
		return ReapResult{Age: age}, fmt.Errorf("delete stale mirror: %w", err)
	}
	telemetry.ObserveReap("deleted")
	r.logger.Info("stale mirror deleted", zap.Duration("age", age), zap.Duration("ttl", r.ttl))
	return ReapResult{Deleted: true, Age: age}, nil
}

// Worker runs the reaper on a fixed schedule.
type Worker struct {
	reaper   *Reaper
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewWorker creates the scheduled reaper loop. interval <= 0 uses
// DefaultReapInterval; each run is bounded by timeout (0 disables).
func NewWorker(reaper *Reaper, interval, timeout time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		reaper:   reaper,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background goroutine.
func (w *Worker) Start() {
	w.logger.Info("starting mirror reaper", zap.Duration("interval", w.interval))
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reapLoop()
	}()
}

// Stop ends the loop and waits for an in-flight run. Safe to call twice.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	w.logger.Info("stopping mirror reaper")
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) reapLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce()
		case <-w.stopChan:
			return
		}
	}
}

// RunOnce performs a single reap, cancelled if the worker is stopped.
func (w *Worker) RunOnce() (ReapResult, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if w.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	res, err := w.reaper.Reap(ctx)
	if err != nil {
		w.logger.Error("mirror reap failed", zap.Error(err))
	}
	return res, err
}
