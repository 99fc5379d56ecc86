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

// Package main is the entry point for the scorekeeper service.
//
// It wires the configured store into the score write pipeline (audit log and
// mirror), starts the mirror reaper and serves the HTTP API until SIGINT or
// SIGTERM, then shuts everything down in reverse order.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scorekeeper: %v\n", err)
		os.Exit(2)
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scorekeeper: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("scorekeeper stopped", zap.Error(err))
	}
}

// run starts the service and blocks until ctx is cancelled or the HTTP
// server fails.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting scorekeeper",
		zap.String("store", cfg.Store.Driver),
		zap.String("http_addr", cfg.Server.Addr),
		zap.String("snapshot_cache", cfg.Poll.SnapshotCache),
		zap.Duration("mirror_ttl", cfg.Mirror.TTL),
		zap.Duration("reap_interval", cfg.Mirror.ReapInterval))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("failed to close backends", zap.Error(err))
		}
	}()
	if err := a.initMirror(ctx); err != nil {
		return err
	}

	stopTelemetry := startTelemetry(cfg.Metrics, logger)
	a.worker.Start()

	errChan := make(chan error, 1)
	go func() {
		if err := a.server.Start(cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errChan:
		logger.Error("server error", zap.Error(serveErr))
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	a.worker.Stop()
	stopTelemetry(shutdownCtx)
	logger.Info("scorekeeper shutdown complete")
	return serveErr
}
