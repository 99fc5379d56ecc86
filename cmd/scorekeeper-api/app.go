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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"scorekeeper/internal/scorekeeper/api"
	"scorekeeper/internal/scorekeeper/config"
	"scorekeeper/internal/scorekeeper/core"
	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/telemetry"
	"scorekeeper/internal/sinks"
)

// app holds every long-lived component of the service.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	store     persistence.Store
	lifecycle *core.Lifecycle
	worker    *core.Worker
	server    *api.Server
	sink      *sinks.AuditFileSink
	// cache is set only when the snapshot cache needs its own connection.
	cache *redis.Client
}

// newApp builds the store, the write pipeline, the reaper and the HTTP
// server from cfg. Nothing is started.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := persistence.BuildStore(ctx, cfg.Store.Driver, persistence.Options{
		RedisAddr:      cfg.Store.Redis.Addr,
		RedisPassword:  cfg.Store.Redis.Password,
		RedisDB:        cfg.Store.Redis.DB,
		RedisKeyPrefix: cfg.Store.Redis.KeyPrefix,
		RedisTrace:     cfg.Store.Redis.Trace,
		SQLitePath:     cfg.Store.SQLite.Path,
		PostgresDSN:    cfg.Store.Postgres.DSN,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	a.store = store

	loc, err := cfg.Location()
	if err != nil {
		a.close()
		return nil, err
	}
	audit := core.NewAuditLog(store, loc, logger)
	if cfg.Audit.FilePath != "" {
		sink, err := sinks.NewAuditFileSink(cfg.Audit.FilePath)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		a.sink = sink
		audit = audit.WithSink(sink)
	}

	var cache core.SnapshotCache
	if cfg.Poll.SnapshotCache == "redis" {
		cache = core.NewRedisSnapshotCache(a.snapshotClient(), cfg.SnapshotPrefix())
	}
	var groups core.GroupMembership
	if len(cfg.Poll.Groups) > 0 {
		groups = core.StaticGroups(cfg.Poll.Groups)
	}

	mirror := core.NewMirrorSync(store, nil, logger)
	ic := core.NewInterceptor(audit, mirror, nil, nil, logger)
	a.lifecycle = core.NewLifecycle(store, nil, cfg.Mirror.TTL, logger)
	a.worker = core.NewWorker(
		core.NewReaper(store, nil, cfg.Mirror.TTL, logger),
		cfg.Mirror.ReapInterval,
		cfg.Mirror.ReapTimeout,
		logger,
	)
	a.server = api.NewServer(api.Deps{
		Store:       store,
		Table:       core.NewScoreTable(store, ic, logger),
		Interceptor: ic,
		Lifecycle:   a.lifecycle,
		Diffs:       core.NewDiffDetector(store, cache, groups, nil, logger),
	}, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		AdminToken:     cfg.Auth.AdminToken,
		ExposeMetrics:  cfg.Metrics.Addr == "",
	}, logger)
	return a, nil
}

// snapshotClient returns the Redis client for the snapshot cache. A Redis
// store's pool is shared; any other driver gets a dedicated client that
// close releases.
func (a *app) snapshotClient() *redis.Client {
	if rs, ok := a.store.(*persistence.RedisStore); ok {
		if c := rs.Client(); c != nil {
			return c
		}
	}
	a.cache = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Store.Redis.Addr,
		Password: a.cfg.Store.Redis.Password,
		DB:       a.cfg.Store.Redis.DB,
	})
	return a.cache
}

// initMirror runs the startup mirror initialization when configured.
func (a *app) initMirror(ctx context.Context) error {
	if !a.cfg.Mirror.InitOnStartup {
		return nil
	}
	res, err := a.lifecycle.InitIfNeeded(ctx)
	if err != nil {
		return fmt.Errorf("init mirror: %w", err)
	}
	a.logger.Info("startup mirror check",
		zap.Bool("initialized", res.Initialized),
		zap.String("reason", res.Reason),
		zap.Int("size", res.Size))
	return nil
}

// close releases the backends. Safe to call on a partially built app.
func (a *app) close() error {
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// startTelemetry starts the optional metrics listener and summary exporter.
func startTelemetry(cfg config.MetricsConfig, logger *zap.Logger) (stop func(context.Context)) {
	exporter := telemetry.StartExporter(cfg.SummaryInterval, logger)
	if cfg.Addr == "" {
		return func(context.Context) { exporter.Stop() }
	}
	srv := telemetry.StartMetricsEndpoint(cfg.Addr, func(err error) {
		logger.Error("metrics server error", zap.Error(err))
	})
	logger.Info("metrics server started", zap.String("addr", cfg.Addr))
	return func(ctx context.Context) {
		exporter.Stop()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}
}
