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

// Package api exposes the score consistency engine over HTTP: the
// change-notification trigger, the privileged mirror operations, the polling
// diff endpoint and a referee write path for single-process deployments.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/core"
	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// Deps are the engine components the handlers call into.
type Deps struct {
	Store       persistence.Store
	Table       *core.ScoreTable
	Interceptor *core.Interceptor
	Lifecycle   *core.Lifecycle
	Diffs       *core.DiffDetector
}

// Options tune the HTTP surface.
type Options struct {
	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
	// AdminToken, when set, is required as a bearer token on /rpc routes.
	AdminToken string
	// ExposeMetrics mounts /metrics on the main router.
	ExposeMetrics bool
}

// Server handles the HTTP requests for the score service.
type Server struct {
	deps   Deps
	opts   Options
	auth   *Authorizer
	router *mux.Router
	logger *zap.Logger

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// NewServer creates and configures a new API server with its routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		opts:   opts,
		auth:   NewAuthorizer(opts.AdminToken),
		router: mux.NewRouter(),
		logger: logger,
	}
	s.RegisterRoutes(s.router)
	return s
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler { return s.router }

// RegisterRoutes sets up the middleware chain and HTTP routes on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Use(Recovery(s.logger))
	r.Use(RequestID)
	r.Use(Logging(s.logger))
	r.Use(Timeout(s.opts.RequestTimeout))

	r.HandleFunc("/triggers/score-written", s.handleScoreWritten).Methods(http.MethodPost)

	rpc := r.PathPrefix("/rpc").Subrouter()
	rpc.Use(s.auth.Require)
	rpc.HandleFunc("/restoreFromMirror", s.handleRestore).Methods(http.MethodPost)
	rpc.HandleFunc("/initMirrorIfNeeded", s.handleInitMirror).Methods(http.MethodPost)

	r.Handle("/scores/changes", CORS(http.HandlerFunc(s.handleChanges))).
		Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/scores", s.handleTable).Methods(http.MethodGet)
	r.HandleFunc("/scores/{playerId}/{courseId}/{hole}", s.handleGetCell).Methods(http.MethodGet)
	r.HandleFunc("/scores/{playerId}/{courseId}/{hole}", s.handlePutCell).Methods(http.MethodPut)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.ExposeMetrics {
		r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
}

// Start listens on addr and blocks until the server stops. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string, readTimeout, writeTimeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.httpServer = srv
	s.mu.Unlock()
	s.logger.Info("score API listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Shutdown drains in-flight requests. A later Start returns
// http.ErrServerClosed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down score API")
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
