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

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/core"
	"scorekeeper/internal/scorekeeper/score"
)

const maxBodyBytes = 1 << 20

// triggerRequest is the change notification for one primary cell write.
// Path parameters arrive as strings or numbers depending on the source.
type triggerRequest struct {
	Before score.Value `json:"before"`
	After  score.Value `json:"after"`
	Params struct {
		PlayerID string          `json:"playerId"`
		CourseID string          `json:"courseId"`
		Hole     json.RawMessage `json:"hole"`
	} `json:"params"`
	Auth *score.Author `json:"auth,omitempty"`
}

type triggerResponse struct {
	Handled  bool   `json:"handled"`
	Skipped  bool   `json:"skipped"`
	AuditKey string `json:"auditKey,omitempty"`
}

type changesResponse struct {
	Success    bool       `json:"success"`
	Group      string     `json:"group"`
	Changes    score.Diff `json:"changes"`
	Timestamp  int64      `json:"timestamp"`
	HasChanges bool       `json:"hasChanges"`
}

type changesError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type cellRequest struct {
	Value json.RawMessage `json:"value"`
}

type cellResponse struct {
	PlayerID string      `json:"playerId"`
	CourseID string      `json:"courseId"`
	Hole     int         `json:"hole"`
	Value    score.Value `json:"value"`
}

func (s *Server) handleScoreWritten(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cell, err := score.ParseCell(req.Params.PlayerID, req.Params.CourseID, strings.Trim(string(req.Params.Hole), `"`))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.deps.Interceptor.Handle(r.Context(), core.WriteEvent{
		Cell:   cell,
		Before: req.Before,
		After:  req.After,
		Author: req.Auth,
	})
	if err != nil {
		s.writeEngineError(w, r, "score trigger failed", err)
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{Handled: true, Skipped: out.Skipped, AuditKey: out.AuditKey})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Lifecycle.Restore(r.Context())
	if errors.Is(err, core.ErrNoMirrorData) {
		writeError(w, http.StatusPreconditionFailed, core.ErrNoMirrorData.Error())
		return
	}
	if err != nil {
		s.writeEngineError(w, r, "restore from mirror failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInitMirror(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Lifecycle.InitIfNeeded(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "mirror init failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChanges serves the polling diff. lastUpdate is accepted for client
// compatibility and ignored; the per-group snapshot is the baseline.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Diffs.Poll(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		s.logger.Error("poll failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, changesError{
			Success: false,
			Error:   "Internal Server Error",
			Message: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, changesResponse{
		Success:    true,
		Group:      res.Group,
		Changes:    res.Changes,
		Timestamp:  res.Timestamp,
		HasChanges: res.HasChanges,
	})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	raw, err := s.deps.Table.Table(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "read table failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleGetCell(w http.ResponseWriter, r *http.Request) {
	cell, ok := cellFromPath(w, r)
	if !ok {
		return
	}
	v, err := s.deps.Table.Cell(r.Context(), cell)
	if err != nil {
		s.writeEngineError(w, r, "read cell failed", err)
		return
	}
	writeJSON(w, http.StatusOK, cellResponse{PlayerID: cell.PlayerID, CourseID: cell.CourseID, Hole: cell.Hole, Value: v})
}

// handlePutCell is the referee write path: it writes the primary cell and
// runs the write pipeline in-process. A null value removes the cell.
func (s *Server) handlePutCell(w http.ResponseWriter, r *http.Request) {
	cell, ok := cellFromPath(w, r)
	if !ok {
		return
	}
	var req cellRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	var v score.Value
	if err := json.Unmarshal(req.Value, &v); err != nil {
		writeError(w, http.StatusBadRequest, "value must be an integer or null")
		return
	}
	out, err := s.deps.Table.SetCell(r.Context(), cell, v, authorFromHeaders(r))
	if err != nil {
		s.writeEngineError(w, r, "score write failed", err)
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{Handled: true, Skipped: out.Skipped, AuditKey: out.AuditKey})
}

// writeEngineError maps engine errors to status codes: invalid input is 400,
// everything else 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, core.ErrInvalidEvent) || errors.Is(err, score.ErrInvalidCell) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, core.ErrMalformedCell) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.logger.Error(msg,
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func cellFromPath(w http.ResponseWriter, r *http.Request) (score.Cell, bool) {
	vars := mux.Vars(r)
	cell, err := score.ParseCell(vars["playerId"], vars["courseId"], vars["hole"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return score.Cell{}, false
	}
	return cell, true
}

// authorFromHeaders reads the referee identity. Missing headers yield nil so
// the resolver records the unknown author.
func authorFromHeaders(r *http.Request) *score.Author {
	id, role := r.Header.Get("X-Author-Id"), r.Header.Get("X-Author-Role")
	if id == "" && role == "" {
		return nil
	}
	return &score.Author{ID: id, Role: role}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed JSON body: " + err.Error())
	}
	return nil
}
