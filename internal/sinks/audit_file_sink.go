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

package sinks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scorekeeper/internal/scorekeeper/score"
)

// AuditEntry is one line of the audit JSONL file.
type AuditEntry struct {
	Bucket string            `json:"bucket"`
	Key    string            `json:"key"`
	Record score.AuditRecord `json:"record"`
}

// AuditFileSink appends audit records to a JSONL file for offline replay. It
// is safe for concurrent use.
type AuditFileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	flushEvery time.Duration
	lastFlush  time.Time
	// timer flushes records still buffered flushEvery after they were written.
	timer  *time.Timer
	closed bool
}

// NewAuditFileSink opens (or creates) the file at path in append mode.
func NewAuditFileSink(path string) (*AuditFileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &AuditFileSink{
		f:          f,
		w:          bufio.NewWriterSize(f, 64<<10),
		path:       path,
		flushEvery: 100 * time.Millisecond,
		lastFlush:  time.Now(),
	}, nil
}

// WriteRecord appends one record. Buffered data reaches the file within
// about 100ms, and immediately on Flush/Close.
func (s *AuditFileSink) WriteRecord(bucket, key string, rec score.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if err := json.NewEncoder(s.w).Encode(AuditEntry{Bucket: bucket, Key: key, Record: rec}); err != nil {
		return err
	}
	if time.Since(s.lastFlush) > s.flushEvery {
		s.lastFlush = time.Now()
		return s.w.Flush()
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.flushEvery, s.flushPending)
	}
	return nil
}

func (s *AuditFileSink) flushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	if s.closed || s.w.Buffered() == 0 {
		return
	}
	s.lastFlush = time.Now()
	_ = s.w.Flush()
}

func (s *AuditFileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

func (s *AuditFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	_ = s.w.Flush()
	return s.f.Close()
}

// Path returns the file the sink appends to.
func (s *AuditFileSink) Path() string { return s.path }

// ReadAuditLog reads every well-formed entry of an audit JSONL file.
func ReadAuditLog(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []AuditEntry
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<16)
	scanner.Buffer(buf, 1<<22)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err == nil {
			out = append(out, e)
		}
	}
	return out, scanner.Err()
}
