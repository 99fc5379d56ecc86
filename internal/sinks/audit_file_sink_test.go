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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scorekeeper/internal/scorekeeper/score"
)

func TestAuditFileSink_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "scores.jsonl")
	s, err := NewAuditFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rec := score.NewAuditRecord("scores", score.Cell{PlayerID: "p1", CourseID: "c1", Hole: 3}, score.Int(4), nil, at, score.UnknownAuthor())
	if err := s.WriteRecord("2026031409", "k1", rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Bucket != "2026031409" || e.Key != "k1" || e.Record.Path != "scores/p1/c1/3" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Record.OldValue == nil || *e.Record.OldValue != 4 || e.Record.NewValue != nil {
		t.Fatalf("unexpected values: %+v", e.Record)
	}
}

func TestAuditFileSink_ConcurrentWritersAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.jsonl")
	s, err := NewAuditFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.WriteRecord("b", fmt.Sprintf("k%d", i), score.AuditRecord{Hole: i})
		}(i)
	}
	wg.Wait()
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = s.Close()

	// Reopening appends rather than truncating.
	s, err = NewAuditFileSink(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = s.WriteRecord("b", "last", score.AuditRecord{})
	_ = s.Close()

	got, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 21 {
		t.Fatalf("expected 21 entries, got %d", len(got))
	}
}

func TestAuditFileSink_FlushesLastRecordWithoutFurtherWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.jsonl")
	s, err := NewAuditFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	// First write lands inside the flush window and stays buffered.
	if err := s.WriteRecord("b", "k1", score.AuditRecord{Hole: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := ReadAuditLog(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(got) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("record still buffered after quiet period")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAuditFileSink_WriteAfterClose(t *testing.T) {
	s, err := NewAuditFileSink(filepath.Join(t.TempDir(), "scores.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.WriteRecord("b", "k", score.AuditRecord{}); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected os.ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestReadAuditLog_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.jsonl")
	body := `{"bucket":"b","key":"k1","record":{"path":"scores/p/c/1"}}` + "\n" + "not json\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if _, err := ReadAuditLog(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
