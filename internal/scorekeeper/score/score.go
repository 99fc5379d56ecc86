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

// Package score defines the score table data model shared by the write
// pipeline, the mirror lifecycle and the polling diff detector.
//
// A score cell is addressed by (playerId, courseId, hole) and holds a stroke
// count or nothing. The table itself is a three-level mapping
// playerId -> courseId -> hole -> strokes.
package score

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unknown is the author identity used when no identity could be resolved.
const Unknown = "unknown"

// BucketLayout is the time layout of audit bucket keys (YYYYMMDDHH).
const BucketLayout = "2006010215"

// Value is a stroke count. A nil Value means the cell is absent.
type Value = *int

// Int returns a Value holding v.
func Int(v int) Value { return &v }

// Equal reports whether a and b hold the same stroke count. Two absent values
// are equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Format renders v for logs.
func Format(v Value) string {
	if v == nil {
		return "null"
	}
	return strconv.Itoa(*v)
}

// ErrInvalidCell is returned when cell coordinates cannot address a store path.
var ErrInvalidCell = errors.New("invalid score cell")

// Cell identifies one score in the table.
type Cell struct {
	PlayerID string
	CourseID string
	Hole     int
}

// ParseCell builds a Cell from raw path parameters.
func ParseCell(playerID, courseID, hole string) (Cell, error) {
	h, err := strconv.Atoi(strings.TrimSpace(hole))
	if err != nil {
		return Cell{}, fmt.Errorf("%w: hole %q is not an integer", ErrInvalidCell, hole)
	}
	c := Cell{PlayerID: playerID, CourseID: courseID, Hole: h}
	if err := c.Validate(); err != nil {
		return Cell{}, err
	}
	return c, nil
}

// Validate checks that the cell maps onto exactly three path segments.
func (c Cell) Validate() error {
	if c.PlayerID == "" || strings.Contains(c.PlayerID, "/") {
		return fmt.Errorf("%w: player id %q", ErrInvalidCell, c.PlayerID)
	}
	if c.CourseID == "" || strings.Contains(c.CourseID, "/") {
		return fmt.Errorf("%w: course id %q", ErrInvalidCell, c.CourseID)
	}
	if c.Hole < 0 {
		return fmt.Errorf("%w: hole %d", ErrInvalidCell, c.Hole)
	}
	return nil
}

// HoleKey is the hole number as it appears in store paths and JSON objects.
func (c Cell) HoleKey() string { return strconv.Itoa(c.Hole) }

// Path returns "playerId/courseId/hole", relative to a table root.
func (c Cell) Path() string {
	return c.PlayerID + "/" + c.CourseID + "/" + c.HoleKey()
}

// Author identifies who made a score change.
type Author struct {
	ID   string `json:"uid"`
	Role string `json:"role"`
}

// UnknownAuthor is the sentinel identity recorded when resolution fails.
func UnknownAuthor() Author { return Author{ID: Unknown, Role: Unknown} }

// AuditRecord is one immutable entry of the score change log.
type AuditRecord struct {
	Path       string `json:"path"`
	PlayerID   string `json:"playerId"`
	CourseID   string `json:"courseId"`
	Hole       int    `json:"hole"`
	OldValue   Value  `json:"oldValue"`
	NewValue   Value  `json:"newValue"`
	ChangedAt  int64  `json:"changedAt"`
	AuthorID   string `json:"authorId"`
	AuthorRole string `json:"authorRole"`
}

// NewAuditRecord builds the record for a change of cell observed at changedAt.
// sourceRoot is the primary table root the change was observed under.
func NewAuditRecord(sourceRoot string, cell Cell, before, after Value, changedAt time.Time, author Author) AuditRecord {
	return AuditRecord{
		Path:       sourceRoot + "/" + cell.Path(),
		PlayerID:   cell.PlayerID,
		CourseID:   cell.CourseID,
		Hole:       cell.Hole,
		OldValue:   before,
		NewValue:   after,
		ChangedAt:  changedAt.UnixMilli(),
		AuthorID:   author.ID,
		AuthorRole: author.Role,
	}
}

// BucketKey returns the hour bucket (YYYYMMDDHH) for t in loc. A nil loc
// means time.Local.
func BucketKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(BucketLayout)
}
