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

package score

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Holes maps hole keys to stroke counts.
type Holes map[string]int

// Courses maps course ids to their holes.
type Courses map[string]Holes

// Tree is a full view of the score table: playerId -> courseId -> holes.
type Tree map[string]Courses

// DecodeTree parses a stored score table. Empty input and JSON null decode to
// an empty tree. Members that are not objects at the player or course level,
// and hole values that are not integers, are skipped rather than rejected so
// that one malformed cell never hides the rest of the table.
func DecodeTree(raw []byte) (Tree, error) {
	out := Tree{}
	players, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("decode score tree: %w", err)
	}
	for pid, praw := range players {
		courses, err := decodeObject(praw)
		if err != nil {
			continue
		}
		cs := Courses{}
		for cid, craw := range courses {
			var holes Holes
			if err := json.Unmarshal(craw, &holes); err != nil {
				continue
			}
			cs[cid] = holes
		}
		out[pid] = cs
	}
	return out, nil
}

// decodeObject decodes raw into its members. Arrays are treated as objects
// keyed by index with null entries dropped.
func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]json.RawMessage{}, nil
	}
	if raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, err
		}
		out := make(map[string]json.RawMessage, len(arr))
		for i, v := range arr {
			if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				continue
			}
			out[strconv.Itoa(i)] = v
		}
		return out, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalJSON accepts either an object keyed by hole number or an array
// indexed by hole number. Null and non-integer values are dropped.
func (h *Holes) UnmarshalJSON(b []byte) error {
	members, err := decodeObject(b)
	if err != nil {
		return err
	}
	out := make(Holes, len(members))
	for k, v := range members {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			continue
		}
		out[k] = n
	}
	*h = out
	return nil
}

// Get returns the value stored for cell, or nil.
func (t Tree) Get(cell Cell) Value {
	holes, ok := t[cell.PlayerID][cell.CourseID]
	if !ok {
		return nil
	}
	if v, ok := holes[cell.HoleKey()]; ok {
		return Int(v)
	}
	return nil
}

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	out := make(Tree, len(t))
	for pid, courses := range t {
		cs := make(Courses, len(courses))
		for cid, holes := range courses {
			hs := make(Holes, len(holes))
			for k, v := range holes {
				hs[k] = v
			}
			cs[cid] = hs
		}
		out[pid] = cs
	}
	return out
}
