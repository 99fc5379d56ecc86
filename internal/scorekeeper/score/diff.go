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

// Change describes one hole whose value differs between two trees. Absent
// sides are omitted from JSON.
type Change struct {
	OldValue Value `json:"oldValue,omitempty"`
	NewValue Value `json:"newValue,omitempty"`
	Changed  bool  `json:"changed"`
}

// Diff is the nested set of changed cells: playerId -> courseId -> hole.
type Diff map[string]map[string]map[string]Change

// Empty reports whether d has no changed cells.
func (d Diff) Empty() bool { return len(d) == 0 }

// Cells counts the changed cells in d.
func (d Diff) Cells() int {
	n := 0
	for _, courses := range d {
		for _, holes := range courses {
			n += len(holes)
		}
	}
	return n
}

// DiffTrees compares old and cur over the union of their players, courses and
// holes. A course appears only if one of its holes changed and a player only
// if one of its courses did. include, when non-nil, filters players; players
// it rejects are left out of the result.
func DiffTrees(old, cur Tree, include func(playerID string) bool) Diff {
	out := Diff{}
	for pid := range unionKeys(old, cur) {
		if include != nil && !include(pid) {
			continue
		}
		oldCourses, curCourses := old[pid], cur[pid]
		courses := map[string]map[string]Change{}
		for cid := range unionKeys(oldCourses, curCourses) {
			holes := diffHoles(oldCourses[cid], curCourses[cid])
			if len(holes) > 0 {
				courses[cid] = holes
			}
		}
		if len(courses) > 0 {
			out[pid] = courses
		}
	}
	return out
}

func diffHoles(old, cur Holes) map[string]Change {
	out := map[string]Change{}
	for k := range unionKeys(old, cur) {
		var before, after Value
		if v, ok := old[k]; ok {
			before = Int(v)
		}
		if v, ok := cur[k]; ok {
			after = Int(v)
		}
		if Equal(before, after) {
			continue
		}
		out[k] = Change{OldValue: before, NewValue: after, Changed: true}
	}
	return out
}

func unionKeys[V any](a, b map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
