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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(Int(4), Int(4)))
	assert.False(t, Equal(Int(4), Int(5)))
	assert.False(t, Equal(nil, Int(0)))
	assert.False(t, Equal(Int(0), nil))
}

func TestParseCell(t *testing.T) {
	c, err := ParseCell("p1", "c1", "7")
	require.NoError(t, err)
	assert.Equal(t, Cell{PlayerID: "p1", CourseID: "c1", Hole: 7}, c)
	assert.Equal(t, "p1/c1/7", c.Path())

	for _, tc := range []struct{ p, c, h string }{
		{"", "c1", "1"},
		{"p1", "", "1"},
		{"p/1", "c1", "1"},
		{"p1", "c1", "x"},
		{"p1", "c1", "-1"},
	} {
		_, err := ParseCell(tc.p, tc.c, tc.h)
		assert.Truef(t, errors.Is(err, ErrInvalidCell), "%+v: got %v", tc, err)
	}
}

func TestBucketKey(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	ts := time.Date(2026, 3, 4, 22, 59, 59, 0, time.UTC)
	assert.Equal(t, "2026030422", BucketKey(ts, time.UTC))
	// 22:59 UTC is 00:59 the next day at UTC+2.
	assert.Equal(t, "2026030500", BucketKey(ts, loc))
}

func TestAuditRecordJSON(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	rec := NewAuditRecord("scores", Cell{PlayerID: "p1", CourseID: "c1", Hole: 3}, nil, Int(5), ts, UnknownAuthor())
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"path":"scores/p1/c1/3","playerId":"p1","courseId":"c1","hole":3,
		"oldValue":null,"newValue":5,"changedAt":1700000000123,
		"authorId":"unknown","authorRole":"unknown"}`, string(b))
}

func TestDecodeTree(t *testing.T) {
	tree, err := DecodeTree([]byte(`{
		"p1": {"c1": {"1": 4, "2": null, "3": "bad"}},
		"p2": {"c9": [null, 3, 5]},
		"p3": 17
	}`))
	require.NoError(t, err)
	assert.Equal(t, Holes{"1": 4}, tree["p1"]["c1"])
	assert.Equal(t, Holes{"1": 3, "2": 5}, tree["p2"]["c9"])
	assert.NotContains(t, tree, "p3")

	for _, raw := range []string{"", "null", "{}"} {
		tree, err := DecodeTree([]byte(raw))
		require.NoError(t, err)
		assert.Empty(t, tree)
	}

	_, err = DecodeTree([]byte(`42`))
	assert.Error(t, err)
}

func TestTreeGetAndClone(t *testing.T) {
	tree := Tree{"p1": {"c1": {"1": 4}}}
	assert.Equal(t, 4, *tree.Get(Cell{PlayerID: "p1", CourseID: "c1", Hole: 1}))
	assert.Nil(t, tree.Get(Cell{PlayerID: "p1", CourseID: "c1", Hole: 2}))
	assert.Nil(t, tree.Get(Cell{PlayerID: "p2", CourseID: "c1", Hole: 1}))

	cp := tree.Clone()
	cp["p1"]["c1"]["1"] = 9
	assert.Equal(t, 4, tree["p1"]["c1"]["1"])
}
