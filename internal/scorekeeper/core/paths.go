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

// Package core implements the score consistency engine: the write pipeline
// (interceptor, audit log, mirror sync), the mirror lifecycle (TTL reaper,
// initializer, restorer) and the polling diff detector.
//
// Every multi-step operation in this package is a sequence of independent
// single-path store commits. Nothing here takes a cross-path lock or opens a
// transaction, so the mirror and the audit log are only eventually consistent
// with the primary table.
package core

import (
	"time"

	"scorekeeper/internal/scorekeeper/persistence"
)

// Store roots.
const (
	ScoresRoot     = "scores"
	MirrorRoot     = "scores_mirror"
	MirrorMetaRoot = "scores_mirror_meta"
	AuditRoot      = "scoreImmutableLogs"
)

// WatermarkPath holds the mirror's last write time in epoch milliseconds.
var WatermarkPath = persistence.Join(MirrorMetaRoot, "lastWriteAt")

const (
	// DefaultMirrorTTL is how long a mirror may go without writes before it is
	// considered stale.
	DefaultMirrorTTL = 48 * time.Hour
	// DefaultReapInterval is the TTL reaper schedule.
	DefaultReapInterval = 6 * time.Hour
	// DefaultGroup is the poll group used when the caller names none.
	DefaultGroup = "all"
)

// Clock returns the current wall-clock time.
type Clock func() time.Time

func (c Clock) orSystem() Clock {
	if c == nil {
		return time.Now
	}
	return c
}
