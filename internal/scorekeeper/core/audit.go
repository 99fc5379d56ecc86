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

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scorekeeper/internal/scorekeeper/persistence"
	"scorekeeper/internal/scorekeeper/score"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// AuditSink receives a copy of every record after it was appended to the
// store. Sink failures are logged and never fail the append.
type AuditSink interface {
	WriteRecord(bucket, key string, rec score.AuditRecord) error
}

// AuditLog appends immutable change records under hour buckets.
type AuditLog struct {
	store    persistence.Store
	location *time.Location
	sink     AuditSink
	logger   *zap.Logger
}

// NewAuditLog returns an appender writing to store. Bucket keys use loc
// (nil means time.Local).
func NewAuditLog(store persistence.Store, loc *time.Location, logger *zap.Logger) *AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLog{store: store, location: loc, logger: logger}
}

// WithSink tees appended records into sink.
func (a *AuditLog) WithSink(sink AuditSink) *AuditLog {
	a.sink = sink
	return a
}

// BucketPath returns the store path of the bucket for now.
func (a *AuditLog) BucketPath(now time.Time) string {
	return persistence.Join(AuditRoot, score.BucketKey(now, a.location))
}

// Append stores rec under the bucket derived from now with a store-generated
// key and returns that key. It never overwrites an existing record.
func (a *AuditLog) Append(ctx context.Context, now time.Time, rec score.AuditRecord) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode audit record: %w", err)
	}
	bucket := score.BucketKey(now, a.location)
	key, err := a.store.Push(ctx, persistence.Join(AuditRoot, bucket), raw)
	telemetry.ObserveAuditAppend(err)
	if err != nil {
		return "", fmt.Errorf("append audit record %s: %w", rec.Path, err)
	}
	if a.sink != nil {
		if err := a.sink.WriteRecord(bucket, key, rec); err != nil {
			a.logger.Warn("audit sink write failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		}
	}
	return key, nil
}
