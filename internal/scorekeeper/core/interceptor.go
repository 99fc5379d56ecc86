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
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scorekeeper/internal/scorekeeper/score"
	"scorekeeper/internal/scorekeeper/telemetry"
)

// ErrInvalidEvent is returned when a write event does not address a cell.
var ErrInvalidEvent = errors.New("core: invalid write event")

// WriteEvent is one observed mutation of a primary score cell.
type WriteEvent struct {
	Cell   score.Cell
	Before score.Value
	After  score.Value
	// Author is the identity reported by the change source, if any.
	Author *score.Author
}

// Outcome reports what Handle did.
type Outcome struct {
	Skipped  bool
	Bucket   string
	AuditKey string
}

// Interceptor is the handler bound to score-cell writes. For every genuine
// change it appends one audit record and mirrors the new value.
type Interceptor struct {
	audit   *AuditLog
	mirror  *MirrorSync
	authors AuthorResolver
	now     Clock
	logger  *zap.Logger
}

// NewInterceptor wires the write pipeline. A nil resolver trusts the author
// carried on each event.
func NewInterceptor(audit *AuditLog, mirror *MirrorSync, authors AuthorResolver, clock Clock, logger *zap.Logger) *Interceptor {
	if authors == nil {
		authors = EventAuthorResolver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{audit: audit, mirror: mirror, authors: authors, now: clock.orSystem(), logger: logger}
}

// Handle processes one write event. Equal before and after values are
// skipped without touching the store. Otherwise the audit append and the
// mirror write run concurrently; neither cancels nor rolls back the other, and
// the first error is returned once both have finished.
func (i *Interceptor) Handle(ctx context.Context, ev WriteEvent) (Outcome, error) {
	if err := ev.Cell.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if score.Equal(ev.Before, ev.After) {
		telemetry.ObserveWrite(true)
		return Outcome{Skipped: true}, nil
	}
	telemetry.ObserveWrite(false)

	now := i.now()
	author := i.resolveAuthor(ctx, ev)
	rec := score.NewAuditRecord(ScoresRoot, ev.Cell, ev.Before, ev.After, now, author)
	out := Outcome{Bucket: score.BucketKey(now, i.audit.location)}

	// A plain Group: a failing sibling must not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		key, err := i.audit.Append(ctx, now, rec)
		if err != nil {
			i.logger.Error("audit append failed", zap.String("path", rec.Path), zap.Error(err))
			return err
		}
		out.AuditKey = key
		return nil
	})
	g.Go(func() error {
		if err := i.mirror.Write(ctx, ev.Cell, ev.After); err != nil {
			i.logger.Error("mirror write failed", zap.String("path", rec.Path), zap.Error(err))
			return err
		}
		return nil
	})
	err := g.Wait()
	i.logger.Debug("score change handled",
		zap.String("path", rec.Path),
		zap.String("old", score.Format(ev.Before)),
		zap.String("new", score.Format(ev.After)),
		zap.String("author", author.ID),
		zap.Bool("ok", err == nil))
	return out, err
}

func (i *Interceptor) resolveAuthor(ctx context.Context, ev WriteEvent) score.Author {
	a, err := i.authors.ResolveAuthor(ctx, ev)
	if err != nil {
		i.logger.Warn("author resolution failed", zap.String("cell", ev.Cell.Path()), zap.Error(err))
		return score.UnknownAuthor()
	}
	return completeAuthor(a)
}
