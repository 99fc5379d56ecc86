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

	"scorekeeper/internal/scorekeeper/score"
)

// AuthorResolver resolves who made a write. A nil author with a nil error
// means the identity is unknown.
type AuthorResolver interface {
	ResolveAuthor(ctx context.Context, ev WriteEvent) (*score.Author, error)
}

// AuthorResolverFunc adapts a function to AuthorResolver.
type AuthorResolverFunc func(ctx context.Context, ev WriteEvent) (*score.Author, error)

func (f AuthorResolverFunc) ResolveAuthor(ctx context.Context, ev WriteEvent) (*score.Author, error) {
	return f(ctx, ev)
}

// EventAuthorResolver trusts the author carried on the event itself, as
// delivered by the change-notification source.
type EventAuthorResolver struct{}

func (EventAuthorResolver) ResolveAuthor(_ context.Context, ev WriteEvent) (*score.Author, error) {
	return ev.Author, nil
}

// completeAuthor fills missing identity fields with the unknown sentinel.
func completeAuthor(a *score.Author) score.Author {
	out := score.UnknownAuthor()
	if a == nil {
		return out
	}
	if a.ID != "" {
		out.ID = a.ID
	}
	if a.Role != "" {
		out.Role = a.Role
	}
	return out
}
