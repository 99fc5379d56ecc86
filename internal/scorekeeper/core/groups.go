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

import "context"

// GroupMembership decides which players a poll group reports on.
type GroupMembership interface {
	InGroup(ctx context.Context, group, playerID string) (bool, error)
}

// AllGroups admits every player into every group.
type AllGroups struct{}

func (AllGroups) InGroup(context.Context, string, string) (bool, error) { return true, nil }

// StaticGroups maps group names to their player ids. Groups that are not
// listed (including the default group) admit every player.
type StaticGroups map[string][]string

func (s StaticGroups) InGroup(_ context.Context, group, playerID string) (bool, error) {
	members, ok := s[group]
	if !ok {
		return true, nil
	}
	for _, m := range members {
		if m == playerID {
			return true, nil
		}
	}
	return false, nil
}
