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

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authorizer guards the privileged routes with a static bearer token.
type Authorizer struct {
	token []byte
}

// NewAuthorizer returns an Authorizer. An empty token admits every caller.
func NewAuthorizer(token string) *Authorizer {
	return &Authorizer{token: []byte(token)}
}

// Enabled reports whether a token is configured.
func (a *Authorizer) Enabled() bool { return len(a.token) > 0 }

// Allow reports whether r carries the configured bearer token.
func (a *Authorizer) Allow(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), a.token) == 1
}

// Require rejects requests that fail Allow with 401.
func (a *Authorizer) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Allow(r) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="scorekeeper"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
