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

package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// decodeValue parses a written value and normalizes it. JSON null and empty
// input decode to nil.
func decodeValue(value json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode value: trailing data")
	}
	return normalize(v)
}

// normalize drops null members and turns arrays into index-keyed objects.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			if k == "" || strings.Contains(k, "/") {
				return nil, fmt.Errorf("%w: key %q", ErrInvalidPath, k)
			}
			n, err := normalize(c)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out[k] = n
			}
		}
		return out, nil
	case []any:
		out := make(map[string]any, len(t))
		for i, c := range t {
			n, err := normalize(c)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out[strconv.Itoa(i)] = n
			}
		}
		return out, nil
	default:
		return v, nil
	}
}

// leaf is one stored scalar (or empty object) of a flattened tree.
type leaf struct {
	path  string
	value string
}

// joinRel joins a possibly empty relative prefix with a key.
func joinRel(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// flatten turns a normalized value into leaves under prefix. Empty objects are
// kept as a "{}" leaf.
func flatten(prefix string, v any) ([]leaf, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return []leaf{{path: prefix, value: string(b)}}, nil
	}
	if len(m) == 0 {
		return []leaf{{path: prefix, value: "{}"}}, nil
	}
	var out []leaf
	for k, c := range m {
		sub, err := flatten(joinRel(prefix, k), c)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// unflatten rebuilds the subtree at prefix from its leaves. It returns
// ErrNotFound when there are none.
func unflatten(prefix string, leaves []leaf) (json.RawMessage, error) {
	if len(leaves) == 0 {
		return nil, ErrNotFound
	}
	var root any
	for _, l := range leaves {
		dec := json.NewDecoder(strings.NewReader(l.value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode stored leaf %q: %w", l.path, err)
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(l.path, prefix), "/")
		if rel == "" {
			if _, isMap := root.(map[string]any); !isMap {
				root = v
			}
			continue
		}
		node, ok := root.(map[string]any)
		if !ok {
			node = map[string]any{}
			root = node
		}
		segs := strings.Split(rel, "/")
		for _, s := range segs[:len(segs)-1] {
			child, ok := node[s].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[s] = child
			}
			node = child
		}
		last := segs[len(segs)-1]
		if _, ok := node[last].(map[string]any); ok {
			if m, isMap := v.(map[string]any); isMap && len(m) == 0 {
				continue
			}
		}
		node[last] = v
	}
	return json.Marshal(root)
}

// ancestors returns the proper prefixes of a slash-separated path, shortest
// first: "a/b/c" -> ["a", "a/b"].
func ancestors(path string) []string {
	segs := strings.Split(path, "/")
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}
