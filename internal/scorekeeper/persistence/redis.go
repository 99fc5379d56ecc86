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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// RedisEvaler abstracts the minimal surface we need from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 (Cmdable.Eval) or any equivalent.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisStore keeps each top-level root ("scores", "scores_mirror", ...) in one
// Redis hash. Hash fields are the slash-joined paths of the flattened leaves
// below the root and values are their JSON encodings; the root's own leaf, if
// any, lives under the empty field.
//
// Every read and write is a single EVAL, so one Set is atomic with respect to
// other commands on the same root.
type RedisStore struct {
	client    RedisEvaler
	keyPrefix string
}

// NewRedisStore returns a store using client. keyPrefix namespaces the hash
// keys, e.g. "scorekeeper:".
func NewRedisStore(client RedisEvaler, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// redisGetScript returns field/value pairs of every field equal to ARGV[1] or
// below it. An empty ARGV[1] selects the whole hash. A stored leaf never has
// descendants, so an exact HGET hit answers without scanning the hash.
const redisGetScript = `
local prefix = ARGV[1]
if prefix ~= '' then
  local v = redis.call('HGET', KEYS[1], prefix)
  if v then
    return {prefix, v}
  end
end
local all = redis.call('HGETALL', KEYS[1])
local out = {}
for i = 1, #all, 2 do
  local f = all[i]
  if prefix == '' or f == prefix or string.sub(f, 1, #prefix + 1) == prefix .. '/' then
    out[#out + 1] = f
    out[#out + 1] = all[i + 1]
  end
end
return out
`

// redisSetScript replaces the subtree at ARGV[1]:
// 1) clear the old subtree (DEL for the root, one HDEL when the prefix is a leaf, else HDEL every field below it)
// 2) HDEL the ARGV[2] ancestor fields that follow (leaves that would shadow the subtree)
// 3) HSET the remaining field/value pairs
const redisSetScript = `
local prefix = ARGV[1]
local n = tonumber(ARGV[2])
if prefix == '' then
  redis.call('DEL', KEYS[1])
elseif redis.call('HEXISTS', KEYS[1], prefix) == 1 then
  redis.call('HDEL', KEYS[1], prefix)
else
  local fields = redis.call('HKEYS', KEYS[1])
  for _, f in ipairs(fields) do
    if string.sub(f, 1, #prefix + 1) == prefix .. '/' then
      redis.call('HDEL', KEYS[1], f)
    end
  end
end
for i = 3, 2 + n do
  redis.call('HDEL', KEYS[1], ARGV[i])
end
for i = 3 + n, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`

// redisPushScript writes a subtree under a freshly minted key. Nothing can
// live below a new key, so only the ARGV[1] shadowing ancestors are cleared
// before the field/value pairs are set.
const redisPushScript = `
local n = tonumber(ARGV[1])
for i = 2, 1 + n do
  redis.call('HDEL', KEYS[1], ARGV[i])
end
for i = 2 + n, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`

const redisPingScript = `return 1`

// RedisRootKey is the hash key holding root.
func RedisRootKey(prefix, root string) string { return fmt.Sprintf("%s%s", prefix, root) }

// splitRoot separates the hash key from the field path relative to the root.
func (r *RedisStore) splitRoot(path string) (key, rel string, err error) {
	segs, err := splitPath(path)
	if err != nil {
		return "", "", err
	}
	return RedisRootKey(r.keyPrefix, segs[0]), strings.Join(segs[1:], "/"), nil
}

func (r *RedisStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	key, rel, err := r.splitRoot(path)
	if err != nil {
		return nil, err
	}
	reply, err := r.client.Eval(ctx, redisGetScript, []string{key}, rel)
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", path, err)
	}
	pairs, ok := reply.([]interface{})
	if !ok || len(pairs)%2 != 0 {
		return nil, fmt.Errorf("redis get %s: unexpected reply %T", path, reply)
	}
	leaves := make([]leaf, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		f, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		leaves = append(leaves, leaf{path: f, value: v})
	}
	return unflatten(rel, leaves)
}

func (r *RedisStore) Set(ctx context.Context, path string, value json.RawMessage) error {
	key, rel, err := r.splitRoot(path)
	if err != nil {
		return err
	}
	v, err := decodeValue(value)
	if err != nil {
		return err
	}
	leaves, err := flatten(rel, v)
	if err != nil {
		return err
	}
	var shadowing []string
	if v != nil && rel != "" {
		shadowing = append([]string{""}, ancestors(rel)...)
	}
	args := make([]interface{}, 0, 2+len(shadowing)+2*len(leaves))
	args = append(args, rel, len(shadowing))
	for _, a := range shadowing {
		args = append(args, a)
	}
	for _, l := range leaves {
		args = append(args, l.path, l.value)
	}
	if _, err := r.client.Eval(ctx, redisSetScript, []string{key}, args...); err != nil {
		return fmt.Errorf("redis set %s: %w", path, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, path string) error {
	return r.Set(ctx, path, nil)
}

// Push appends value under a new time-ordered key with redisPushScript, so
// the cost of an append does not depend on how many siblings exist.
func (r *RedisStore) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	key, rel, err := r.splitRoot(path)
	if err != nil {
		return "", err
	}
	v, err := decodeValue(value)
	if err != nil {
		return "", err
	}
	id, err := newPushKey()
	if err != nil {
		return "", err
	}
	if v == nil {
		return id, nil
	}
	child := joinRel(rel, id)
	leaves, err := flatten(child, v)
	if err != nil {
		return "", err
	}
	shadowing := append([]string{""}, ancestors(child)...)
	args := make([]interface{}, 0, 1+len(shadowing)+2*len(leaves))
	args = append(args, len(shadowing))
	for _, a := range shadowing {
		args = append(args, a)
	}
	for _, l := range leaves {
		args = append(args, l.path, l.value)
	}
	if _, err := r.client.Eval(ctx, redisPushScript, []string{key}, args...); err != nil {
		return "", fmt.Errorf("redis push %s: %w", path, err)
	}
	return id, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if _, err := r.client.Eval(ctx, redisPingScript, nil); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Client returns the go-redis client behind the store, or nil when the
// evaler does not expose one. The store keeps ownership of the client.
func (r *RedisStore) Client() *redis.Client {
	if src, ok := r.client.(redisClientSource); ok {
		return src.Client()
	}
	return nil
}

// Close closes the underlying client when it supports it.
func (r *RedisStore) Close() error {
	if c, ok := r.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
