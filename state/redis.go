// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package state

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	gerrors "github.com/tochemey/hadb/errors"
)

// Redis stores the active set as a redis SET shared by every process of
// the cluster, next to a marker key telling an empty set from no set.
// The client is owned by the caller.
type Redis struct {
	client redis.UniversalClient
	key    string
	marker string
}

var _ Manager = (*Redis)(nil)

// NewRedis creates a Redis state manager for the given cluster
func NewRedis(client redis.UniversalClient, cluster string) *Redis {
	return &Redis{
		client: client,
		key:    "hadb:" + cluster + ":active",
		marker: "hadb:" + cluster + ":stored",
	}
}

// Start checks the server is reachable
func (r *Redis) Start(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("state: redis is unreachable: %w", err)
	}
	return nil
}

// Stop is a no-op
func (r *Redis) Stop(context.Context) error {
	return nil
}

// Load returns the members of the active set
func (r *Redis) Load(ctx context.Context) ([]string, error) {
	var (
		stored  *redis.IntCmd
		members *redis.StringSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		stored = pipe.Exists(ctx, r.marker)
		members = pipe.SMembers(ctx, r.key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state: failed to load the active set: %w", err)
	}
	if stored.Val() == 0 {
		return nil, gerrors.ErrNoState
	}
	ids := members.Val()
	slices.Sort(ids)
	return ids, nil
}

// Store replaces the active set atomically
func (r *Redis) Store(ctx context.Context, ids []string) error {
	ids = normalize(ids)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.Set(ctx, r.marker, len(ids), 0)
		if len(ids) > 0 {
			members := make([]any, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, r.key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("state: failed to store the active set: %w", err)
	}
	return nil
}
