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
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/hadb/errors"
)

func TestManagers(t *testing.T) {
	managers := map[string]func(t *testing.T) Manager{
		"memory": func(*testing.T) Manager { return NewMemory() },
		"bolt": func(t *testing.T) Manager {
			return NewBolt(filepath.Join(t.TempDir(), "state.db"), "orders")
		},
		"redis": func(t *testing.T) Manager {
			server := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: server.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedis(client, "orders")
		},
	}

	for name, factory := range managers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := factory(t)
			require.NoError(t, manager.Start(ctx))

			_, err := manager.Load(ctx)
			require.ErrorIs(t, err, gerrors.ErrNoState)

			require.NoError(t, manager.Store(ctx, []string{"b", "a", "b"}))
			ids, err := manager.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, ids)

			require.NoError(t, manager.Store(ctx, []string{"c"}))
			ids, err = manager.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"c"}, ids)

			// an empty set is persisted as such
			require.NoError(t, manager.Store(ctx, nil))
			ids, err = manager.Load(ctx)
			require.NoError(t, err)
			require.Empty(t, ids)

			require.NoError(t, manager.Stop(ctx))
		})
	}
}

func TestBolt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	manager := NewBolt(path, "orders")
	_, err := manager.Load(ctx)
	require.ErrorIs(t, err, gerrors.ErrStoreClosed)
	require.ErrorIs(t, manager.Store(ctx, []string{"a"}), gerrors.ErrStoreClosed)

	require.NoError(t, manager.Start(ctx))
	require.NoError(t, manager.Store(ctx, []string{"a", "b"}))
	require.NoError(t, manager.Stop(ctx))
	require.NoError(t, manager.Stop(ctx))

	// the active set survives a restart
	restarted := NewBolt(path, "orders")
	require.NoError(t, restarted.Start(ctx))
	ids, err := restarted.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)

	// and so does an empty one
	require.NoError(t, restarted.Store(ctx, nil))
	require.NoError(t, restarted.Stop(ctx))
	inert := NewBolt(path, "orders")
	require.NoError(t, inert.Start(ctx))
	ids, err = inert.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, inert.Stop(ctx))
}

func TestRedisUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()
	server.Close()

	require.Error(t, NewRedis(client, "orders").Start(context.Background()))
}
