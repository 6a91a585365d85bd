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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/grouptest"
	"github.com/tochemey/hadb/log"
)

type applier struct {
	mu      sync.Mutex
	applied [][]string
}

func (a *applier) Apply(_ context.Context, ids []string) error {
	a.mu.Lock()
	a.applied = append(a.applied, ids)
	a.mu.Unlock()
	return nil
}

func TestDistributed(t *testing.T) {
	t.Run("Stored active sets reach every member", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()

		local1 := NewMemory()
		local2 := NewMemory()
		node1 := NewDistributed(local1, network.Join("node1"), WithLogger(log.DiscardLogger))
		node2 := NewDistributed(local2, network.Join("node2"), WithLogger(log.DiscardLogger))
		applier2 := new(applier)
		node2.SetApplier(applier2)
		require.NoError(t, node1.Start(ctx))
		require.NoError(t, node2.Start(ctx))

		require.NoError(t, node1.Store(ctx, []string{"b", "a"}))

		ids, err := local2.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, ids)
		require.Equal(t, [][]string{{"a", "b"}}, applier2.applied)

		require.NoError(t, node1.Stop(ctx))
		require.NoError(t, node2.Stop(ctx))
	})
	t.Run("Load prefers the view of a running member", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()

		running := NewMemory()
		require.NoError(t, running.Store(ctx, []string{"a"}))
		_ = NewDistributed(running, network.Join("node1"), WithLogger(log.DiscardLogger))

		stale := NewMemory()
		require.NoError(t, stale.Store(ctx, []string{"a", "b"}))
		joining := NewDistributed(stale, network.Join("node2"), WithLogger(log.DiscardLogger))

		ids, err := joining.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, ids)
	})
	t.Run("Load falls back to the local view", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()

		_ = NewDistributed(NewMemory(), network.Join("node1"), WithLogger(log.DiscardLogger))
		local := NewMemory()
		require.NoError(t, local.Store(ctx, []string{"a", "b"}))
		node2 := NewDistributed(local, network.Join("node2"), WithLogger(log.DiscardLogger))

		ids, err := node2.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, ids)
	})
	t.Run("Load reports an empty set persisted by another member", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()

		inert := NewMemory()
		require.NoError(t, inert.Store(ctx, nil))
		_ = NewDistributed(inert, network.Join("node1"), WithLogger(log.DiscardLogger))
		node2 := NewDistributed(NewMemory(), network.Join("node2"), WithLogger(log.DiscardLogger))

		ids, err := node2.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, ids)
		require.Empty(t, ids)
	})
	t.Run("Load reports no state when no member persisted any", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()

		_ = NewDistributed(NewMemory(), network.Join("node1"), WithLogger(log.DiscardLogger))
		node2 := NewDistributed(NewMemory(), network.Join("node2"), WithLogger(log.DiscardLogger))

		_, err := node2.Load(ctx)
		require.ErrorIs(t, err, gerrors.ErrNoState)
	})
	t.Run("A member that does not answer fails the store", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()

		node1 := NewDistributed(NewMemory(), network.Join("node1"),
			WithLogger(log.DiscardLogger),
			WithBroadcastTimeout(100*time.Millisecond))
		_ = NewDistributed(NewMemory(), network.Join("node2"), WithLogger(log.DiscardLogger))
		network.Member("node2").Mute(true)

		err := node1.Store(ctx, []string{"a"})
		require.ErrorIs(t, err, gerrors.ErrBroadcastIncomplete)
	})
}
