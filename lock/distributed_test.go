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

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/grouptest"
	"github.com/tochemey/hadb/log"
)

func newDistributed(network *grouptest.Network, id string) (*Distributed, *Local) {
	local := NewLocal(WithTimeout(200 * time.Millisecond))
	return NewDistributed(local, network.Join(id), WithLogger(log.DiscardLogger)), local
}

func TestDistributed(t *testing.T) {
	t.Run("Exclusive locks are held on every member", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()
		node1, _ := newDistributed(network, "node1")
		node2, local2 := newDistributed(network, "node2")
		require.NoError(t, node1.Start(ctx))
		require.NoError(t, node2.Start(ctx))

		unlock, err := node1.Lock(WithOwner(ctx, "activation"), Global, Exclusive)
		require.NoError(t, err)

		_, err = node2.Lock(ctx, Global, Shared)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)
		_, err = node2.Lock(ctx, Global, Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)

		// reentrant acquisitions do not broadcast again
		nested, err := node1.Lock(WithOwner(ctx, "activation"), Global, Exclusive)
		require.NoError(t, err)
		nested()

		unlock()
		require.Eventually(t, func() bool { return local2.size() == 0 }, time.Second, 10*time.Millisecond)

		unlock2, err := node2.Lock(ctx, Global, Exclusive)
		require.NoError(t, err)
		unlock2()

		require.NoError(t, node1.Stop(ctx))
		require.NoError(t, node2.Stop(ctx))
	})
	t.Run("Shared locks are not broadcast but block a remote exclusive lock", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()
		node1, _ := newDistributed(network, "node1")
		node2, _ := newDistributed(network, "node2")

		unlock, err := node1.Lock(ctx, Global, Shared)
		require.NoError(t, err)
		require.Zero(t, network.Member("node1").Broadcasts())

		// the write fan-out of node1 keeps the activation of node2 out
		_, err = node2.Lock(ctx, Global, Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)

		unlock()
		require.Zero(t, network.Member("node1").Broadcasts())

		unlock2, err := node2.Lock(ctx, Global, Exclusive)
		require.NoError(t, err)
		unlock2()
	})
	t.Run("A member that does not answer fails the acquisition", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()
		node1, local1 := newDistributed(network, "node1")
		_, local2 := newDistributed(network, "node2")
		_, _ = newDistributed(network, "node3")
		network.Member("node3").Mute(true)

		_, err := node1.Lock(ctx, Global, Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)
		require.ErrorIs(t, err, gerrors.ErrBroadcastIncomplete)

		// the partial acquisition has been rolled back everywhere
		require.Eventually(t, func() bool { return local2.size() == 0 }, time.Second, 10*time.Millisecond)
		require.Zero(t, local1.size())
	})
	t.Run("Locks of a departed member are released", func(t *testing.T) {
		ctx := context.Background()
		network := grouptest.NewNetwork()
		node1, _ := newDistributed(network, "node1")
		node2, _ := newDistributed(network, "node2")

		_, err := node1.Lock(ctx, Global, Exclusive)
		require.NoError(t, err)

		_, err = node2.Lock(ctx, Global, Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)

		network.Leave("node1")

		unlock, err := node2.Lock(ctx, Global, Exclusive)
		require.NoError(t, err)
		unlock()
	})
}
