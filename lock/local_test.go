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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	gerrors "github.com/tochemey/hadb/errors"
)

func TestLocal(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("Exclusive locks are mutually exclusive", func(t *testing.T) {
		manager := NewLocal(WithTimeout(100 * time.Millisecond))
		owner1 := WithOwner(context.Background(), "owner1")
		owner2 := WithOwner(context.Background(), "owner2")

		unlock, err := manager.Lock(owner1, Global, Exclusive)
		require.NoError(t, err)

		_, err = manager.Lock(owner2, Global, Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)
		_, err = manager.Lock(owner2, Global, Shared)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)

		unlock()
		unlock2, err := manager.Lock(owner2, Global, Exclusive)
		require.NoError(t, err)
		unlock2()
		require.Zero(t, manager.size())
	})
	t.Run("Shared locks are held concurrently", func(t *testing.T) {
		manager := NewLocal(WithTimeout(100 * time.Millisecond))

		unlock1, err := manager.Lock(WithOwner(context.Background(), "owner1"), Global, Shared)
		require.NoError(t, err)
		unlock2, err := manager.Lock(WithOwner(context.Background(), "owner2"), Global, Shared)
		require.NoError(t, err)

		_, err = manager.Lock(WithOwner(context.Background(), "owner3"), Global, Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)

		unlock1()
		unlock2()

		unlock3, err := manager.Lock(WithOwner(context.Background(), "owner3"), Global, Exclusive)
		require.NoError(t, err)
		unlock3()
		require.Zero(t, manager.size())
	})
	t.Run("Locks are reentrant per owner", func(t *testing.T) {
		manager := NewLocal(WithTimeout(100 * time.Millisecond))
		owner1 := WithOwner(context.Background(), "owner1")
		owner2 := WithOwner(context.Background(), "owner2")

		outer, err := manager.Lock(owner1, Global, Exclusive)
		require.NoError(t, err)
		shared, err := manager.Lock(owner1, Global, Shared)
		require.NoError(t, err)
		inner, err := manager.Lock(owner1, Global, Exclusive)
		require.NoError(t, err)

		inner()
		shared()
		_, err = manager.Lock(owner2, Global, Shared)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)

		outer()
		unlock, err := manager.Lock(owner2, Global, Shared)
		require.NoError(t, err)
		unlock()
	})
	t.Run("Upgrading a shared lock fails", func(t *testing.T) {
		manager := NewLocal()
		owner := WithOwner(context.Background(), "owner1")

		unlock, err := manager.Lock(owner, Global, Shared)
		require.NoError(t, err)
		nested, err := manager.Lock(owner, Global, Shared)
		require.NoError(t, err)

		_, err = manager.Lock(owner, Global, Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockUpgrade)

		nested()
		unlock()
		require.Zero(t, manager.size())
	})
	t.Run("Acquisitions without owner are not reentrant", func(t *testing.T) {
		manager := NewLocal(WithTimeout(50 * time.Millisecond))
		ctx := context.Background()

		unlock, err := manager.Lock(ctx, "orders", Exclusive)
		require.NoError(t, err)
		_, err = manager.Lock(ctx, "orders", Exclusive)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)

		other, err := manager.Lock(ctx, "customers", Exclusive)
		require.NoError(t, err)

		// unlocking twice has no effect
		unlock()
		unlock()
		other()
		require.Zero(t, manager.size())
	})
	t.Run("The context deadline bounds the wait", func(t *testing.T) {
		manager := NewLocal(WithTimeout(time.Hour))
		unlock, err := manager.Lock(context.Background(), Global, Exclusive)
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err = manager.Lock(ctx, Global, Shared)
		require.ErrorIs(t, err, gerrors.ErrLockTimeout)
		require.Less(t, time.Since(start), time.Second)
	})
	t.Run("At most one exclusive holder at any time", func(t *testing.T) {
		manager := NewLocal(WithTimeout(5 * time.Second))
		holders := atomic.NewInt32(0)
		violations := atomic.NewInt32(0)

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := manager.Lock(context.Background(), Global, Exclusive)
				if err != nil {
					violations.Inc()
					return
				}
				if holders.Inc() > 1 {
					violations.Inc()
				}
				time.Sleep(time.Millisecond)
				holders.Dec()
				unlock()
			}()
		}
		wg.Wait()
		assert.Zero(t, violations.Load())
		assert.Zero(t, manager.size())
	})
}

func TestMode(t *testing.T) {
	assert.Equal(t, "shared", Shared.String())
	assert.Equal(t, "exclusive", Exclusive.String())
	assert.Equal(t, "unknown", Mode(7).String())
}

func TestOwner(t *testing.T) {
	_, ok := OwnerFrom(context.Background())
	require.False(t, ok)
	_, ok = OwnerFrom(WithOwner(context.Background(), ""))
	require.False(t, ok)
	owner, ok := OwnerFrom(WithOwner(context.Background(), "owner1"))
	require.True(t, ok)
	require.Equal(t, "owner1", owner)
}
