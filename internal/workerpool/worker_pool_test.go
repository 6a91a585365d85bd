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

package workerpool

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
	"github.com/tochemey/hadb/log"
)

func TestWorkerPool(t *testing.T) {
	t.Run("With happy path", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pool := New("writes", 4, WithPassivateAfter(10*time.Millisecond), WithLogger(log.DiscardLogger))
		pool.Start()
		require.Zero(t, pool.SpawnedWorkers())

		ctx := context.Background()
		executed := atomic.NewInt64(0)
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			require.NoError(t, pool.Submit(ctx, func() {
				defer wg.Done()
				time.Sleep(time.Millisecond)
				executed.Inc()
			}))
		}
		wg.Wait()

		assert.EqualValues(t, 100, executed.Load())
		assert.LessOrEqual(t, pool.SpawnedWorkers(), 4)

		require.Eventually(t, func() bool { return pool.SpawnedWorkers() == 0 }, time.Second, 5*time.Millisecond)

		pool.Stop()
		// already stopped
		pool.Stop()
	})
	t.Run("When not started", func(t *testing.T) {
		pool := New("reads", 1, WithLogger(log.DiscardLogger))
		err := pool.Submit(context.Background(), func() {})
		require.ErrorIs(t, err, gerrors.ErrExecutorStopped)
		pool.Stop()
		require.False(t, pool.stopped.Load())
	})
	t.Run("When stopped", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pool := New("writes", 1, WithLogger(log.DiscardLogger))
		pool.Start()
		pool.Stop()
		err := pool.Submit(context.Background(), func() {})
		require.ErrorIs(t, err, gerrors.ErrExecutorStopped)
	})
	t.Run("When the pool is full the submission waits for the context", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pool := New("writes", 1, WithLogger(log.DiscardLogger))
		pool.Start()

		release := make(chan struct{})
		require.NoError(t, pool.Submit(context.Background(), func() { <-release }))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := pool.Submit(ctx, func() {})
		require.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		pool.Stop()
	})
	t.Run("Stop gives up on a task that never returns", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pool := New("writes", 1, WithLogger(log.DiscardLogger), WithStopTimeout(50*time.Millisecond))
		pool.Start()

		release := make(chan struct{})
		require.NoError(t, pool.Submit(context.Background(), func() { <-release }))

		start := time.Now()
		pool.Stop()
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 1, pool.SpawnedWorkers())

		close(release)
		require.Eventually(t, func() bool { return pool.SpawnedWorkers() == 0 }, time.Second, 5*time.Millisecond)
	})
	t.Run("With a panicking task the worker survives", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		pool := New("writes", 1, WithLogger(log.DiscardLogger))
		pool.Start()

		require.NoError(t, pool.Submit(context.Background(), func() { panic("boom") }))
		done := make(chan struct{})
		require.NoError(t, pool.Submit(context.Background(), func() { close(done) }))
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task not executed")
		}
		pool.Stop()
	})
}
