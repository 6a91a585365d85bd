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

// Package workerpool provides the bounded executors running the per-database
// tasks of an invocation.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/log"
)

// DefaultSize is the maximum number of workers of a pool created with a non-positive size
var DefaultSize = runtime.GOMAXPROCS(0) * 8

// DefaultStopTimeout is the default time Stop waits for the running tasks
const DefaultStopTimeout = 5 * time.Second

// WorkerPool runs submitted tasks on at most size workers.
// Workers are spawned on demand and exit after staying idle for the passivation duration.
type WorkerPool struct {
	name           string
	size           int
	passivateAfter time.Duration
	stopTimeout    time.Duration
	logger         log.Logger

	tasks   chan func()
	workers *semaphore.Weighted
	stop    chan struct{}
	wg      sync.WaitGroup

	mutex          sync.RWMutex
	started        *atomic.Bool
	stopped        *atomic.Bool
	spawnedWorkers *atomic.Int64
}

// New creates a WorkerPool
func New(name string, size int, opts ...Option) *WorkerPool {
	if size <= 0 {
		size = DefaultSize
	}

	pool := &WorkerPool{
		name:           name,
		size:           size,
		passivateAfter: time.Second,
		stopTimeout:    DefaultStopTimeout,
		logger:         log.DefaultLogger,
		tasks:          make(chan func()),
		workers:        semaphore.NewWeighted(int64(size)),
		stop:           make(chan struct{}),
		started:        atomic.NewBool(false),
		stopped:        atomic.NewBool(false),
		spawnedWorkers: atomic.NewInt64(0),
	}

	for _, opt := range opts {
		opt.Apply(pool)
	}
	return pool
}

// Name returns the pool name
func (wp *WorkerPool) Name() string {
	return wp.name
}

// Size returns the maximum number of workers
func (wp *WorkerPool) Size() int {
	return wp.size
}

// SpawnedWorkers returns the current count of workers
func (wp *WorkerPool) SpawnedWorkers() int {
	return int(wp.spawnedWorkers.Load())
}

// Start makes the pool accept tasks. It's safe to call Start multiple times.
func (wp *WorkerPool) Start() {
	wp.mutex.Lock()
	if !wp.stopped.Load() {
		wp.started.Store(true)
	}
	wp.mutex.Unlock()
}

// Stop refuses new tasks and waits for the running ones to complete, at most
// for the stop timeout. Tasks still running then are left to finish on their own.
func (wp *WorkerPool) Stop() {
	wp.mutex.Lock()
	if !wp.started.Load() || wp.stopped.Swap(true) {
		wp.mutex.Unlock()
		return
	}
	close(wp.stop)
	wp.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(wp.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		wp.logger.Debugf("worker pool %s stopped", wp.name)
	case <-timer.C:
		wp.logger.Warnf("worker pool %s stopped after %s with %d task(s) still running", wp.name, wp.stopTimeout, wp.SpawnedWorkers())
	}
}

// Submit hands the task to an idle worker, spawns a new worker when the pool
// is not full, or waits for a worker to free up until ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	wp.mutex.RLock()
	if !wp.started.Load() || wp.stopped.Load() {
		wp.mutex.RUnlock()
		return fmt.Errorf("worker pool %s: %w", wp.name, gerrors.ErrExecutorStopped)
	}

	select {
	case wp.tasks <- task:
		wp.mutex.RUnlock()
		return nil
	default:
	}

	if wp.workers.TryAcquire(1) {
		wp.spawnedWorkers.Inc()
		wp.wg.Add(1)
		go wp.work(task)
		wp.mutex.RUnlock()
		return nil
	}
	wp.mutex.RUnlock()

	select {
	case wp.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.stop:
		return fmt.Errorf("worker pool %s: %w", wp.name, gerrors.ErrExecutorStopped)
	}
}

func (wp *WorkerPool) work(task func()) {
	defer func() {
		wp.spawnedWorkers.Dec()
		wp.workers.Release(1)
		wp.wg.Done()
	}()

	idle := time.NewTimer(wp.passivateAfter)
	defer idle.Stop()

	for {
		wp.run(task)

		idle.Reset(wp.passivateAfter)
		select {
		case task = <-wp.tasks:
		case <-idle.C:
			return
		case <-wp.stop:
			return
		}
	}
}

func (wp *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorf("worker pool %s: task panicked: %v", wp.name, r)
		}
	}()
	task()
}
