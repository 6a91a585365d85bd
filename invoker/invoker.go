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

// Package invoker runs operations against the active databases of a cluster:
// reads on one database, writes on all of them, deactivating the databases
// that fail where others succeed.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tochemey/hadb/balancer"
	"github.com/tochemey/hadb/cluster"
	"github.com/tochemey/hadb/database"
	"github.com/tochemey/hadb/durability"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/lock"
	"github.com/tochemey/hadb/log"
	"github.com/tochemey/hadb/telemetry"
)

const (
	outcomeSuccess  = "success"
	outcomeDegraded = "degraded"
	outcomeFailure  = "failure"
)

// Operation is the work run against one database with the resource of that database
type Operation[T, R any] func(ctx context.Context, db *database.Database, resource T) (R, error)

// Resources resolves the per-database resource of an operation.
// A missing resource means the handle was pruned after the database left the active set.
type Resources[T any] interface {
	Get(id string) (T, bool)
}

// ResourceMap is a Resources backed by a map
type ResourceMap[T any] map[string]T

// Get returns the resource of the given database
func (m ResourceMap[T]) Get(id string) (T, bool) {
	resource, ok := m[id]
	return resource, ok
}

// Cluster is the part of a database cluster an invocation relies on
type Cluster interface {
	IsRunning() bool
	Balancer() balancer.Balancer
	LockManager() lock.Manager
	LockTimeout() time.Duration
	Tracker() *durability.Tracker
	Executor(kind durability.Kind) cluster.Executor
	DispatchTimeout() time.Duration
	FailureDetector() cluster.FailureDetector
	ReadPolicy() cluster.ReadPolicy
	Deactivate(ctx context.Context, id string, cause error) (bool, error)
	Degrade(ctx context.Context, id string, cause error) (bool, error)
	Telemetry() *telemetry.Telemetry
	Logger() log.Logger
}

var _ Cluster = (*cluster.Cluster)(nil)

type outcome[R any] struct {
	db    *database.Database
	value R
	err   error
}

// Invoke runs op with the given strategy.
//
// A read runs on one database. A write runs concurrently on every active
// database under the shared cluster lock, after its durability record is
// written. When some databases succeed, the failing ones are deactivated and
// the result holds the values of the others. When every database fails, the
// databases whose failure the cluster detects are deactivated and the error
// is an *errors.InvocationError whose first failure is the one of the first
// database by id.
func Invoke[T, R any](ctx context.Context, cl Cluster, strategy Strategy, resources Resources[T], op Operation[T, R], opts ...Option) (*Result[R], error) {
	if !cl.IsRunning() {
		return nil, gerrors.ErrClusterNotRunning
	}

	config := newConfig(opts...)
	if strategy == ReadFromAny {
		return read(ctx, cl, resources, op)
	}
	return write(ctx, cl, strategy, resources, op, config)
}

func read[T, R any](ctx context.Context, cl Cluster, resources Resources[T], op Operation[T, R]) (*Result[R], error) {
	for {
		db, err := cl.Balancer().Next()
		if err != nil {
			cl.Telemetry().RecordInvocation(ctx, ReadFromAny.String(), outcomeFailure)
			return nil, err
		}

		out := readFrom(ctx, cl, db, resources, op)
		if out.err == nil {
			cl.Telemetry().RecordInvocation(ctx, ReadFromAny.String(), outcomeSuccess)
			return newResult(map[string]R{db.ID(): out.value}, nil), nil
		}

		cl.Telemetry().RecordFailure(ctx, db.ID())
		if cl.FailureDetector().Failed(db, out.err) {
			if _, deactivateErr := cl.Deactivate(ctx, db.ID(), out.err); deactivateErr != nil {
				cl.Logger().Warnf("failed to deactivate database %s: %v", db.ID(), deactivateErr)
			}
		}

		// only a deactivated database is out of the balancer's reach
		if cl.ReadPolicy() != cluster.RetryNext || db.Active() || ctx.Err() != nil {
			cl.Telemetry().RecordInvocation(ctx, ReadFromAny.String(), outcomeFailure)
			return nil, gerrors.NewDatabaseError(db.ID(), out.err)
		}
		cl.Logger().Debugf("retrying the read failed on database %s", db.ID())
	}
}

// readFrom runs the operation synchronously, bracketed for the load-tracking balancers
func readFrom[T, R any](ctx context.Context, cl Cluster, db *database.Database, resources Resources[T], op Operation[T, R]) outcome[R] {
	resource, ok := resources.Get(db.ID())
	if !ok {
		return outcome[R]{db: db, err: gerrors.ErrStaleReference}
	}

	balance := cl.Balancer()
	balance.BeforeInvocation(db)
	defer balance.AfterInvocation(db)

	dctx, cancel := context.WithTimeout(ctx, cl.DispatchTimeout())
	defer cancel()
	out := call(dctx, db, resource, op)
	if out.err != nil && ctx.Err() == nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
		out.err = fmt.Errorf("%w: %w", gerrors.ErrDispatchTimeout, out.err)
	}
	return out
}

func write[T, R any](ctx context.Context, cl Cluster, strategy Strategy, resources Resources[T], op Operation[T, R], config *config) (*Result[R], error) {
	if _, ok := lock.OwnerFrom(ctx); !ok {
		ctx = lock.WithOwner(ctx, uuid.NewString())
	}

	unlock, err := acquire(ctx, cl, config.locks)
	if err != nil {
		cl.Telemetry().RecordInvocation(ctx, strategy.String(), outcomeFailure)
		return nil, err
	}
	defer unlock()

	targets := cl.Balancer().All()
	if len(targets) == 0 {
		cl.Telemetry().RecordInvocation(ctx, strategy.String(), outcomeFailure)
		return nil, gerrors.ErrNoActiveDatabase
	}

	pending, err := cl.Tracker().Begin(ctx, durability.Invocation{
		Kind:          strategy.Kind(),
		TransactionID: config.transactionID,
		Sequence:      config.sequence,
		Targets:       database.IDs(targets),
		Payload:       config.payload,
	})
	if err != nil {
		cl.Telemetry().RecordInvocation(ctx, strategy.String(), outcomeFailure)
		return nil, err
	}

	// outcomes are recorded even when the caller gave up
	recordCtx := context.WithoutCancel(ctx)
	outcomes := dispatch(ctx, cl, strategy, targets, resources, op, func(out outcome[R]) {
		_ = pending.Done(recordCtx, out.db.ID(), out.err)
	})

	values := make(map[string]R, len(targets))
	failures := make(map[string]error)
	for _, db := range targets {
		out := outcomes[db.ID()]
		if out.err != nil {
			failures[db.ID()] = out.err
			cl.Telemetry().RecordFailure(ctx, db.ID())
			continue
		}
		values[db.ID()] = out.value
	}

	if len(values) > 0 {
		for _, db := range targets {
			cause, failed := failures[db.ID()]
			if !failed {
				continue
			}
			if _, err := cl.Degrade(recordCtx, db.ID(), cause); err != nil {
				cl.Logger().Warnf("failed to deactivate database %s: %v", db.ID(), err)
			}
		}
		_ = pending.Complete(recordCtx)

		status := outcomeSuccess
		if len(failures) > 0 {
			status = outcomeDegraded
		}
		cl.Telemetry().RecordInvocation(ctx, strategy.String(), status)
		return newResult(values, failures), nil
	}

	for _, db := range targets {
		cause := failures[db.ID()]
		if !cl.FailureDetector().Failed(db, cause) {
			continue
		}
		if _, err := cl.Deactivate(recordCtx, db.ID(), cause); err != nil {
			cl.Logger().Warnf("failed to deactivate database %s: %v", db.ID(), err)
		}
	}
	_ = pending.Complete(recordCtx)

	cl.Telemetry().RecordInvocation(ctx, strategy.String(), outcomeFailure)
	return nil, gerrors.NewInvocationError(failures)
}

// dispatch runs the operation on every target with the executor of the
// strategy and waits for every outcome until the dispatch timeout elapses.
// A target that did not answer in time failed. done is called with each
// outcome as it arrives.
func dispatch[T, R any](ctx context.Context, cl Cluster, strategy Strategy, targets []*database.Database, resources Resources[T], op Operation[T, R], done func(outcome[R])) map[string]outcome[R] {
	timeout := cl.DispatchTimeout()
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan outcome[R], len(targets))
	executor := cl.Executor(strategy.Kind())
	for _, db := range targets {
		resource, ok := resources.Get(db.ID())
		if !ok {
			results <- outcome[R]{db: db, err: gerrors.ErrStaleReference}
			continue
		}
		if err := executor.Submit(dctx, func() {
			results <- call(dctx, db, resource, op)
		}); err != nil {
			results <- outcome[R]{db: db, err: err}
		}
	}

	outcomes := make(map[string]outcome[R], len(targets))
	collect := func(out outcome[R]) {
		outcomes[out.db.ID()] = out
		done(out)
	}
	for len(outcomes) < len(targets) {
		select {
		case out := <-results:
			collect(out)
			continue
		case <-dctx.Done():
		}

		// collect what arrived along with the deadline
		for drained := false; !drained; {
			select {
			case out := <-results:
				collect(out)
			default:
				drained = true
			}
		}

		cause := fmt.Errorf("%w after %s", gerrors.ErrDispatchTimeout, timeout)
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		for _, db := range targets {
			if _, ok := outcomes[db.ID()]; !ok {
				collect(outcome[R]{db: db, err: cause})
			}
		}
	}
	return outcomes
}

// call runs the operation and turns a panic into a failure
func call[T, R any](ctx context.Context, db *database.Database, resource T, op Operation[T, R]) (out outcome[R]) {
	out.db = db
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("operation panicked on database %s: %v", db.ID(), r)
		}
	}()
	out.value, out.err = op(ctx, db, resource)
	return out
}

// acquire takes the shared cluster lock then the named exclusive locks
func acquire(ctx context.Context, cl Cluster, names []string) (lock.Unlock, error) {
	lockCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, cl.LockTimeout())
		defer cancel()
	}

	manager := cl.LockManager()
	unlocks := make([]lock.Unlock, 0, len(names)+1)
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	unlock, err := manager.Lock(lockCtx, lock.Global, lock.Shared)
	if err != nil {
		return nil, err
	}
	unlocks = append(unlocks, unlock)

	for _, name := range names {
		unlock, err := manager.Lock(lockCtx, name, lock.Exclusive)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
