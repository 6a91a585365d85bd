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

package invoker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tochemey/hadb/balancer"
	"github.com/tochemey/hadb/cluster"
	"github.com/tochemey/hadb/database"
	"github.com/tochemey/hadb/durability"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/log"
)

// store is the resource of a database in these tests
type store struct {
	mu     sync.Mutex
	id     string
	writes []string
	fail   *atomic.Bool
}

func newStore(id string) *store {
	return &store{id: id, fail: atomic.NewBool(false)}
}

func (s *store) write(value string) (string, error) {
	if s.fail.Load() {
		return "", gerrors.MarkUnavailable(errors.New("connection reset"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, value)
	return value, nil
}

type recorder struct {
	mu     sync.Mutex
	events []cluster.Event
}

func (r *recorder) OnEvent(event cluster.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) count(eventType cluster.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

func setup(t *testing.T, ids []string, opts ...cluster.Option) (*cluster.Cluster, ResourceMap[*store], *recorder) {
	t.Helper()
	dbs := make([]*database.Database, len(ids))
	resources := make(ResourceMap[*store], len(ids))
	for i, id := range ids {
		dbs[i] = database.New(id)
		resources[id] = newStore(id)
	}

	opts = append([]cluster.Option{cluster.WithLogger(log.DiscardLogger)}, opts...)
	cl, err := cluster.New("test", dbs, opts...)
	require.NoError(t, err)
	require.NoError(t, cl.Start(context.Background()))
	t.Cleanup(func() { _ = cl.Stop(context.Background()) })

	events := new(recorder)
	cl.AddListener(events)
	return cl, resources, events
}

func writeOp(value string) Operation[*store, string] {
	return func(_ context.Context, _ *database.Database, resource *store) (string, error) {
		return resource.write(value)
	}
}

func TestWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("A failing database is deactivated while the others keep serving", func(t *testing.T) {
		cl, resources, events := setup(t, []string{"A", "B"})

		result, err := Invoke(ctx, cl, WriteToAll, resources, writeOp("X"))
		require.NoError(t, err)
		assert.Equal(t, "X", result.Value())
		assert.Equal(t, []string{"A", "B"}, result.Databases())
		assert.Equal(t, []string{"A", "B"}, database.IDs(cl.Balancer().All()))

		resources["B"].fail.Store(true)
		result, err = Invoke(ctx, cl, WriteToAll, resources, writeOp("Y"))
		require.NoError(t, err)
		assert.Equal(t, "Y", result.Value())
		assert.Equal(t, []string{"A"}, result.Databases())
		require.Contains(t, result.Failures(), "B")

		assert.Equal(t, []string{"A"}, database.IDs(cl.Balancer().All()))
		assert.Equal(t, 1, events.count(cluster.Deactivated))
		assert.Equal(t, 1, events.count(cluster.Degraded))

		for range 10 {
			db, err := cl.Balancer().Next()
			require.NoError(t, err)
			assert.Equal(t, "A", db.ID())
		}
		assert.Equal(t, []string{"X", "Y"}, resources["A"].writes)
		assert.Equal(t, []string{"X"}, resources["B"].writes)
	})
	t.Run("With N databases and one failure N-1 databases stay active", func(t *testing.T) {
		cl, resources, events := setup(t, []string{"a", "b", "c", "d"})
		resources["c"].fail.Store(true)

		_, err := Invoke(ctx, cl, WriteToAll, resources, writeOp("X"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "d"}, database.IDs(cl.Balancer().All()))
		assert.Equal(t, 1, events.count(cluster.Deactivated))
	})
	t.Run("When every database fails the operation the active set is unchanged", func(t *testing.T) {
		cl, resources, events := setup(t, []string{"a", "b"})
		op := func(_ context.Context, db *database.Database, _ *store) (string, error) {
			return "", errors.New("constraint violation on " + db.ID())
		}

		result, err := Invoke(ctx, cl, WriteToAll, resources, Operation[*store, string](op))
		require.Nil(t, result)
		var invocationErr *gerrors.InvocationError
		require.ErrorAs(t, err, &invocationErr)
		assert.Equal(t, []string{"a", "b"}, invocationErr.Databases())
		assert.EqualError(t, invocationErr.First(), "constraint violation on a")

		assert.Equal(t, 2, cl.Balancer().Len())
		assert.Zero(t, events.count(cluster.Deactivated))
	})
	t.Run("When every database is unavailable they are all deactivated", func(t *testing.T) {
		cl, resources, events := setup(t, []string{"a", "b"})
		resources["a"].fail.Store(true)
		resources["b"].fail.Store(true)

		_, err := Invoke(ctx, cl, WriteToAll, resources, writeOp("X"))
		require.ErrorIs(t, err, gerrors.ErrDatabaseUnavailable)
		assert.Zero(t, cl.Balancer().Len())
		assert.Equal(t, 2, events.count(cluster.Deactivated))
		assert.Zero(t, events.count(cluster.Degraded))

		_, err = Invoke(ctx, cl, WriteToAll, resources, writeOp("Y"))
		require.ErrorIs(t, err, gerrors.ErrNoActiveDatabase)
	})
	t.Run("A database that does not answer in time is deactivated", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"}, cluster.WithDispatchTimeout(100*time.Millisecond))
		release := make(chan struct{})
		defer close(release)
		op := func(_ context.Context, db *database.Database, resource *store) (string, error) {
			if db.ID() == "b" {
				<-release
			}
			return resource.write("X")
		}

		result, err := Invoke(ctx, cl, WriteToAll, resources, Operation[*store, string](op))
		require.NoError(t, err)
		require.ErrorIs(t, result.Failures()["b"], gerrors.ErrDispatchTimeout)
		assert.Equal(t, []string{"a"}, database.IDs(cl.Balancer().All()))
	})
	t.Run("A stale resource fails the database", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"})
		delete(resources, "b")

		result, err := Invoke(ctx, cl, WriteToAll, resources, writeOp("X"))
		require.NoError(t, err)
		require.ErrorIs(t, result.Failures()["b"], gerrors.ErrStaleReference)
		assert.Equal(t, []string{"a"}, database.IDs(cl.Balancer().All()))
	})
	t.Run("A panicking operation fails the database", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"})
		op := func(_ context.Context, db *database.Database, resource *store) (string, error) {
			if db.ID() == "a" {
				panic("boom")
			}
			return resource.write("X")
		}

		result, err := Invoke(ctx, cl, WriteToAll, resources, Operation[*store, string](op))
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, result.Databases())
		assert.Equal(t, []string{"b"}, database.IDs(cl.Balancer().All()))
	})
	t.Run("With a stopped cluster", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a"})
		require.NoError(t, cl.Stop(ctx))
		_, err := Invoke(ctx, cl, WriteToAll, resources, writeOp("X"))
		require.ErrorIs(t, err, gerrors.ErrClusterNotRunning)
	})
	t.Run("Named locks serialize the writes", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"})
		running := atomic.NewInt32(0)
		overlaps := atomic.NewInt32(0)
		op := func(_ context.Context, db *database.Database, resource *store) (string, error) {
			if db.ID() == "a" {
				if running.Inc() > 1 {
					overlaps.Inc()
				}
				time.Sleep(5 * time.Millisecond)
				running.Dec()
			}
			return resource.write("X")
		}

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := Invoke(ctx, cl, WriteToAll, resources, Operation[*store, string](op), WithLocks("sequence"))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Zero(t, overlaps.Load())
	})
}

func TestDurability(t *testing.T) {
	ctx := context.Background()

	t.Run("The records of a transaction are written before dispatch and deleted with its boundary", func(t *testing.T) {
		records := durability.NewMemoryLog()
		cl, resources, _ := setup(t, []string{"a", "b"},
			cluster.WithDurability(durability.Fine),
			cluster.WithDurabilityLog(records))

		op := func(ctx context.Context, _ *database.Database, resource *store) (string, error) {
			inflight, err := records.Records(ctx)
			if err != nil {
				return "", err
			}
			if len(inflight) != 1 || string(inflight[0].Payload) != "INSERT" {
				return "", errors.New("missing write-ahead record")
			}
			return resource.write("X")
		}

		_, err := Invoke(ctx, cl, TransactionalWrite, resources, Operation[*store, string](op),
			WithTransaction("tx1", 1), WithPayload([]byte("INSERT")))
		require.NoError(t, err)
		assert.Equal(t, 2, cl.Balancer().Len())

		// the statement is kept until the transaction ends
		left, err := records.Records(ctx)
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, map[string]durability.Phase{"a": durability.Invoked, "b": durability.Invoked}, left[0].Outcomes)

		_, err = Invoke(ctx, cl, TransactionBoundary, resources, writeOp("COMMIT"),
			WithTransaction("tx1", 2), WithPayload([]byte("COMMIT")))
		require.NoError(t, err)

		left, err = records.Records(ctx)
		require.NoError(t, err)
		assert.Empty(t, left)
	})
	t.Run("Each outcome is recorded as soon as its database completes", func(t *testing.T) {
		records := durability.NewMemoryLog()
		cl, resources, _ := setup(t, []string{"a", "b"},
			cluster.WithDurability(durability.Fine),
			cluster.WithDurabilityLog(records))

		gate := make(chan struct{})
		t.Cleanup(func() {
			select {
			case <-gate:
			default:
				close(gate)
			}
		})
		op := func(_ context.Context, db *database.Database, resource *store) (string, error) {
			if db.ID() == "b" {
				<-gate
			}
			return resource.write("X")
		}

		done := make(chan error, 1)
		go func() {
			_, err := Invoke(ctx, cl, TransactionalWrite, resources, Operation[*store, string](op), WithTransaction("tx1", 1))
			done <- err
		}()

		require.Eventually(t, func() bool {
			inflight, err := records.Records(ctx)
			return err == nil && len(inflight) == 1 && inflight[0].Outcomes["a"] == durability.Invoked
		}, time.Second, 10*time.Millisecond)

		inflight, err := records.Records(ctx)
		require.NoError(t, err)
		assert.Equal(t, durability.Invoking, inflight[0].Outcomes["b"])
		assert.Equal(t, []string{"b"}, inflight[0].Lagging())

		close(gate)
		require.NoError(t, <-done)
	})
	t.Run("A write outside of a transaction is recorded while in flight", func(t *testing.T) {
		for _, value := range []durability.Durability{durability.Coarse, durability.Fine} {
			records := durability.NewMemoryLog()
			cl, resources, _ := setup(t, []string{"a", "b"},
				cluster.WithDurability(value),
				cluster.WithDurabilityLog(records))

			gate := make(chan struct{})
			op := func(_ context.Context, db *database.Database, resource *store) (string, error) {
				if db.ID() == "b" {
					<-gate
				}
				return resource.write("X")
			}

			done := make(chan error, 1)
			go func() {
				_, err := Invoke(ctx, cl, WriteToAll, resources, Operation[*store, string](op), WithPayload([]byte("UPDATE")))
				done <- err
			}()

			require.Eventually(t, func() bool {
				inflight, err := records.Records(ctx)
				return err == nil && len(inflight) == 1 && inflight[0].Outcomes["a"] == durability.Invoked
			}, time.Second, 10*time.Millisecond, "durability %s", value)

			inflight, err := records.Records(ctx)
			require.NoError(t, err)
			assert.Equal(t, durability.NonTransactional, inflight[0].Kind)
			assert.Equal(t, []byte("UPDATE"), inflight[0].Payload)

			close(gate)
			require.NoError(t, <-done)

			left, err := records.Records(ctx)
			require.NoError(t, err)
			assert.Empty(t, left)
		}
	})
	t.Run("A write is aborted when its record cannot be written", func(t *testing.T) {
		records := durability.NewMemoryLog()
		cl, resources, _ := setup(t, []string{"a", "b"}, cluster.WithDurabilityLog(records))
		require.NoError(t, records.Close())

		called := atomic.NewBool(false)
		op := func(_ context.Context, _ *database.Database, resource *store) (string, error) {
			called.Store(true)
			return resource.write("COMMIT")
		}

		_, err := Invoke(ctx, cl, TransactionBoundary, resources, Operation[*store, string](op))
		require.Error(t, err)
		assert.False(t, called.Load())
		assert.Equal(t, 2, cl.Balancer().Len())
	})
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	readOp := func(_ context.Context, db *database.Database, resource *store) (string, error) {
		if resource.fail.Load() {
			return "", gerrors.MarkUnavailable(errors.New("connection reset"))
		}
		return db.ID(), nil
	}

	t.Run("A read runs on one database", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"})
		result, err := Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, string](readOp))
		require.NoError(t, err)
		require.Len(t, result.Databases(), 1)
		assert.Equal(t, result.Databases()[0], result.Value())
	})
	t.Run("A read is bracketed for the load balancer", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"},
			cluster.WithBalancer(func() balancer.Balancer { return balancer.NewLoad() }))
		load := cl.Balancer().(*balancer.Load)

		op := func(_ context.Context, db *database.Database, _ *store) (int, error) {
			// the read in flight makes the other database the least loaded one
			next, err := load.Next()
			if err != nil {
				return 0, err
			}
			if next.ID() == db.ID() {
				return 0, errors.New("in-flight read not tracked")
			}
			return 1, nil
		}
		for range 4 {
			_, err := Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, int](op))
			require.NoError(t, err)
		}
	})
	t.Run("A failed read deactivates the database and surfaces the failure", func(t *testing.T) {
		cl, resources, events := setup(t, []string{"a"})
		resources["a"].fail.Store(true)

		_, err := Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, string](readOp))
		var dbErr *gerrors.DatabaseError
		require.ErrorAs(t, err, &dbErr)
		assert.Equal(t, "a", dbErr.Database)
		assert.Zero(t, cl.Balancer().Len())
		assert.Equal(t, 1, events.count(cluster.Deactivated))

		_, err = Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, string](readOp))
		require.ErrorIs(t, err, gerrors.ErrNoActiveDatabase)
	})
	t.Run("A read failing with an error the failure detector ignores keeps the database active", func(t *testing.T) {
		cl, resources, events := setup(t, []string{"a"})
		op := func(context.Context, *database.Database, *store) (string, error) {
			return "", errors.New("syntax error")
		}
		_, err := Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, string](op))
		require.EqualError(t, err, "database a: syntax error")
		assert.Equal(t, 1, cl.Balancer().Len())
		assert.Zero(t, events.count(cluster.Deactivated))
	})
	t.Run("A read failing with an error the failure detector flags deactivates the database", func(t *testing.T) {
		detector := cluster.FailureDetectorFunc(func(*database.Database, error) bool { return true })
		cl, resources, events := setup(t, []string{"a", "b"}, cluster.WithFailureDetector(detector),
			cluster.WithBalancer(func() balancer.Balancer { return balancer.NewSimple() }))
		op := func(context.Context, *database.Database, *store) (string, error) {
			return "", errors.New("syntax error")
		}
		_, err := Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, string](op))
		require.EqualError(t, err, "database a: syntax error")
		assert.Equal(t, []string{"b"}, database.IDs(cl.Balancer().All()))
		assert.Equal(t, 1, events.count(cluster.Deactivated))
	})
	t.Run("With the retry next policy the read moves to another database", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"}, cluster.WithReadPolicy(cluster.RetryNext),
			cluster.WithBalancer(func() balancer.Balancer { return balancer.NewSimple() }))
		resources["a"].fail.Store(true)

		result, err := Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, string](readOp))
		require.NoError(t, err)
		assert.Equal(t, "b", result.Value())
		assert.Equal(t, []string{"b"}, database.IDs(cl.Balancer().All()))
	})
	t.Run("With the single attempt policy the read is not retried", func(t *testing.T) {
		cl, resources, _ := setup(t, []string{"a", "b"},
			cluster.WithBalancer(func() balancer.Balancer { return balancer.NewSimple() }))
		resources["a"].fail.Store(true)

		_, err := Invoke(ctx, cl, ReadFromAny, resources, Operation[*store, string](readOp))
		require.ErrorIs(t, err, gerrors.ErrDatabaseUnavailable)
		assert.Equal(t, []string{"b"}, database.IDs(cl.Balancer().All()))
	})
}
