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

package sqlcluster

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/hadb/database"
	"github.com/tochemey/hadb/invoker"
	"github.com/tochemey/hadb/lock"
	"github.com/tochemey/hadb/proxy"
)

// txHandle rolls back the transaction of a database pruned from the active set
type txHandle struct {
	*sql.Tx
}

func (h *txHandle) Close() error {
	if err := h.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Tx is a transaction open on every active database.
// Statements are numbered so that a database that missed some of them can
// replay them in order.
type Tx struct {
	id       string
	cluster  proxy.Cluster
	child    *proxy.Child[*txHandle]
	sequence atomic.Uint64
	unlock   lock.Unlock
	cancel   context.CancelFunc
	once     sync.Once
}

// ID returns the transaction identifier recorded in the durability log
func (x *Tx) ID() string {
	return x.id
}

// Databases returns the databases the transaction is open on
func (x *Tx) Databases() []string {
	return slices.Sorted(maps.Keys(x.child.Resources()))
}

// ExecContext executes a statement within the transaction on every database
func (x *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt := statement{Op: opExec, Query: query, Args: args}
	result, err := invoker.Invoke(lock.WithOwner(ctx, x.id), x.cluster, invoker.TransactionalWrite, x.child,
		invoker.Operation[*txHandle, sql.Result](func(ctx context.Context, _ *database.Database, tx *txHandle) (sql.Result, error) {
			return tx.ExecContext(ctx, query, args...)
		}),
		invoker.WithTransaction(x.id, x.sequence.Inc()),
		invoker.WithPayload(stmt.encode()))
	if err != nil {
		return nil, err
	}
	return result.Value(), nil
}

// QueryContext runs a query within the transaction on one database
func (x *Tx) QueryContext(ctx context.Context, scan func(rows *sql.Rows) error, query string, args ...any) error {
	return queryContext[*txHandle](ctx, x.cluster, x.child, scan, query, args...)
}

// Commit commits the transaction on every database
func (x *Tx) Commit(ctx context.Context) error {
	return x.end(ctx, opCommit, (*sql.Tx).Commit)
}

// Rollback rolls the transaction back on every database
func (x *Tx) Rollback(ctx context.Context) error {
	return x.end(ctx, opRollback, (*sql.Tx).Rollback)
}

func (x *Tx) end(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	done := true
	x.once.Do(func() { done = false })
	if done {
		return sql.ErrTxDone
	}

	defer func() {
		x.child.Detach()
		x.cancel()
		x.unlock()
	}()

	stmt := statement{Op: op}
	_, err := invoker.Invoke(lock.WithOwner(ctx, x.id), x.cluster, invoker.TransactionBoundary, x.child,
		invoker.Operation[*txHandle, struct{}](func(_ context.Context, _ *database.Database, tx *txHandle) (struct{}, error) {
			return struct{}{}, fn(tx.Tx)
		}),
		invoker.WithTransaction(x.id, x.sequence.Inc()),
		invoker.WithPayload(stmt.encode()))
	return err
}
