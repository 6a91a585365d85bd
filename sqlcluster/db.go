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

// Package sqlcluster exposes a database cluster through the database/sql
// vocabulary: one logical DB backed by a *sql.DB per active database.
package sqlcluster

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tochemey/hadb/database"
	"github.com/tochemey/hadb/invoker"
	"github.com/tochemey/hadb/lock"
	"github.com/tochemey/hadb/proxy"
)

// DB is a logical database handle. Writes run on every active database and
// reads on one of them.
type DB struct {
	root *proxy.Root[*sql.DB]
}

// Open connects to every active database of the cluster
func Open(ctx context.Context, cl proxy.Cluster, connect proxy.ConnectFunc[*sql.DB]) (*DB, error) {
	root, err := proxy.Open(ctx, cl, connect)
	if err != nil {
		return nil, err
	}
	return &DB{root: root}, nil
}

// Databases returns the databases the handle is connected to
func (x *DB) Databases() []string {
	return x.root.Databases()
}

// ExecContext executes a statement on every active database and returns the
// result of the first one by id
func (x *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt := statement{Op: opExec, Query: query, Args: args}
	result, err := invoker.Invoke(ctx, x.root.Cluster(), invoker.WriteToAll, x.root,
		invoker.Operation[*sql.DB, sql.Result](func(ctx context.Context, _ *database.Database, conn *sql.DB) (sql.Result, error) {
			return conn.ExecContext(ctx, query, args...)
		}), invoker.WithPayload(stmt.encode()))
	if err != nil {
		return nil, err
	}
	return result.Value(), nil
}

// QueryContext runs a query on one active database. Rows are consumed by
// scan before the invocation completes.
func (x *DB) QueryContext(ctx context.Context, scan func(rows *sql.Rows) error, query string, args ...any) error {
	return queryContext[*sql.DB](ctx, x.root.Cluster(), x.root, scan, query, args...)
}

// QueryRowContext returns a row whose query runs on one active database when scanned
func (x *DB) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	return &Row{ctx: ctx, cluster: x.root.Cluster(), resources: x.root, query: query, args: args}
}

// BeginTx starts a transaction on every active database.
// The transaction holds the cluster lock in shared mode until it ends, so no
// database is activated while it runs.
func (x *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	cl := x.root.Cluster()
	id := uuid.NewString()
	ctx = lock.WithOwner(ctx, id)

	lockCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, cl.LockTimeout())
		defer cancel()
	}
	unlock, err := cl.LockManager().Lock(lockCtx, lock.Global, lock.Shared)
	if err != nil {
		return nil, err
	}

	// database/sql rolls a transaction back once its context is done
	txCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stmt := statement{Op: opBegin}
	child, err := proxy.Derive(ctx, x.root, invoker.TransactionalWrite,
		invoker.Operation[*sql.DB, *txHandle](func(_ context.Context, _ *database.Database, conn *sql.DB) (*txHandle, error) {
			tx, err := conn.BeginTx(txCtx, opts)
			if err != nil {
				return nil, err
			}
			return &txHandle{tx}, nil
		}), invoker.WithTransaction(id, 0), invoker.WithPayload(stmt.encode()))
	if err != nil {
		cancel()
		unlock()
		_ = cl.Tracker().Abandon(context.WithoutCancel(ctx), id)
		return nil, err
	}

	return &Tx{
		id:      id,
		cluster: cl,
		child:   child,
		unlock:  unlock,
		cancel:  cancel,
	}, nil
}

// Close closes every connection and open transaction
func (x *DB) Close() error {
	return x.root.Close()
}

// Row is the result of QueryRowContext
type Row struct {
	ctx       context.Context
	cluster   invoker.Cluster
	resources invoker.Resources[*sql.DB]
	query     string
	args      []any
}

// Scan runs the query and copies the columns of the first row into dest.
// The error wraps sql.ErrNoRows when the query selects no row.
func (r *Row) Scan(dest ...any) error {
	_, err := invoker.Invoke(r.ctx, r.cluster, invoker.ReadFromAny, r.resources,
		invoker.Operation[*sql.DB, struct{}](func(ctx context.Context, _ *database.Database, conn *sql.DB) (struct{}, error) {
			return struct{}{}, conn.QueryRowContext(ctx, r.query, r.args...).Scan(dest...)
		}))
	return err
}

func queryContext[T interface{ QueryContext(context.Context, string, ...any) (*sql.Rows, error) }](ctx context.Context, cl invoker.Cluster, resources invoker.Resources[T], scan func(rows *sql.Rows) error, query string, args ...any) error {
	_, err := invoker.Invoke(ctx, cl, invoker.ReadFromAny, resources,
		invoker.Operation[T, struct{}](func(ctx context.Context, _ *database.Database, conn T) (struct{}, error) {
			rows, err := conn.QueryContext(ctx, query, args...)
			if err != nil {
				return struct{}{}, err
			}
			defer rows.Close()
			if err := scan(rows); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, rows.Err()
		}))
	return err
}
