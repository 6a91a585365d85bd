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
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
)

const driverName = "hadb-memory"

func init() {
	sql.Register(driverName, memoryDriver{})
}

// store is the in-memory database behind a data source name
type store struct {
	mu        sync.Mutex
	down      bool
	failExec  bool
	committed []string
	rows      []int64
	// commits wait on the gate when set
	gate chan struct{}
}

var stores sync.Map

func storeOf(name string) *store {
	value, _ := stores.LoadOrStore(name, &store{})
	return value.(*store)
}

func (s *store) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *store) setFailExec(fail bool) {
	s.mu.Lock()
	s.failExec = fail
	s.mu.Unlock()
}

// holdCommits makes the commits wait until the returned function is called
func (s *store) holdCommits() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *store) statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.committed)
}

func (s *store) apply(statements ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return driver.ErrBadConn
	}
	s.committed = append(s.committed, statements...)
	return nil
}

func (s *store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.down:
		return driver.ErrBadConn
	case s.failExec:
		return errors.New("syntax error")
	default:
		return nil
	}
}

type memoryDriver struct{}

func (memoryDriver) Open(name string) (driver.Conn, error) {
	s := storeOf(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	return &memoryConn{store: s}, nil
}

type memoryConn struct {
	store *store
	tx    *memoryTx
}

var (
	_ driver.Pinger             = (*memoryConn)(nil)
	_ driver.ExecerContext      = (*memoryConn)(nil)
	_ driver.QueryerContext     = (*memoryConn)(nil)
	_ driver.ConnBeginTx        = (*memoryConn)(nil)
	_ driver.NamedValueChecker  = (*memoryConn)(nil)
	_ driver.SessionResetter    = (*memoryConn)(nil)
	_ driver.Validator          = (*memoryConn)(nil)
	_ driver.Rows               = (*memoryRows)(nil)
	_ driver.Tx                 = (*memoryTx)(nil)
	_ driver.Driver             = memoryDriver{}
	_ driver.Result             = driver.RowsAffected(0)
	_ driver.ConnPrepareContext = (*memoryConn)(nil)
)

func (c *memoryConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}

func (c *memoryConn) PrepareContext(context.Context, string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}

func (c *memoryConn) Close() error {
	return nil
}

func (c *memoryConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *memoryConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := c.store.check(); errors.Is(err, driver.ErrBadConn) {
		return nil, err
	}
	c.tx = &memoryTx{conn: c}
	return c.tx, nil
}

func (c *memoryConn) Ping(context.Context) error {
	return c.store.check()
}

func (c *memoryConn) ResetSession(context.Context) error {
	return nil
}

func (c *memoryConn) IsValid() bool {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return !c.store.down
}

func (c *memoryConn) CheckNamedValue(*driver.NamedValue) error {
	return nil
}

func (c *memoryConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if err := c.store.check(); err != nil {
		return nil, err
	}
	if c.tx != nil {
		c.tx.pending = append(c.tx.pending, query)
		return driver.RowsAffected(1), nil
	}
	if err := c.store.apply(query); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c *memoryConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	if err := c.store.check(); err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	rows := slices.Clone(c.store.rows)
	c.store.mu.Unlock()
	return &memoryRows{values: rows}, nil
}

type memoryTx struct {
	conn    *memoryConn
	pending []string
}

func (t *memoryTx) Commit() error {
	t.conn.store.mu.Lock()
	gate := t.conn.store.gate
	t.conn.store.mu.Unlock()
	if gate != nil {
		<-gate
	}
	t.conn.tx = nil
	return t.conn.store.apply(t.pending...)
}

func (t *memoryTx) Rollback() error {
	t.conn.tx = nil
	return nil
}

type memoryRows struct {
	values []int64
	index  int
}

func (r *memoryRows) Columns() []string {
	return []string{"value"}
}

func (r *memoryRows) Close() error {
	return nil
}

func (r *memoryRows) Next(dest []driver.Value) error {
	if r.index >= len(r.values) {
		return io.EOF
	}
	dest[0] = r.values[r.index]
	r.index++
	return nil
}
