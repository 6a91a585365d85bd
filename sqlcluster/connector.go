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
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/tochemey/hadb/cluster"
	"github.com/tochemey/hadb/database"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/proxy"
)

// SQLConnector connects to a database with the registered database/sql
// driver of the given name, using the location of the database as data source
func SQLConnector(driverName string) proxy.ConnectFunc[*sql.DB] {
	return func(ctx context.Context, db *database.Database) (*sql.DB, error) {
		conn, err := sql.Open(driverName, db.Location())
		if err != nil {
			return nil, err
		}
		return ping(ctx, db, conn)
	}
}

// PgxConnector connects to a PostgreSQL database with pgx, using the
// location of the database as connection string
func PgxConnector() proxy.ConnectFunc[*sql.DB] {
	return func(ctx context.Context, db *database.Database) (*sql.DB, error) {
		config, err := pgx.ParseConfig(db.Location())
		if err != nil {
			return nil, fmt.Errorf("%w: database %s: %w", gerrors.ErrInvalidConfig, db.ID(), err)
		}
		return ping(ctx, db, stdlib.OpenDB(*config))
	}
}

// HealthChecker probes a database by connecting to it
func HealthChecker(connect proxy.ConnectFunc[*sql.DB]) cluster.HealthChecker {
	return cluster.HealthCheckerFunc(func(ctx context.Context, db *database.Database) error {
		conn, err := connect(ctx, db)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}

// FailureDetector detects the failures of the default detector and the
// connection failures reported by database/sql drivers
var FailureDetector cluster.FailureDetector = cluster.FailureDetectorFunc(func(db *database.Database, err error) bool {
	if cluster.DefaultFailureDetector.Failed(db, err) {
		return true
	}
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr)
})

func ping(ctx context.Context, db *database.Database, conn *sql.DB) (*sql.DB, error) {
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, gerrors.MarkUnavailable(fmt.Errorf("database %s: %w", db.ID(), err))
	}
	return conn, nil
}
