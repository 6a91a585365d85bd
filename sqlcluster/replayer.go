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
	"fmt"

	"go.uber.org/multierr"

	"github.com/tochemey/hadb/database"
	"github.com/tochemey/hadb/durability"
	"github.com/tochemey/hadb/proxy"
)

var errIncompleteTransaction = errors.New("transaction records are incomplete")

// Replayer re-executes recorded statements on a database that missed them.
// Replaying a transaction requires its begin record, which only fine
// durability keeps; other records fall back to a full synchronization.
func Replayer(connect proxy.ConnectFunc[*sql.DB]) durability.Replayer {
	return durability.ReplayerFunc(func(ctx context.Context, target *database.Database, records []*durability.Record) (err error) {
		conn, err := connect(ctx, target)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, conn.Close())
		}()

		var tx *sql.Tx
		defer func() {
			// a transaction without boundary never committed
			if tx != nil {
				err = multierr.Append(err, tx.Rollback())
			}
		}()

		for _, record := range records {
			stmt, err := decodeStatement(record.Payload)
			if err != nil {
				return err
			}

			switch stmt.Op {
			case opBegin:
				if tx != nil {
					if err := tx.Rollback(); err != nil {
						return err
					}
				}
				if tx, err = conn.BeginTx(ctx, nil); err != nil {
					return err
				}
			case opExec:
				if record.TransactionID == "" {
					_, err = conn.ExecContext(ctx, stmt.Query, stmt.Args...)
				} else if tx == nil {
					err = errIncompleteTransaction
				} else {
					_, err = tx.ExecContext(ctx, stmt.Query, stmt.Args...)
				}
				if err != nil {
					return fmt.Errorf("failed to replay record %s: %w", record.ID, err)
				}
			case opCommit, opRollback:
				if tx == nil {
					return errIncompleteTransaction
				}
				end := tx.Commit
				if stmt.Op == opRollback {
					end = tx.Rollback
				}
				tx = nil
				if err := end(); err != nil {
					return fmt.Errorf("failed to replay record %s: %w", record.ID, err)
				}
			default:
				return fmt.Errorf("failed to replay record %s: unknown operation %q", record.ID, stmt.Op)
			}
		}
		return nil
	})
}
