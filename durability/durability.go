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

// Package durability keeps the write-ahead records of in-flight invocations
// so that a restarted cluster can tell which databases missed a write and
// reconcile them before they are activated again.
package durability

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	gerrors "github.com/tochemey/hadb/errors"
)

// Phase is the progress of an invocation on one database
type Phase int

const (
	// Invoking is recorded before the invocation is dispatched
	Invoking Phase = iota
	// Invoked is recorded once the database completed the invocation
	Invoked
	// Failed is recorded when the database failed the invocation
	Failed
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case Invoking:
		return "invoking"
	case Invoked:
		return "invoked"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Kind classifies the tracked invocations
type Kind int

const (
	// NonTransactional is a write outside of any transaction
	NonTransactional Kind = iota
	// Transactional is a statement executed inside a transaction
	Transactional
	// Boundary is a transaction commit or rollback
	Boundary
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case NonTransactional:
		return "non-transactional"
	case Transactional:
		return "transactional"
	case Boundary:
		return "boundary"
	default:
		return "unknown"
	}
}

// Durability is the granularity of the bookkeeping
type Durability int

const (
	// None tracks nothing. A crash leaves nothing to reconcile.
	None Durability = iota
	// Coarse tracks the writes outside of transactions and the transaction
	// boundaries. A database that missed part of a transaction is resynchronized.
	Coarse
	// Fine also tracks the statements within transactions, which lets a
	// database that missed a transaction replay it
	Fine
)

// String returns the durability name
func (d Durability) String() string {
	switch d {
	case None:
		return "none"
	case Coarse:
		return "coarse"
	case Fine:
		return "fine"
	default:
		return "unknown"
	}
}

// Track states whether invocations of the given kind are recorded
func (d Durability) Track(kind Kind) bool {
	switch d {
	case Coarse:
		return kind == NonTransactional || kind == Boundary
	case Fine:
		return true
	default:
		return false
	}
}

// ParseDurability returns the Durability with the given name
func ParseDurability(name string) (Durability, error) {
	for _, durability := range []Durability{None, Coarse, Fine} {
		if durability.String() == name {
			return durability, nil
		}
	}
	return None, fmt.Errorf("%w: unknown durability %q", gerrors.ErrInvalidConfig, name)
}

// Record is the write-ahead entry of one invocation
type Record struct {
	ID            string           `msgpack:"id"`
	TransactionID string           `msgpack:"transaction_id"`
	Sequence      uint64           `msgpack:"sequence"`
	Kind          Kind             `msgpack:"kind"`
	Targets       []string         `msgpack:"targets"`
	Outcomes      map[string]Phase `msgpack:"outcomes"`
	Payload       []byte           `msgpack:"payload"`
	CreatedAt     time.Time        `msgpack:"created_at"`
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	clone := *r
	clone.Targets = slices.Clone(r.Targets)
	clone.Outcomes = maps.Clone(r.Outcomes)
	clone.Payload = slices.Clone(r.Payload)
	return &clone
}

// Invoked returns the targets that completed the invocation
func (r *Record) Invoked() []string {
	var ids []string
	for _, id := range r.Targets {
		if phase, ok := r.Outcomes[id]; ok && phase == Invoked {
			ids = append(ids, id)
		}
	}
	return ids
}

// Lagging returns the targets that did not complete the invocation while at
// least one other target did. Identifiers outside Targets are never lagging.
func (r *Record) Lagging() []string {
	if len(r.Invoked()) == 0 {
		return nil
	}
	var ids []string
	for _, id := range r.Targets {
		if phase, ok := r.Outcomes[id]; !ok || phase != Invoked {
			ids = append(ids, id)
		}
	}
	return ids
}

// Log persists the records
type Log interface {
	// Open prepares the log for use
	Open(ctx context.Context) error
	// Close releases the log resources. Records survive a Close.
	Close() error
	// Create writes a new record
	Create(ctx context.Context, record *Record) error
	// Update sets the phase of one database of a record
	Update(ctx context.Context, id, database string, phase Phase) error
	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteTransaction removes every record of the given transaction
	DeleteTransaction(ctx context.Context, transactionID string) error
	// Records returns every record, oldest first
	Records(ctx context.Context) ([]*Record, error)
}

func sortRecords(records []*Record) {
	slices.SortStableFunc(records, func(a, b *Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.TransactionID == b.TransactionID && a.Sequence != b.Sequence {
			if a.Sequence < b.Sequence {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

func contextErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
