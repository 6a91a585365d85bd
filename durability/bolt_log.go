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

package durability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/codec"
)

const boltFileMode os.FileMode = 0o600

var boltTimeout = 5 * time.Second

// BoltLog persists the records in a bbolt file, one bucket per cluster.
// The file outlives the process so that records left by a crash are found on
// the next start.
type BoltLog struct {
	path   string
	bucket []byte

	mu     sync.Mutex
	db     *bbolt.DB
	closed *atomic.Bool
}

var _ Log = (*BoltLog)(nil)

// NewBoltLog creates a BoltLog storing the records of the given cluster in the file at path
func NewBoltLog(path, cluster string) *BoltLog {
	return &BoltLog{
		path:   path,
		bucket: []byte("durability." + cluster),
		closed: atomic.NewBool(true),
	}
}

// Open opens (or creates) the bbolt file
func (b *BoltLog) Open(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed.Load() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("durability: unable to create the log directory: %w", err)
	}

	db, err := bbolt.Open(b.path, boltFileMode, &bbolt.Options{Timeout: boltTimeout})
	if err != nil {
		return fmt.Errorf("durability: opening boltdb: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(b.bucket)
		return e
	}); err != nil {
		_ = db.Close()
		return fmt.Errorf("durability: initializing boltdb bucket: %w", err)
	}

	b.db = db
	b.closed.Store(false)
	return nil
}

// Close releases the bbolt handle. The file is kept.
func (b *BoltLog) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

// Create writes a new record
func (b *BoltLog) Create(ctx context.Context, record *Record) error {
	if err := b.ensureOpen(ctx); err != nil {
		return err
	}

	bytea, err := codec.Encode(record)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(record.ID), bytea)
	})
}

// Update sets the phase of one database of a record
func (b *BoltLog) Update(ctx context.Context, id, database string, phase Phase) error {
	if err := b.ensureOpen(ctx); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}

		raw := bucket.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", gerrors.ErrRecordNotFound, id)
		}

		record := new(Record)
		if err := codec.Decode(raw, record); err != nil {
			return err
		}
		if record.Outcomes == nil {
			record.Outcomes = make(map[string]Phase)
		}
		record.Outcomes[database] = phase

		bytea, err := codec.Encode(record)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), bytea)
	})
}

// Delete removes a record
func (b *BoltLog) Delete(ctx context.Context, id string) error {
	if err := b.ensureOpen(ctx); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(id))
	})
}

// DeleteTransaction removes every record of the given transaction
func (b *BoltLog) DeleteTransaction(ctx context.Context, transactionID string) error {
	if err := b.ensureOpen(ctx); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}

		// keys are collected first since a bucket is not modified while iterated
		var keys [][]byte
		if err := bucket.ForEach(func(key, value []byte) error {
			record := new(Record)
			if err := codec.Decode(value, record); err != nil {
				return err
			}
			if record.TransactionID == transactionID {
				keys = append(keys, slices.Clone(key))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, key := range keys {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Records returns every record, oldest first
func (b *BoltLog) Records(ctx context.Context) ([]*Record, error) {
	if err := b.ensureOpen(ctx); err != nil {
		return nil, err
	}

	var records []*Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(_, value []byte) error {
			record := new(Record)
			if err := codec.Decode(value, record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortRecords(records)
	return records, nil
}

func (b *BoltLog) bucketOf(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket(b.bucket)
	if bucket == nil {
		return nil, fmt.Errorf("durability: bucket %q missing", b.bucket)
	}
	return bucket, nil
}

func (b *BoltLog) ensureOpen(ctx context.Context) error {
	if b.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return contextErr(ctx)
}
