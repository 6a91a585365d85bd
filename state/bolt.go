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

package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/codec"
)

const boltFileMode os.FileMode = 0o600

var boltBucket = []byte("state")

// Bolt persists the active set of a cluster in a bbolt file
type Bolt struct {
	path string
	key  []byte

	mu     sync.Mutex
	db     *bbolt.DB
	closed *atomic.Bool
}

var _ Manager = (*Bolt)(nil)

// NewBolt creates a Bolt state manager storing the active set of cluster in the file at path
func NewBolt(path, cluster string) *Bolt {
	return &Bolt{
		path:   path,
		key:    []byte(cluster),
		closed: atomic.NewBool(true),
	}
}

// Start opens the bbolt file
func (b *Bolt) Start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed.Load() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("state: unable to create the state directory: %w", err)
	}

	db, err := bbolt.Open(b.path, boltFileMode, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("state: opening boltdb: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(boltBucket)
		return e
	}); err != nil {
		_ = db.Close()
		return fmt.Errorf("state: initializing boltdb bucket: %w", err)
	}

	b.db = db
	b.closed.Store(false)
	return nil
}

// Stop closes the bbolt file
func (b *Bolt) Stop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

// Load returns the persisted active set
func (b *Bolt) Load(context.Context) ([]string, error) {
	if b.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}

	var ids []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get(b.key)
		if raw == nil {
			return gerrors.ErrNoState
		}
		return codec.Decode(raw, &ids)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Store replaces the persisted active set
func (b *Bolt) Store(_ context.Context, ids []string) error {
	if b.closed.Load() {
		return gerrors.ErrStoreClosed
	}

	bytea, err := codec.Encode(normalize(ids))
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(b.key, bytea)
	})
}
