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
	"sync"

	"go.uber.org/atomic"

	gerrors "github.com/tochemey/hadb/errors"
)

// MemoryLog keeps the records in memory. Records do not survive the process,
// which makes it suitable for tests and for clusters that only need the
// bookkeeping while running.
type MemoryLog struct {
	mu      sync.RWMutex
	records map[string]*Record
	closed  *atomic.Bool
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog creates a MemoryLog
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		records: make(map[string]*Record),
		closed:  atomic.NewBool(false),
	}
}

// Open marks the log usable
func (m *MemoryLog) Open(context.Context) error {
	m.closed.Store(false)
	return nil
}

// Close marks the log closed. Records are kept.
func (m *MemoryLog) Close() error {
	m.closed.Store(true)
	return nil
}

// Create writes a new record
func (m *MemoryLog) Create(ctx context.Context, record *Record) error {
	if err := m.ensureOpen(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.records[record.ID] = record.Clone()
	m.mu.Unlock()
	return nil
}

// Update sets the phase of one database of a record
func (m *MemoryLog) Update(ctx context.Context, id, database string, phase Phase) error {
	if err := m.ensureOpen(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", gerrors.ErrRecordNotFound, id)
	}
	if record.Outcomes == nil {
		record.Outcomes = make(map[string]Phase)
	}
	record.Outcomes[database] = phase
	return nil
}

// Delete removes a record
func (m *MemoryLog) Delete(ctx context.Context, id string) error {
	if err := m.ensureOpen(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

// DeleteTransaction removes every record of the given transaction
func (m *MemoryLog) DeleteTransaction(ctx context.Context, transactionID string) error {
	if err := m.ensureOpen(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	for id, record := range m.records {
		if record.TransactionID == transactionID {
			delete(m.records, id)
		}
	}
	m.mu.Unlock()
	return nil
}

// Records returns a copy of every record, oldest first
func (m *MemoryLog) Records(ctx context.Context) ([]*Record, error) {
	if err := m.ensureOpen(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	records := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record.Clone())
	}
	m.mu.RUnlock()
	sortRecords(records)
	return records, nil
}

func (m *MemoryLog) ensureOpen(ctx context.Context) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return contextErr(ctx)
}
