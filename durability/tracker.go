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
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tochemey/hadb/log"
)

// Invocation describes an invocation about to be dispatched
type Invocation struct {
	Kind          Kind
	TransactionID string
	Sequence      uint64
	Targets       []string
	// Payload optionally describes the invocation well enough to replay it
	Payload []byte
}

// Tracker writes the records of the invocations its durability tracks
type Tracker struct {
	log        Log
	durability Durability
	logger     log.Logger
}

// NewTracker creates a Tracker
func NewTracker(records Log, durability Durability, logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Tracker{
		log:        records,
		durability: durability,
		logger:     logger,
	}
}

// Durability returns the tracking granularity
func (t *Tracker) Durability() Durability {
	return t.durability
}

// Begin records the invocation before it is dispatched. A failure to write
// the record must abort the invocation. Untracked invocations get a Pending
// that records nothing.
func (t *Tracker) Begin(ctx context.Context, invocation Invocation) (*Pending, error) {
	if t == nil || t.log == nil || !t.durability.Track(invocation.Kind) {
		return &Pending{}, nil
	}

	outcomes := make(map[string]Phase, len(invocation.Targets))
	for _, target := range invocation.Targets {
		outcomes[target] = Invoking
	}

	record := &Record{
		ID:            uuid.NewString(),
		TransactionID: invocation.TransactionID,
		Sequence:      invocation.Sequence,
		Kind:          invocation.Kind,
		Targets:       slices.Clone(invocation.Targets),
		Outcomes:      outcomes,
		Payload:       invocation.Payload,
		CreatedAt:     time.Now().UTC(),
	}

	if err := t.log.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to write the durability record: %w", err)
	}

	return &Pending{
		tracker:       t,
		id:            record.ID,
		kind:          invocation.Kind,
		transactionID: invocation.TransactionID,
	}, nil
}

// Abandon removes the records of a transaction that will never reach its
// boundary, such as one that failed to begin
func (t *Tracker) Abandon(ctx context.Context, transactionID string) error {
	if t == nil || t.log == nil || transactionID == "" {
		return nil
	}
	if err := t.log.DeleteTransaction(ctx, transactionID); err != nil {
		t.logger.Warnf("failed to delete the durability records of transaction %s: %v", transactionID, err)
		return err
	}
	return nil
}

// Pending is a recorded invocation awaiting its outcomes
type Pending struct {
	tracker       *Tracker
	id            string
	kind          Kind
	transactionID string
}

// ID returns the record identifier. It is empty for untracked invocations.
func (p *Pending) ID() string {
	return p.id
}

// Tracked states whether the invocation is recorded
func (p *Pending) Tracked() bool {
	return p.tracker != nil
}

// Done records the outcome of the invocation on one database
func (p *Pending) Done(ctx context.Context, database string, err error) error {
	if !p.Tracked() {
		return nil
	}
	phase := Invoked
	if err != nil {
		phase = Failed
	}
	if updateErr := p.tracker.log.Update(ctx, p.id, database, phase); updateErr != nil {
		p.tracker.logger.Warnf("failed to record outcome %s of database %s for record %s: %v", phase, database, p.id, updateErr)
		return updateErr
	}
	return nil
}

// Complete is called once every outcome has been classified.
// The record of a statement within a transaction is kept until the boundary
// of the transaction completes, which removes every record of the transaction.
// Any other record is removed.
func (p *Pending) Complete(ctx context.Context) error {
	if !p.Tracked() {
		return nil
	}
	if p.transactionID != "" {
		switch p.kind {
		case Transactional:
			return nil
		case Boundary:
			return p.tracker.Abandon(ctx, p.transactionID)
		}
	}
	if err := p.tracker.log.Delete(ctx, p.id); err != nil {
		p.tracker.logger.Warnf("failed to delete durability record %s: %v", p.id, err)
		return err
	}
	return nil
}
