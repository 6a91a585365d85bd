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
	"errors"
	"fmt"
	"slices"

	goset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/hadb/database"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/log"
)

// Replayer re-executes the recorded invocations a database missed.
// Records are handed over in execution order.
type Replayer interface {
	Replay(ctx context.Context, target *database.Database, records []*Record) error
}

// ReplayerFunc adapts a function to the Replayer interface
type ReplayerFunc func(ctx context.Context, target *database.Database, records []*Record) error

// Replay calls f(ctx, target, records)
func (f ReplayerFunc) Replay(ctx context.Context, target *database.Database, records []*Record) error {
	return f(ctx, target, records)
}

// RecoveryConfig configures Recover
type RecoveryConfig struct {
	// Candidates are the databases about to be activated
	Candidates []*database.Database
	// Synchronizer resynchronizes a lagging database from a reference database
	Synchronizer database.Synchronizer
	// Replayer optionally replays the missed invocations instead of a full resynchronization
	Replayer Replayer
	// Logger defaults to log.DefaultLogger
	Logger log.Logger
}

// Report summarizes a recovery
type Report struct {
	// Resynchronized are the databases resynchronized from a reference
	Resynchronized goset.Set[string]
	// Replayed are the databases brought up to date by replay
	Replayed goset.Set[string]
	// Failed are the databases that could not be reconciled. They must stay inactive.
	Failed goset.Set[string]
	// Discarded counts the records no database had completed
	Discarded int
}

func newReport() *Report {
	return &Report{
		Resynchronized: goset.NewThreadUnsafeSet[string](),
		Replayed:       goset.NewThreadUnsafeSet[string](),
		Failed:         goset.NewThreadUnsafeSet[string](),
	}
}

// Recover reconciles the databases left inconsistent by invocations that
// were in flight when the process stopped. It must run before any candidate
// is activated.
//
// A target of a leftover record is lagging when another target completed the
// invocation and it did not. Records nobody completed are discarded. Each
// lagging candidate is replayed when possible and resynchronized from a
// non-lagging reference otherwise. A database lagging within a transaction
// misses the whole transaction. Reconciled records are deleted; records
// involving a database that could not be reconciled are kept for the next start.
func Recover(ctx context.Context, records Log, config RecoveryConfig) (*Report, error) {
	logger := config.Logger
	if logger == nil {
		logger = log.DefaultLogger
	}

	report := newReport()
	leftovers, err := records.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read the durability records: %w", err)
	}
	if len(leftovers) == 0 {
		return report, nil
	}

	candidates := make(map[string]*database.Database, len(config.Candidates))
	for _, db := range config.Candidates {
		candidates[db.ID()] = db
	}

	// missed holds, per lagging candidate, the records it did not complete
	missed := make(map[string][]*Record)
	lagging := goset.NewThreadUnsafeSet[string]()
	var pending []*Record

	for _, record := range leftovers {
		if len(record.Invoked()) == 0 {
			if err := records.Delete(ctx, record.ID); err != nil {
				return nil, err
			}
			report.Discarded++
			logger.Debugf("discarded durability record %s: no database completed it", record.ID)
			continue
		}

		pending = append(pending, record)
		for _, id := range record.Lagging() {
			if _, ok := candidates[id]; !ok {
				// an inactive database is synchronized when activated
				continue
			}
			lagging.Add(id)
			missed[id] = append(missed[id], record)
		}
	}

	ids := lagging.ToSlice()
	slices.Sort(ids)
	kept := goset.NewThreadUnsafeSet[string]()
	for _, id := range ids {
		target := candidates[id]
		// the unfinished transaction of a lagging database was rolled back
		missed[id] = withTransactions(id, missed[id], pending)
		if err := reconcile(ctx, target, missed[id], candidates, lagging, config, report); err != nil {
			report.Failed.Add(id)
			for _, record := range missed[id] {
				kept.Add(record.ID)
			}
			logger.Error(fmt.Errorf("%w: database %s: %w", gerrors.ErrReconciliation, id, err))
		}
	}

	for _, record := range pending {
		if kept.Contains(record.ID) {
			continue
		}
		if err := records.Delete(ctx, record.ID); err != nil {
			return report, err
		}
	}

	if report.Failed.Cardinality() > 0 {
		logger.Warnf("durability recovery left %d database(s) unreconciled", report.Failed.Cardinality())
	}
	return report, nil
}

func reconcile(ctx context.Context, target *database.Database, missed []*Record, candidates map[string]*database.Database, lagging goset.Set[string], config RecoveryConfig, report *Report) error {
	ordered := orderForReplay(missed)

	var replayErr error
	if config.Replayer != nil && replayable(ordered) {
		if replayErr = config.Replayer.Replay(ctx, target, ordered); replayErr == nil {
			report.Replayed.Add(target.ID())
			return nil
		}
	}

	reference := referenceFor(missed, candidates, lagging)
	if reference == nil {
		return errors.Join(replayErr, errors.New("no consistent reference database"))
	}

	if config.Synchronizer == nil {
		return errors.Join(replayErr, errors.New("no synchronizer configured"))
	}

	if err := config.Synchronizer.Synchronize(ctx, reference, target); err != nil {
		return errors.Join(replayErr, fmt.Errorf("%w: from %s: %w", gerrors.ErrSynchronization, reference.ID(), err))
	}
	report.Resynchronized.Add(target.ID())
	return nil
}

// withTransactions adds to the missed records the other records of their
// transactions targeting the database
func withTransactions(id string, missed, records []*Record) []*Record {
	transactions := goset.NewThreadUnsafeSet[string]()
	included := goset.NewThreadUnsafeSet[string]()
	for _, record := range missed {
		included.Add(record.ID)
		if record.TransactionID != "" {
			transactions.Add(record.TransactionID)
		}
	}
	if transactions.Cardinality() == 0 {
		return missed
	}

	for _, record := range records {
		if included.Contains(record.ID) || !transactions.Contains(record.TransactionID) || !slices.Contains(record.Targets, id) {
			continue
		}
		missed = append(missed, record)
	}
	return missed
}

// referenceFor returns the first candidate, by identifier, that completed every
// missed record and lags nowhere
func referenceFor(missed []*Record, candidates map[string]*database.Database, lagging goset.Set[string]) *database.Database {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if lagging.Contains(id) {
			continue
		}
		consistent := true
		for _, record := range missed {
			if !slices.Contains(record.Invoked(), id) {
				consistent = false
				break
			}
		}
		if consistent {
			return candidates[id]
		}
	}
	return nil
}

// orderForReplay groups the records by transaction, transactions ordered by
// their first record, and orders the statements of a transaction by sequence
func orderForReplay(records []*Record) []*Record {
	groups := make(map[string][]*Record)
	var order []string
	for _, record := range records {
		key := record.TransactionID
		if key == "" {
			key = "record:" + record.ID
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], record)
	}

	ordered := make([]*Record, 0, len(records))
	for _, key := range order {
		group := groups[key]
		slices.SortStableFunc(group, func(a, b *Record) int {
			switch {
			case a.Sequence < b.Sequence:
				return -1
			case a.Sequence > b.Sequence:
				return 1
			default:
				return 0
			}
		})
		ordered = append(ordered, group...)
	}
	return ordered
}

func replayable(records []*Record) bool {
	for _, record := range records {
		if len(record.Payload) == 0 {
			return false
		}
	}
	return len(records) > 0
}
