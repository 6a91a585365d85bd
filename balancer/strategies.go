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

package balancer

import (
	"math/rand/v2"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/hadb/database"
	gerrors "github.com/tochemey/hadb/errors"
)

// RoundRobin rotates reads over the readable active databases
type RoundRobin struct {
	*set
	counter *atomic.Uint64
}

var _ Balancer = (*RoundRobin)(nil)

// NewRoundRobin creates a RoundRobin balancer
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{
		set:     new(set),
		counter: atomic.NewUint64(0),
	}
}

// Next returns the next database in rotation
func (x *RoundRobin) Next() (*database.Database, error) {
	databases := readable(x.All())
	if len(databases) == 0 {
		return nil, gerrors.ErrNoActiveDatabase
	}
	index := (x.counter.Inc() - 1) % uint64(len(databases))
	return databases[index], nil
}

// Random picks a database at random using weights as ticket counts
type Random struct {
	*set
}

var _ Balancer = (*Random)(nil)

// NewRandom creates a Random balancer
func NewRandom() *Random {
	return &Random{set: new(set)}
}

// Next returns a weighted random database
func (x *Random) Next() (*database.Database, error) {
	databases := readable(x.All())
	if len(databases) == 0 {
		return nil, gerrors.ErrNoActiveDatabase
	}

	total := 0
	for _, db := range databases {
		total += db.Weight()
	}
	if total == 0 {
		return databases[rand.IntN(len(databases))], nil
	}

	ticket := rand.IntN(total)
	for _, db := range databases {
		ticket -= db.Weight()
		if ticket < 0 {
			return db, nil
		}
	}
	return databases[len(databases)-1], nil
}

// Load sends reads to the database with the lowest in-flight to weight ratio
type Load struct {
	*set
	mu       sync.Mutex
	inflight map[string]int
}

var _ Balancer = (*Load)(nil)

// NewLoad creates a Load balancer
func NewLoad() *Load {
	return &Load{
		set:      new(set),
		inflight: make(map[string]int),
	}
}

// Next returns the least loaded database
func (x *Load) Next() (*database.Database, error) {
	databases := readable(x.All())
	if len(databases) == 0 {
		return nil, gerrors.ErrNoActiveDatabase
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	var (
		selected *database.Database
		best     float64
	)
	for _, db := range databases {
		weight := max(db.Weight(), 1)
		ratio := float64(x.inflight[db.ID()]+1) / float64(weight)
		if selected == nil || ratio < best {
			selected = db
			best = ratio
		}
	}
	return selected, nil
}

// BeforeInvocation increments the in-flight count of db
func (x *Load) BeforeInvocation(db *database.Database) {
	x.mu.Lock()
	x.inflight[db.ID()]++
	x.mu.Unlock()
}

// AfterInvocation decrements the in-flight count of db
func (x *Load) AfterInvocation(db *database.Database) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if count := x.inflight[db.ID()]; count > 1 {
		x.inflight[db.ID()] = count - 1
		return
	}
	delete(x.inflight, db.ID())
}

// Remove evicts db and forgets its in-flight count
func (x *Load) Remove(db *database.Database) bool {
	removed := x.set.Remove(db)
	if removed {
		x.mu.Lock()
		delete(x.inflight, db.ID())
		x.mu.Unlock()
	}
	return removed
}

// Clear empties the active set and the in-flight counts
func (x *Load) Clear() {
	x.set.Clear()
	x.mu.Lock()
	x.inflight = make(map[string]int)
	x.mu.Unlock()
}

// Simple always reads from the preferred database: highest weight, ties by identifier
type Simple struct {
	*set
}

var _ Balancer = (*Simple)(nil)

// NewSimple creates a Simple balancer
func NewSimple() *Simple {
	return &Simple{set: new(set)}
}

// Next returns the preferred readable database
func (x *Simple) Next() (*database.Database, error) {
	databases := readable(x.All())
	if len(databases) == 0 {
		return nil, gerrors.ErrNoActiveDatabase
	}
	return preferred(databases)[0], nil
}
