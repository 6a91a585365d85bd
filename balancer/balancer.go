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

// Package balancer selects which active database serves a read and tracks
// the active set snapshot used by write fan-outs.
package balancer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tochemey/hadb/database"
	gerrors "github.com/tochemey/hadb/errors"
)

// Balancer holds the active databases of a cluster and chooses read targets.
// Implementations are safe for concurrent use.
type Balancer interface {
	// Next returns the database that should serve the next read.
	// It returns ErrNoActiveDatabase when the active set is empty.
	Next() (*database.Database, error)
	// Primary returns the preferred database, used as synchronization reference.
	Primary() (*database.Database, error)
	// All returns an immutable snapshot of the active databases ordered by identifier.
	All() []*database.Database
	// Add inserts a database. It returns false when it was already present.
	Add(db *database.Database) bool
	// Remove evicts a database. It returns false when it was absent.
	Remove(db *database.Database) bool
	// Contains states whether the database is part of the active set.
	Contains(db *database.Database) bool
	// BeforeInvocation is called before a read is dispatched to db.
	BeforeInvocation(db *database.Database)
	// AfterInvocation is called once a read dispatched to db completed.
	AfterInvocation(db *database.Database)
	// Len returns the size of the active set.
	Len() int
	// Clear empties the active set.
	Clear()
}

// Factory creates an empty Balancer
type Factory func() Balancer

const (
	RoundRobinStrategy = "round-robin"
	RandomStrategy     = "random"
	LoadStrategy       = "load"
	SimpleStrategy     = "simple"
)

// ByName returns the Factory registered under the given strategy name
func ByName(name string) (Factory, error) {
	switch name {
	case RoundRobinStrategy:
		return func() Balancer { return NewRoundRobin() }, nil
	case RandomStrategy:
		return func() Balancer { return NewRandom() }, nil
	case LoadStrategy:
		return func() Balancer { return NewLoad() }, nil
	case SimpleStrategy:
		return func() Balancer { return NewSimple() }, nil
	default:
		return nil, fmt.Errorf("%w: unknown balancer strategy %q", gerrors.ErrInvalidConfig, name)
	}
}

// set is the active set shared by every strategy.
// The databases slice is replaced on mutation so snapshots handed out stay immutable.
type set struct {
	mu        sync.RWMutex
	databases []*database.Database
}

func (s *set) All() []*database.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.databases
}

func (s *set) Add(db *database.Database) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(db.ID()) >= 0 {
		return false
	}
	next := make([]*database.Database, 0, len(s.databases)+1)
	next = append(next, s.databases...)
	next = append(next, db)
	database.Sort(next)
	s.databases = next
	return true
}

func (s *set) Remove(db *database.Database) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexOf(db.ID())
	if index < 0 {
		return false
	}
	next := make([]*database.Database, 0, len(s.databases)-1)
	next = append(next, s.databases[:index]...)
	next = append(next, s.databases[index+1:]...)
	s.databases = next
	return true
}

func (s *set) Contains(db *database.Database) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(db.ID()) >= 0
}

func (s *set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.databases)
}

func (s *set) Clear() {
	s.mu.Lock()
	s.databases = nil
	s.mu.Unlock()
}

// Primary returns the database with the highest weight, ties broken by identifier
func (s *set) Primary() (*database.Database, error) {
	databases := s.All()
	if len(databases) == 0 {
		return nil, gerrors.ErrNoActiveDatabase
	}
	return preferred(databases)[0], nil
}

func (s *set) BeforeInvocation(*database.Database) {}

func (s *set) AfterInvocation(*database.Database) {}

// indexOf must be called with the lock held
func (s *set) indexOf(id string) int {
	index := sort.Search(len(s.databases), func(i int) bool {
		return s.databases[i].ID() >= id
	})
	if index < len(s.databases) && s.databases[index].ID() == id {
		return index
	}
	return -1
}

// preferred returns a copy of databases ordered by weight descending then identifier
func preferred(databases []*database.Database) []*database.Database {
	out := make([]*database.Database, len(databases))
	copy(out, databases)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight() != out[j].Weight() {
			return out[i].Weight() > out[j].Weight()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// readable filters out databases with a zero weight. When every database has a
// zero weight the whole snapshot is returned so reads still have a target.
func readable(databases []*database.Database) []*database.Database {
	out := make([]*database.Database, 0, len(databases))
	for _, db := range databases {
		if db.Weight() > 0 {
			out = append(out, db)
		}
	}
	if len(out) == 0 {
		return databases
	}
	return out
}
