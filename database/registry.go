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

package database

import (
	"fmt"
	"sort"

	gerrors "github.com/tochemey/hadb/errors"
)

// Registry holds the configured databases of a cluster. Its content is fixed
// at construction; only the activation flags of its databases change.
type Registry struct {
	databases map[string]*Database
	ordered   []*Database
}

// NewRegistry creates a Registry. It rejects invalid descriptors and duplicate
// identifiers without retaining any partial state.
func NewRegistry(databases ...*Database) (*Registry, error) {
	if len(databases) == 0 {
		return nil, fmt.Errorf("%w: at least one database is required", gerrors.ErrInvalidConfig)
	}

	index := make(map[string]*Database, len(databases))
	for _, db := range databases {
		if db == nil {
			return nil, fmt.Errorf("%w: nil database", gerrors.ErrInvalidConfig)
		}
		if err := db.Validate(); err != nil {
			return nil, err
		}
		if _, ok := index[db.ID()]; ok {
			return nil, fmt.Errorf("%w: %s", gerrors.ErrDuplicateDatabase, db.ID())
		}
		index[db.ID()] = db
	}

	ordered := make([]*Database, 0, len(index))
	for _, db := range index {
		ordered = append(ordered, db)
	}
	Sort(ordered)

	return &Registry{databases: index, ordered: ordered}, nil
}

// Get returns the database with the given identifier
func (r *Registry) Get(id string) (*Database, error) {
	db, ok := r.databases[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gerrors.ErrDatabaseNotFound, id)
	}
	return db, nil
}

// All returns the configured databases ordered by identifier
func (r *Registry) All() []*Database {
	out := make([]*Database, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// IDs returns the configured identifiers in order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.ordered))
	for i, db := range r.ordered {
		ids[i] = db.ID()
	}
	return ids
}

// Len returns the number of configured databases
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Active returns the databases flagged active, ordered by identifier
func (r *Registry) Active() []*Database {
	out := make([]*Database, 0, len(r.ordered))
	for _, db := range r.ordered {
		if db.Active() {
			out = append(out, db)
		}
	}
	return out
}

// Inactive returns the databases not flagged active, ordered by identifier
func (r *Registry) Inactive() []*Database {
	out := make([]*Database, 0, len(r.ordered))
	for _, db := range r.ordered {
		if !db.Active() {
			out = append(out, db)
		}
	}
	return out
}

// MarkActive flips the activation flag of the database on.
// It returns false when the database was already active.
func (r *Registry) MarkActive(db *Database) bool {
	return db.active.CompareAndSwap(false, true)
}

// MarkInactive flips the activation flag of the database off.
// It returns false when the database was already inactive.
func (r *Registry) MarkInactive(db *Database) bool {
	return db.active.CompareAndSwap(true, false)
}

// Sort orders databases by identifier in place
func Sort(databases []*Database) {
	sort.Slice(databases, func(i, j int) bool {
		return databases[i].ID() < databases[j].ID()
	})
}

// IDs returns the identifiers of the given databases
func IDs(databases []*Database) []string {
	ids := make([]string, len(databases))
	for i, db := range databases {
		ids[i] = db.ID()
	}
	return ids
}
