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

// Package database describes the physical databases participating in a cluster.
package database

import (
	"fmt"
	"maps"

	"go.uber.org/atomic"

	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/validation"
)

// DefaultWeight is the weight of a database when none is configured
const DefaultWeight = 1

const idPattern = `^[a-zA-Z0-9][a-zA-Z0-9_.\-]*$`

// Database is the static descriptor of one physical database.
// Everything but the activation flag is immutable once created. The flag is
// only flipped through the Registry by the cluster state machine.
type Database struct {
	id         string
	weight     int
	local      bool
	location   string
	properties map[string]string
	active     *atomic.Bool
}

// New creates a Database descriptor
func New(id string, opts ...Option) *Database {
	db := &Database{
		id:         id,
		weight:     DefaultWeight,
		properties: make(map[string]string),
		active:     atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(db)
	}

	return db
}

// ID returns the unique identifier of the database
func (x *Database) ID() string {
	return x.id
}

// Weight returns the relative weight used by balancers. A weight of zero
// excludes the database from read balancing while it still receives writes.
func (x *Database) Weight() int {
	return x.weight
}

// Local states whether the database runs on the same host as the process
func (x *Database) Local() bool {
	return x.local
}

// Location returns the connection location (URL or DSN) of the database
func (x *Database) Location() string {
	return x.location
}

// Property returns the value of a connection property
func (x *Database) Property(name string) (string, bool) {
	value, ok := x.properties[name]
	return value, ok
}

// Properties returns a copy of the connection properties
func (x *Database) Properties() map[string]string {
	return maps.Clone(x.properties)
}

// Active states whether the database is currently part of the active set
func (x *Database) Active() bool {
	return x.active.Load()
}

// Validate checks the descriptor
func (x *Database) Validate() error {
	if err := validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("id", x.id)).
		AddValidator(validation.NewPatternValidator(idPattern, x.id, fmt.Errorf("invalid database id %q", x.id))).
		AddAssertion(x.weight >= 0, fmt.Sprintf("database %s: weight must not be negative", x.id)).
		Validate(); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrInvalidConfig, err)
	}
	return nil
}

// String returns the database identifier
func (x *Database) String() string {
	return x.id
}
