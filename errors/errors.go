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

package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrNoActiveDatabase is returned when an invocation is resolved against an empty active set.
	// It is the cluster-exhausted condition: no database can serve the request.
	ErrNoActiveDatabase = errors.New("no active database")

	// ErrDatabaseNotFound is returned when a database identifier is not part of the cluster configuration.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrDuplicateDatabase is returned when two configured databases share the same identifier.
	ErrDuplicateDatabase = errors.New("duplicate database identifier")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClusterNotRunning is returned when an operation requires a started cluster.
	ErrClusterNotRunning = errors.New("database cluster is not running")

	// ErrClusterAlreadyRunning is returned when Start is called on a running cluster.
	ErrClusterAlreadyRunning = errors.New("database cluster is already running")

	// ErrLockTimeout is returned when a lock could not be acquired within the allotted time.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrLockUpgrade is returned when the holder of a shared lock requests the exclusive mode of the same lock.
	ErrLockUpgrade = errors.New("shared lock cannot be upgraded to exclusive")

	// ErrDispatchTimeout is returned when a database did not complete its part of an invocation in time.
	ErrDispatchTimeout = errors.New("dispatch timed out")

	// ErrStaleReference is returned when an operation targets a database handle that has been pruned
	// after the database left the active set.
	ErrStaleReference = errors.New("stale database reference")

	// ErrBroadcastIncomplete is returned when one or more group members did not answer a broadcast in time.
	ErrBroadcastIncomplete = errors.New("broadcast did not reach every member")

	// ErrChannelNotStarted is returned when a group channel is used before Start.
	ErrChannelNotStarted = errors.New("group channel is not started")

	// ErrSynchronization is returned when a database could not be synchronized with a reference database.
	ErrSynchronization = errors.New("database synchronization failed")

	// ErrReconciliation is returned when durability recovery could not reconcile a database.
	ErrReconciliation = errors.New("durability reconciliation failed")

	// ErrExecutorStopped is returned when a task is submitted to a stopped executor.
	ErrExecutorStopped = errors.New("executor is stopped")

	// ErrStoreClosed is returned when a persistent store is used after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrRecordNotFound is returned when a durability record does not exist.
	ErrRecordNotFound = errors.New("durability record not found")

	// ErrNoState is returned when no active set was ever persisted.
	ErrNoState = errors.New("no active set persisted")

	// ErrDatabaseUnavailable marks a failure caused by the database itself (connectivity, crash)
	// rather than by the operation. Such failures always deactivate the database.
	ErrDatabaseUnavailable = errors.New("database unavailable")
)

// DatabaseError records the failure of one database during an invocation.
type DatabaseError struct {
	Database string
	Err      error
}

var _ error = (*DatabaseError)(nil)

// NewDatabaseError creates a DatabaseError
func NewDatabaseError(database string, err error) *DatabaseError {
	return &DatabaseError{Database: database, Err: err}
}

// Error implements the standard error interface
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Database, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// InvocationError is returned when every target of an invocation failed.
// Failures are ordered by database identifier; the first one is the captured
// failure surfaced to the caller.
type InvocationError struct {
	Failures []*DatabaseError
}

var _ error = (*InvocationError)(nil)

// NewInvocationError creates an InvocationError from a per-database failure map
func NewInvocationError(failures map[string]error) *InvocationError {
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*DatabaseError, 0, len(ids))
	for _, id := range ids {
		out = append(out, NewDatabaseError(id, failures[id]))
	}
	return &InvocationError{Failures: out}
}

// Error implements the standard error interface
func (e *InvocationError) Error() string {
	var combined error
	for _, failure := range e.Failures {
		combined = multierr.Append(combined, failure)
	}
	if combined == nil {
		return "invocation failed"
	}
	return fmt.Sprintf("invocation failed on every database: %v", combined)
}

// First returns the first captured failure
func (e *InvocationError) First() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}

// Databases returns the identifiers of the failed databases
func (e *InvocationError) Databases() []string {
	ids := make([]string, len(e.Failures))
	for i, failure := range e.Failures {
		ids[i] = failure.Database
	}
	return ids
}

func (e *InvocationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, failure := range e.Failures {
		errs[i] = failure
	}
	return errs
}

// MissingMembersError reports the members that did not answer a broadcast.
type MissingMembersError struct {
	Members []string
}

var _ error = (*MissingMembersError)(nil)

// Error implements the standard error interface
func (e *MissingMembersError) Error() string {
	return fmt.Sprintf("%v: %s", ErrBroadcastIncomplete, strings.Join(e.Members, ","))
}

func (e *MissingMembersError) Unwrap() error {
	return ErrBroadcastIncomplete
}

// MarkUnavailable wraps err so that it is classified as a database failure
func MarkUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
}
