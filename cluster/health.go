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

package cluster

import (
	"context"
	"errors"

	"github.com/tochemey/hadb/database"
	gerrors "github.com/tochemey/hadb/errors"
)

// HealthChecker probes a database
type HealthChecker interface {
	Check(ctx context.Context, db *database.Database) error
}

// HealthCheckerFunc implements HealthChecker
type HealthCheckerFunc func(ctx context.Context, db *database.Database) error

// Check calls f(ctx, db)
func (f HealthCheckerFunc) Check(ctx context.Context, db *database.Database) error {
	return f(ctx, db)
}

// FailureDetector tells whether the failure of an invocation on a database is
// a failure of the database itself.
// When every target of an invocation fails, only the databases whose failure
// is detected are deactivated: the others most likely failed because of the
// operation.
type FailureDetector interface {
	Failed(db *database.Database, err error) bool
}

// FailureDetectorFunc implements FailureDetector
type FailureDetectorFunc func(db *database.Database, err error) bool

// Failed calls f(db, err)
func (f FailureDetectorFunc) Failed(db *database.Database, err error) bool {
	return f(db, err)
}

// DefaultFailureDetector detects dispatch timeouts and failures marked with errors.MarkUnavailable
var DefaultFailureDetector FailureDetector = FailureDetectorFunc(func(_ *database.Database, err error) bool {
	return errors.Is(err, gerrors.ErrDispatchTimeout) || errors.Is(err, gerrors.ErrDatabaseUnavailable)
})

// ReadPolicy defines how a failed read is handled
type ReadPolicy int

const (
	// SingleAttempt surfaces the failure of a read to the caller once the
	// failing database is deactivated
	SingleAttempt ReadPolicy = iota
	// RetryNext retries a failed read against the remaining active databases
	// until one succeeds or none is left
	RetryNext
)

// String returns the string representation of the policy
func (p ReadPolicy) String() string {
	switch p {
	case SingleAttempt:
		return "single-attempt"
	case RetryNext:
		return "retry-next"
	default:
		return "unknown"
	}
}
