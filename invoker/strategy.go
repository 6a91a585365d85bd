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

package invoker

import (
	"github.com/tochemey/hadb/durability"
)

// Strategy defines the targets of an invocation and the executor running it
type Strategy int

const (
	// ReadFromAny runs the operation on one active database chosen by the balancer,
	// synchronously on the calling goroutine
	ReadFromAny Strategy = iota
	// WriteToAll runs the operation on every active database using the
	// non-transactional executor
	WriteToAll
	// TransactionalWrite runs a statement of a transaction on every active
	// database using the transactional executor
	TransactionalWrite
	// TransactionBoundary runs a commit or a rollback on every active
	// database using the transactional executor
	TransactionBoundary
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	switch s {
	case ReadFromAny:
		return "read-from-any"
	case WriteToAll:
		return "write-to-all"
	case TransactionalWrite:
		return "transactional-write"
	case TransactionBoundary:
		return "transaction-boundary"
	default:
		return "unknown"
	}
}

// Kind returns the durability kind of the invocations run with the strategy
func (s Strategy) Kind() durability.Kind {
	switch s {
	case TransactionalWrite:
		return durability.Transactional
	case TransactionBoundary:
		return durability.Boundary
	default:
		return durability.NonTransactional
	}
}
