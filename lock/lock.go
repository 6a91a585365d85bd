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

// Package lock provides the named read/write locks that serialize
// membership changes against invocations, within a process and across the
// members of a process group.
package lock

import (
	"context"
	"time"
)

// Global is the name of the lock covering the whole cluster.
// Invocations hold it shared; activation holds it exclusive.
const Global = "cluster"

// DefaultTimeout bounds lock acquisition when the context carries no deadline
const DefaultTimeout = 10 * time.Second

// Mode is the lock mode
type Mode int

const (
	// Shared mode can be held by many owners at once
	Shared Mode = iota
	// Exclusive mode is held by a single owner
	Exclusive
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// Unlock releases an acquired lock. It is safe to call more than once.
type Unlock func()

// Manager hands out named locks
type Manager interface {
	// Start starts the manager
	Start(ctx context.Context) error
	// Stop stops the manager
	Stop(ctx context.Context) error
	// Lock acquires the named lock in the given mode on behalf of the owner
	// carried by ctx. Acquisition is bounded by the context deadline or the
	// manager timeout; expiry returns an error wrapping ErrLockTimeout.
	Lock(ctx context.Context, name string, mode Mode) (Unlock, error)
}

type ownerKey struct{}

// WithOwner returns a context whose lock acquisitions are made on behalf of owner.
// Locks are reentrant per owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the lock owner carried by ctx
func OwnerFrom(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}
