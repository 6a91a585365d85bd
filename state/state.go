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

// Package state persists the active set of a cluster so that a restarted
// process, or another member of the group, resumes with the same view.
package state

import (
	"context"
	"slices"
)

// Manager persists the identifiers of the active databases
type Manager interface {
	// Start prepares the manager
	Start(ctx context.Context) error
	// Stop releases the manager resources
	Stop(ctx context.Context) error
	// Load returns the persisted active set, which is empty when the last
	// database was deactivated. It fails with errors.ErrNoState when no set
	// was ever persisted.
	Load(ctx context.Context) ([]string, error)
	// Store replaces the persisted active set
	Store(ctx context.Context, ids []string) error
}

// Applier applies an active set received from another member
type Applier interface {
	Apply(ctx context.Context, ids []string) error
}

// normalize returns a sorted copy of ids without duplicates
func normalize(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
