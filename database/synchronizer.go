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

import "context"

// Synchronizer brings a target database in line with a source database.
// The data copying strategy is left to the implementation.
type Synchronizer interface {
	Synchronize(ctx context.Context, source, target *Database) error
}

// SynchronizerFunc adapts a function to the Synchronizer interface
type SynchronizerFunc func(ctx context.Context, source, target *Database) error

// Synchronize calls f(ctx, source, target)
func (f SynchronizerFunc) Synchronize(ctx context.Context, source, target *Database) error {
	return f(ctx, source, target)
}

// PassiveSynchronizer assumes databases are already in sync and copies nothing
var PassiveSynchronizer Synchronizer = SynchronizerFunc(func(context.Context, *Database, *Database) error {
	return nil
})
