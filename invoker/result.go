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
	"maps"
	"slices"
)

// Result holds the values returned by the databases an invocation succeeded on
type Result[R any] struct {
	values   map[string]R
	failures map[string]error
	ids      []string
}

func newResult[R any](values map[string]R, failures map[string]error) *Result[R] {
	return &Result[R]{
		values:   values,
		failures: failures,
		ids:      slices.Sorted(maps.Keys(values)),
	}
}

// Value returns the value of the first database by id.
// Writes are expected to return equivalent values on every database.
func (r *Result[R]) Value() R {
	var zero R
	if len(r.ids) == 0 {
		return zero
	}
	return r.values[r.ids[0]]
}

// Get returns the value returned by the given database
func (r *Result[R]) Get(id string) (R, bool) {
	value, ok := r.values[id]
	return value, ok
}

// Databases returns the databases the invocation succeeded on, sorted by id
func (r *Result[R]) Databases() []string {
	return slices.Clone(r.ids)
}

// Failures returns the failures of the databases deactivated by the invocation
func (r *Result[R]) Failures() map[string]error {
	return maps.Clone(r.failures)
}
