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

import "slices"

type config struct {
	locks         []string
	payload       []byte
	transactionID string
	sequence      uint64
}

// Option is the interface that applies an invocation option.
type Option interface {
	// Apply sets the Option value of an invocation.
	Apply(config *config)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(config *config)

// Apply applies the invocation option
func (f OptionFunc) Apply(config *config) {
	f(config)
}

// WithLocks acquires the named exclusive locks, in name order, for the
// duration of a write. Operations touching shared objects such as sequences
// use them to run in the same order on every database.
func WithLocks(names ...string) Option {
	return OptionFunc(func(config *config) {
		config.locks = append(config.locks, names...)
	})
}

// WithPayload attaches a replayable description of the operation to its durability record
func WithPayload(payload []byte) Option {
	return OptionFunc(func(config *config) {
		config.payload = slices.Clone(payload)
	})
}

// WithTransaction places the invocation in a transaction at the given position
func WithTransaction(id string, sequence uint64) Option {
	return OptionFunc(func(config *config) {
		config.transactionID = id
		config.sequence = sequence
	})
}

func newConfig(opts ...Option) *config {
	config := new(config)
	for _, opt := range opts {
		opt.Apply(config)
	}
	slices.Sort(config.locks)
	config.locks = slices.Compact(config.locks)
	return config
}
