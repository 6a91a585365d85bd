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

package state

import (
	"context"
	"slices"
	"sync"

	gerrors "github.com/tochemey/hadb/errors"
)

// Memory keeps the active set in memory
type Memory struct {
	mu     sync.RWMutex
	ids    []string
	stored bool
}

var _ Manager = (*Memory)(nil)

// NewMemory creates a Memory state manager
func NewMemory() *Memory {
	return &Memory{}
}

// Start is a no-op
func (m *Memory) Start(context.Context) error {
	return nil
}

// Stop is a no-op
func (m *Memory) Stop(context.Context) error {
	return nil
}

// Load returns the active set
func (m *Memory) Load(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.stored {
		return nil, gerrors.ErrNoState
	}
	return slices.Clone(m.ids), nil
}

// Store replaces the active set
func (m *Memory) Store(_ context.Context, ids []string) error {
	m.mu.Lock()
	m.ids = normalize(ids)
	m.stored = true
	m.mu.Unlock()
	return nil
}
