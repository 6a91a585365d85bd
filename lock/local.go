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

package lock

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	gerrors "github.com/tochemey/hadb/errors"
)

// capacity is the weight of an exclusive acquisition. A shared acquisition weighs one.
const capacity = math.MaxInt32

type hold struct {
	mode  Mode
	count int
}

type entry struct {
	sem     *semaphore.Weighted
	refs    int
	holders map[string]*hold
}

// Local is a process local lock manager. Each name maps to a weighted
// semaphore whose waiters are served in FIFO order; entries are dropped once
// nobody holds or waits for them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

var _ Manager = (*Local)(nil)

// NewLocal creates a Local lock manager
func NewLocal(opts ...LocalOption) *Local {
	local := &Local{
		entries: make(map[string]*entry),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(local)
	}
	return local
}

// Start is a no-op
func (l *Local) Start(context.Context) error {
	return nil
}

// Stop is a no-op
func (l *Local) Stop(context.Context) error {
	return nil
}

// Lock acquires the named lock
func (l *Local) Lock(ctx context.Context, name string, mode Mode) (Unlock, error) {
	unlock, _, err := l.acquire(ctx, name, mode)
	return unlock, err
}

// acquire acquires the named lock and reports whether the acquisition was
// nested into one already held by the same owner
func (l *Local) acquire(ctx context.Context, name string, mode Mode) (Unlock, bool, error) {
	owner, ok := OwnerFrom(ctx)
	if !ok {
		owner = uuid.NewString()
	}

	l.mu.Lock()
	current, ok := l.entries[name]
	if !ok {
		current = &entry{
			sem:     semaphore.NewWeighted(capacity),
			holders: make(map[string]*hold),
		}
		l.entries[name] = current
	}

	if held, ok := current.holders[owner]; ok {
		if held.mode == Shared && mode == Exclusive {
			l.mu.Unlock()
			return nil, false, fmt.Errorf("%w: %s", gerrors.ErrLockUpgrade, name)
		}
		held.count++
		l.mu.Unlock()
		return l.unlocker(name, owner), true, nil
	}

	current.refs++
	l.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	weight := weightOf(mode)
	if err := current.sem.Acquire(ctx, weight); err != nil {
		l.mu.Lock()
		l.release(name, current)
		l.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s %s: %w", gerrors.ErrLockTimeout, mode, name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// the same owner raced this acquisition from another goroutine
	if held, ok := current.holders[owner]; ok {
		current.sem.Release(weight)
		l.release(name, current)
		held.count++
		return l.unlocker(name, owner), true, nil
	}

	current.holders[owner] = &hold{mode: mode, count: 1}
	return l.unlocker(name, owner), false, nil
}

func (l *Local) unlocker(name, owner string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			current, ok := l.entries[name]
			if !ok {
				return
			}
			held, ok := current.holders[owner]
			if !ok {
				return
			}
			held.count--
			if held.count > 0 {
				return
			}
			delete(current.holders, owner)
			current.sem.Release(weightOf(held.mode))
			l.release(name, current)
		})
	}
}

// release drops a reference to the entry. It must be called with the lock held.
func (l *Local) release(name string, current *entry) {
	current.refs--
	if current.refs <= 0 {
		delete(l.entries, name)
	}
}

// size returns the number of live entries
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func weightOf(mode Mode) int64 {
	if mode == Exclusive {
		return capacity
	}
	return 1
}
