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

package proxy

import (
	"io"
	"sync"

	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/multierr"
)

// Handle identifies a child in the arena of its root
type Handle uint64

// member is a child as seen by the arena
type member interface {
	retain(active goset.Set[string])
	release() error
}

// arena owns the children derived from a root
type arena struct {
	mu       sync.Mutex
	next     Handle
	children map[Handle]member
}

func newArena() *arena {
	return &arena{children: make(map[Handle]member)}
}

func (a *arena) add(child member) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.children[a.next] = child
	return a.next
}

func (a *arena) remove(handle Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.children[handle]; !ok {
		return false
	}
	delete(a.children, handle)
	return true
}

func (a *arena) members() []member {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]member, 0, len(a.children))
	for _, child := range a.children {
		out = append(out, child)
	}
	return out
}

func (a *arena) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.children)
}

// prune drops the resources of the databases outside active, closing them
func prune[T any](resources map[string]T, active goset.Set[string]) error {
	var err error
	for id, resource := range resources {
		if active.Contains(id) {
			continue
		}
		delete(resources, id)
		err = multierr.Append(err, closeResource(resource))
	}
	return err
}

func closeResource(resource any) error {
	if closer, ok := resource.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
