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
	"context"
	"maps"
	"sync"

	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/multierr"

	"github.com/tochemey/hadb/invoker"
)

// Parent is a resource children can be derived from
type Parent[T any] interface {
	invoker.Resources[T]
	root() (Cluster, *arena)
}

// Child is a resource derived from a write fan-out on its parent, such as a
// transaction begun on every connection of a logical connection.
// It lives in the arena of its root and only refers back to it to leave it.
type Child[T any] struct {
	handle  Handle
	cluster Cluster
	arena   *arena

	mu        sync.RWMutex
	resources map[string]T
	closed    bool
}

var _ Parent[any] = (*Child[any])(nil)

// Derive runs op on every resource of the parent and keeps the values as the
// resources of a new child. Databases that failed are deactivated by the
// invocation and are absent from the child.
func Derive[P, T any](ctx context.Context, parent Parent[P], strategy invoker.Strategy, op invoker.Operation[P, T], opts ...invoker.Option) (*Child[T], error) {
	cl, owner := parent.root()
	result, err := invoker.Invoke(ctx, cl, strategy, parent, op, opts...)
	if err != nil {
		return nil, err
	}

	resources := make(map[string]T, len(result.Databases()))
	for _, id := range result.Databases() {
		resources[id], _ = result.Get(id)
	}

	child := &Child[T]{
		cluster:   cl,
		arena:     owner,
		resources: resources,
	}
	child.handle = owner.add(child)

	// the active set may have shrunk while the invocation completed
	active := goset.NewThreadUnsafeSet[string]()
	for _, db := range cl.Balancer().All() {
		active.Add(db.ID())
	}
	child.retain(active)
	return child, nil
}

// Handle returns the handle of the child in the arena of its root
func (c *Child[T]) Handle() Handle {
	return c.handle
}

// Get returns the resource of the given database
func (c *Child[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resource, ok := c.resources[id]
	return resource, ok
}

// Resources returns a copy of the live resources by database
func (c *Child[T]) Resources() map[string]T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.resources)
}

// Close removes the child from the arena and closes its resources
// implementing io.Closer
func (c *Child[T]) Close() error {
	c.arena.remove(c.handle)
	return c.release()
}

// Detach removes the child from the arena without closing its resources,
// for resources closed by an invocation such as a commit
func (c *Child[T]) Detach() {
	c.arena.remove(c.handle)
	c.mu.Lock()
	c.closed = true
	c.resources = make(map[string]T)
	c.mu.Unlock()
}

func (c *Child[T]) root() (Cluster, *arena) {
	return c.cluster, c.arena
}

func (c *Child[T]) retain(active goset.Set[string]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := prune(c.resources, active); err != nil {
		c.cluster.Logger().Warnf("failed to release pruned resources: %v", err)
	}
}

func (c *Child[T]) release() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	resources := c.resources
	c.resources = make(map[string]T)
	c.mu.Unlock()

	var err error
	for _, resource := range resources {
		err = multierr.Append(err, closeResource(resource))
	}
	return err
}
