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

// Package proxy keeps the per-database resources behind one logical resource,
// such as the connections behind a logical connection, in step with the
// active set of a cluster.
//
// A Root owns one resource per active database and an arena of children
// derived from it. When a database leaves the active set the root prunes its
// resource and the resources of every child; operations against a pruned
// resource fail with errors.ErrStaleReference.
package proxy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/multierr"

	"github.com/tochemey/hadb/cluster"
	"github.com/tochemey/hadb/database"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/invoker"
)

// ConnectFunc creates the resource of a database
type ConnectFunc[T any] func(ctx context.Context, db *database.Database) (T, error)

// Cluster is the part of a database cluster a root relies on
type Cluster interface {
	invoker.Cluster
	AddListener(listener cluster.Listener) cluster.ListenerID
	RemoveListener(id cluster.ListenerID) bool
}

// Root is a logical resource backed by one resource per active database
type Root[T any] struct {
	cluster  Cluster
	connect  ConnectFunc[T]
	arena    *arena
	listener cluster.ListenerID

	mu        sync.RWMutex
	resources map[string]T
	closed    bool
}

var _ Parent[any] = (*Root[any])(nil)

// Open creates a resource for every active database of the cluster.
// Databases whose resource cannot be created are deactivated when others
// succeed; Open fails when none succeeds.
func Open[T any](ctx context.Context, cl Cluster, connect ConnectFunc[T]) (*Root[T], error) {
	root := &Root[T]{
		cluster:   cl,
		connect:   connect,
		arena:     newArena(),
		resources: make(map[string]T),
	}

	// registered first so that no activation is missed
	root.listener = cl.AddListener(cluster.ListenerFunc(root.onEvent))

	targets := cl.Balancer().All()
	if len(targets) == 0 {
		cl.RemoveListener(root.listener)
		return nil, gerrors.ErrNoActiveDatabase
	}

	failures := make(map[string]error)
	for _, db := range targets {
		if err := root.attach(ctx, db); err != nil {
			failures[db.ID()] = err
		}
	}

	if len(failures) == len(targets) {
		_ = root.Close()
		return nil, gerrors.NewInvocationError(failures)
	}

	for id, err := range failures {
		if _, deactivateErr := cl.Degrade(ctx, id, err); deactivateErr != nil {
			cl.Logger().Warnf("failed to deactivate database %s: %v", id, deactivateErr)
		}
	}
	return root, nil
}

// Get returns the resource of the given database
func (r *Root[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resource, ok := r.resources[id]
	return resource, ok
}

// Databases returns the databases the root holds a resource for
func (r *Root[T]) Databases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.resources))
}

// Cluster returns the cluster of the root
func (r *Root[T]) Cluster() Cluster {
	return r.cluster
}

// Children returns the number of live children
func (r *Root[T]) Children() int {
	return r.arena.len()
}

// Retain keeps the resources of the given databases only, in the root and
// in every child. Pruned resources implementing io.Closer are closed.
func (r *Root[T]) Retain(active []string) error {
	keep := goset.NewThreadUnsafeSet(active...)

	r.mu.Lock()
	err := prune(r.resources, keep)
	r.mu.Unlock()

	for _, child := range r.arena.members() {
		child.retain(keep)
	}
	return err
}

// Close releases every child and every resource and stops following the cluster
func (r *Root[T]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	resources := r.resources
	r.resources = make(map[string]T)
	r.mu.Unlock()

	r.cluster.RemoveListener(r.listener)

	var err error
	for _, child := range r.arena.members() {
		err = multierr.Append(err, child.release())
	}
	for _, resource := range resources {
		err = multierr.Append(err, closeResource(resource))
	}
	return err
}

func (r *Root[T]) root() (Cluster, *arena) {
	return r.cluster, r.arena
}

func (r *Root[T]) attach(ctx context.Context, db *database.Database) error {
	if _, ok := r.Get(db.ID()); ok {
		return nil
	}

	resource, err := r.connect(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to connect to database %s: %w", db.ID(), err)
	}

	r.mu.Lock()
	_, exists := r.resources[db.ID()]
	if r.closed || exists {
		r.mu.Unlock()
		return closeResource(resource)
	}
	r.resources[db.ID()] = resource
	r.mu.Unlock()
	return nil
}

func (r *Root[T]) onEvent(event cluster.Event) {
	switch event.Type {
	case cluster.Activated:
		if err := r.attach(context.Background(), event.Database); err != nil {
			r.cluster.Logger().Warnf("failed to attach activated database %s: %v", event.Database.ID(), err)
		}
	case cluster.Deactivated:
		if err := r.Retain(event.Active); err != nil {
			r.cluster.Logger().Warnf("failed to release the resources of database %s: %v", event.Database.ID(), err)
		}
	}
}
