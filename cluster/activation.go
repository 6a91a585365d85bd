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

package cluster

import (
	"context"
	"fmt"

	goset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/hadb/database"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/lock"
)

// Activate adds the given database to the active set.
//
// It returns false without any change when the database is already active.
// Otherwise the database is synchronized from the primary active database,
// unless none is active, under the exclusive cluster lock so that no
// invocation runs meanwhile.
func (c *Cluster) Activate(ctx context.Context, id string) (bool, error) {
	if !c.running.Load() {
		return false, gerrors.ErrClusterNotRunning
	}

	db, err := c.registry.Get(id)
	if err != nil {
		return false, err
	}

	if db.Active() {
		return false, nil
	}

	lockCtx, cancel := c.lockContext(ctx)
	defer cancel()

	unlock, err := c.lockManager.Lock(lockCtx, lock.Global, lock.Exclusive)
	if err != nil {
		return false, fmt.Errorf("failed to activate database %s: %w", id, err)
	}

	event, activated, err := c.activate(ctx, db)
	unlock()
	if err != nil || !activated {
		return false, err
	}

	c.logger.Infof("database %s activated", id)
	c.listeners.fire(event)
	return true, nil
}

func (c *Cluster) activate(ctx context.Context, db *database.Database) (Event, bool, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if db.Active() {
		return Event{}, false, nil
	}

	if source, err := c.balancer.Primary(); err == nil {
		event := SynchronizationEvent{Source: source, Target: db}
		c.listeners.beforeSync(event)
		event.Err = c.synchronizer.Synchronize(ctx, source, db)
		c.listeners.afterSync(event)
		if event.Err != nil {
			err := fmt.Errorf("%w: database %s from %s: %w", gerrors.ErrSynchronization, db.ID(), source.ID(), event.Err)
			c.logger.Warn(err)
			return Event{}, false, err
		}
	}

	if !c.registry.MarkActive(db) {
		return Event{}, false, nil
	}
	c.balancer.Add(db)
	c.telemetry.RecordActivation(ctx, db.ID())

	active := c.activeIDs()
	c.persist(ctx, active)
	return Event{Type: Activated, Database: db, Active: active}, true, nil
}

// Deactivate removes the given database from the active set.
//
// It returns false without any change when the database is already inactive.
// Deactivating the last active database is allowed: the cluster then rejects
// every invocation until a database is activated again.
func (c *Cluster) Deactivate(ctx context.Context, id string, cause error) (bool, error) {
	return c.deactivate(ctx, id, cause, false)
}

// Degrade deactivates a database that failed an invocation the other targets
// completed. On top of the deactivation event, listeners receive a degraded event.
func (c *Cluster) Degrade(ctx context.Context, id string, cause error) (bool, error) {
	return c.deactivate(ctx, id, cause, true)
}

func (c *Cluster) deactivate(ctx context.Context, id string, cause error, degraded bool) (bool, error) {
	if !c.running.Load() {
		return false, gerrors.ErrClusterNotRunning
	}

	db, err := c.registry.Get(id)
	if err != nil {
		return false, err
	}

	c.stateMu.Lock()
	if !c.registry.MarkInactive(db) {
		c.stateMu.Unlock()
		return false, nil
	}
	c.balancer.Remove(db)
	c.telemetry.RecordDeactivation(ctx, id)
	active := c.activeIDs()
	c.persist(ctx, active)
	c.stateMu.Unlock()

	if cause != nil {
		c.logger.Warnf("database %s deactivated: %v", id, cause)
	} else {
		c.logger.Infof("database %s deactivated", id)
	}

	c.listeners.fire(Event{Type: Deactivated, Database: db, Cause: cause, Active: active})
	if degraded {
		c.listeners.fire(Event{Type: Degraded, Database: db, Cause: cause, Active: active})
	}
	return true, nil
}

// Apply reconciles the membership with the active set decided by another
// member of the group. Databases are neither synchronized nor is the set
// persisted or shared again: the deciding member did both.
func (c *Cluster) Apply(ctx context.Context, ids []string) error {
	if !c.running.Load() {
		c.logger.Debugf("ignoring active set %v received before start", ids)
		return nil
	}

	wanted := goset.NewThreadUnsafeSet(ids...)
	for _, id := range ids {
		if _, err := c.registry.Get(id); err != nil {
			c.logger.Warnf("received active set names unknown database %s", id)
		}
	}

	c.stateMu.Lock()
	var events []Event
	for _, db := range c.registry.All() {
		switch {
		case wanted.Contains(db.ID()):
			if c.registry.MarkActive(db) {
				c.balancer.Add(db)
				c.telemetry.RecordActivation(ctx, db.ID())
				events = append(events, Event{Type: Activated, Database: db})
			}
		default:
			if c.registry.MarkInactive(db) {
				c.balancer.Remove(db)
				c.telemetry.RecordDeactivation(ctx, db.ID())
				events = append(events, Event{Type: Deactivated, Database: db})
			}
		}
	}
	active := c.activeIDs()
	c.stateMu.Unlock()

	if len(events) > 0 {
		c.logger.Infof("applied active set %v", active)
	}

	for _, event := range events {
		event.Active = active
		c.listeners.fire(event)
	}
	return nil
}

// lockContext bounds the lock acquisition with the cluster lock timeout
// when ctx has no deadline
func (c *Cluster) lockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.lockTimeout)
}
