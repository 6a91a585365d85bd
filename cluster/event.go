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
	"sync"

	"github.com/tochemey/hadb/database"
)

// EventType defines the kind of membership event
type EventType int

const (
	// Activated is emitted when a database joins the active set
	Activated EventType = iota
	// Deactivated is emitted when a database leaves the active set
	Deactivated
	// Degraded is emitted when a database was deactivated because it failed
	// an invocation the other active databases completed
	Degraded
)

// String returns the string representation of the event type
func (x EventType) String() string {
	switch x {
	case Activated:
		return "activated"
	case Deactivated:
		return "deactivated"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Event is a cluster membership event
type Event struct {
	Type     EventType
	Database *database.Database
	// Cause is the failure behind a deactivation, when known
	Cause error
	// Active is the active set right after the change, sorted by id
	Active []string
}

// Listener receives the membership events of a cluster.
// Events are delivered synchronously in registration order.
type Listener interface {
	OnEvent(event Event)
}

// ListenerFunc implements Listener
type ListenerFunc func(event Event)

// OnEvent calls f(event)
func (f ListenerFunc) OnEvent(event Event) {
	f(event)
}

// ListenerID identifies a registered listener
type ListenerID uint64

// SynchronizationEvent describes the synchronization of a database being activated
type SynchronizationEvent struct {
	Source *database.Database
	Target *database.Database
	// Err is the synchronization failure. It is only set after synchronization.
	Err error
}

// SynchronizationListener is notified around the synchronization of a database being activated
type SynchronizationListener interface {
	BeforeSynchronization(event SynchronizationEvent)
	AfterSynchronization(event SynchronizationEvent)
}

type registration struct {
	id       ListenerID
	listener Listener
}

type listeners struct {
	mu      sync.RWMutex
	next    ListenerID
	members []registration
	syncs   []SynchronizationListener
}

func (x *listeners) add(listener Listener) ListenerID {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.next++
	x.members = append(x.members, registration{id: x.next, listener: listener})
	return x.next
}

func (x *listeners) remove(id ListenerID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, member := range x.members {
		if member.id == id {
			x.members = append(x.members[:i:i], x.members[i+1:]...)
			return true
		}
	}
	return false
}

func (x *listeners) addSync(listener SynchronizationListener) {
	x.mu.Lock()
	x.syncs = append(x.syncs, listener)
	x.mu.Unlock()
}

func (x *listeners) fire(event Event) {
	x.mu.RLock()
	members := x.members
	x.mu.RUnlock()
	for _, member := range members {
		member.listener.OnEvent(event)
	}
}

func (x *listeners) beforeSync(event SynchronizationEvent) {
	x.mu.RLock()
	syncs := x.syncs
	x.mu.RUnlock()
	for _, listener := range syncs {
		listener.BeforeSynchronization(event)
	}
}

func (x *listeners) afterSync(event SynchronizationEvent) {
	x.mu.RLock()
	syncs := x.syncs
	x.mu.RUnlock()
	for _, listener := range syncs {
		listener.AfterSynchronization(event)
	}
}
