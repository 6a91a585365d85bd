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

package distributed

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	gerrors "github.com/tochemey/hadb/errors"
)

// Dispatcher routes incoming commands to registered handlers and fans
// membership events out to listeners. Channel implementations embed it.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	listeners []MembershipListener
}

// NewDispatcher creates a Dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Handle registers the handler of a service
func (d *Dispatcher) Handle(service string, handler Handler) {
	d.mu.Lock()
	d.handlers[service] = handler
	d.mu.Unlock()
}

// OnMembershipChange registers a membership listener
func (d *Dispatcher) OnMembershipChange(listener MembershipListener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, listener)
	d.mu.Unlock()
}

// Dispatch executes cmd against its handler and builds the response of member
func (d *Dispatcher) Dispatch(ctx context.Context, member string, cmd *Command) *Response {
	d.mu.RLock()
	handler, ok := d.handlers[cmd.Service]
	d.mu.RUnlock()

	response := &Response{Member: member}
	if !ok {
		response.Error = fmt.Sprintf("no handler registered for service %q", cmd.Service)
		return response
	}

	payload, err := handler(ctx, cmd)
	if err != nil {
		response.Error = err.Error()
		return response
	}
	response.Payload = payload
	return response
}

// Notify delivers a membership event to the listeners in registration order
func (d *Dispatcher) Notify(event MembershipEvent) {
	d.mu.RLock()
	listeners := slices.Clone(d.listeners)
	d.mu.RUnlock()
	for _, listener := range listeners {
		listener(event)
	}
}

// Missing returns an error naming the expected members absent from responses
func Missing(expected []string, responses map[string]*Response) error {
	var missing []string
	for _, member := range expected {
		if _, ok := responses[member]; !ok {
			missing = append(missing, member)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &gerrors.MissingMembersError{Members: missing}
}
