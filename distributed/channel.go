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

// Package distributed defines the group channel the cluster members of a
// process group use to exchange commands and follow membership.
package distributed

import (
	"context"
	"errors"
	"time"
)

// Command is a message broadcast to the other members of the group
type Command struct {
	// Service routes the command to the handler registered under that name
	Service string `msgpack:"service"`
	// Name identifies the operation within the service
	Name string `msgpack:"name"`
	// Sender is the identifier of the broadcasting member
	Sender string `msgpack:"sender"`
	// Payload is the service specific content
	Payload []byte `msgpack:"payload"`
}

// Response is the answer of one member to a Command
type Response struct {
	Member  string `msgpack:"member"`
	Payload []byte `msgpack:"payload"`
	Error   string `msgpack:"error"`
}

// Err returns the error reported by the member, if any
func (r *Response) Err() error {
	if r == nil || r.Error == "" {
		return nil
	}
	return errors.New(r.Error)
}

// Handler executes a Command received from another member and returns the
// payload sent back to the sender
type Handler func(ctx context.Context, cmd *Command) ([]byte, error)

// MembershipEventType states whether a member joined or left
type MembershipEventType int

const (
	MemberJoined MembershipEventType = iota
	MemberLeft
)

// String returns the event type name
func (x MembershipEventType) String() string {
	switch x {
	case MemberJoined:
		return "MemberJoined"
	case MemberLeft:
		return "MemberLeft"
	default:
		return "Unknown"
	}
}

// MembershipEvent is emitted when the group view changes
type MembershipEvent struct {
	Type   MembershipEventType
	Member string
}

// MembershipListener is notified of membership events
type MembershipListener func(event MembershipEvent)

// Channel is a process group channel
type Channel interface {
	// ID returns the identifier of the local member
	ID() string
	// Start joins the group
	Start(ctx context.Context) error
	// Stop leaves the group
	Stop(ctx context.Context) error
	// Members returns the identifiers of the other members currently in view
	Members() []string
	// Broadcast sends the command to every other member and waits for their answer up to timeout.
	// The returned map holds the collected responses keyed by member.
	// When a member does not answer in time the collected responses are returned
	// together with an error wrapping ErrBroadcastIncomplete.
	Broadcast(ctx context.Context, cmd *Command, timeout time.Duration) (map[string]*Response, error)
	// Handle registers the handler of a service. Handlers run in their own goroutine.
	Handle(service string, handler Handler)
	// OnMembershipChange registers a membership listener
	OnMembershipChange(listener MembershipListener)
}
