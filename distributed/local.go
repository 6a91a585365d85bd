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
	"time"

	"github.com/google/uuid"
)

// Local is the channel of a single node group. It has no other member, so
// broadcasts complete immediately with no response.
type Local struct {
	*Dispatcher
	id string
}

var _ Channel = (*Local)(nil)

// NewLocal creates a Local channel
func NewLocal() *Local {
	return &Local{
		Dispatcher: NewDispatcher(),
		id:         uuid.NewString(),
	}
}

// ID returns the local member identifier
func (x *Local) ID() string {
	return x.id
}

// Start is a no-op
func (x *Local) Start(context.Context) error {
	return nil
}

// Stop is a no-op
func (x *Local) Stop(context.Context) error {
	return nil
}

// Members returns no member
func (x *Local) Members() []string {
	return nil
}

// Broadcast returns an empty response set
func (x *Local) Broadcast(context.Context, *Command, time.Duration) (map[string]*Response, error) {
	return map[string]*Response{}, nil
}
