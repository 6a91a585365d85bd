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
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tochemey/hadb/distributed"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/codec"
	"github.com/tochemey/hadb/log"
)

const (
	service      = "state"
	storeCommand = "store"
	loadCommand  = "load"

	// DefaultBroadcastTimeout bounds the wait for the answers of the other members
	DefaultBroadcastTimeout = 5 * time.Second
)

// Distributed shares the active set with the other members of a group.
// Store persists locally and pushes the set to every member, which applies it
// without pushing it further. Load prefers the view of a running member over
// the local one.
type Distributed struct {
	local   Manager
	channel distributed.Channel
	logger  log.Logger
	timeout time.Duration

	mu      sync.RWMutex
	applier Applier
}

var _ Manager = (*Distributed)(nil)

// DistributedOption configures a Distributed state manager
type DistributedOption func(*Distributed)

// WithLogger sets the logger
func WithLogger(logger log.Logger) DistributedOption {
	return func(d *Distributed) {
		d.logger = logger
	}
}

// WithBroadcastTimeout sets the broadcast timeout
func WithBroadcastTimeout(timeout time.Duration) DistributedOption {
	return func(d *Distributed) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDistributed creates a Distributed state manager
func NewDistributed(local Manager, channel distributed.Channel, opts ...DistributedOption) *Distributed {
	manager := &Distributed{
		local:   local,
		channel: channel,
		logger:  log.DefaultLogger,
		timeout: DefaultBroadcastTimeout,
	}
	for _, opt := range opts {
		opt(manager)
	}
	channel.Handle(service, manager.handle)
	return manager
}

// SetApplier registers the component applying the active sets received from other members
func (d *Distributed) SetApplier(applier Applier) {
	d.mu.Lock()
	d.applier = applier
	d.mu.Unlock()
}

// Start starts the local manager
func (d *Distributed) Start(ctx context.Context) error {
	return d.local.Start(ctx)
}

// Stop stops the local manager
func (d *Distributed) Stop(ctx context.Context) error {
	return d.local.Stop(ctx)
}

// Load returns the active set of the first member answering with a non-empty
// set, falling back to the locally persisted one. When nothing was persisted
// locally, an empty set persisted by another member is returned.
func (d *Distributed) Load(ctx context.Context) ([]string, error) {
	responses, err := d.channel.Broadcast(ctx, &distributed.Command{Service: service, Name: loadCommand}, d.timeout)
	if err != nil {
		d.logger.Warnf("failed to collect the active set of every member: %v", err)
	}

	members := make([]string, 0, len(responses))
	for member := range responses {
		members = append(members, member)
	}
	sort.Strings(members)

	inert := ""
	for _, member := range members {
		response := responses[member]
		if response.Err() != nil || len(response.Payload) == 0 {
			continue
		}
		var ids []string
		if err := codec.Decode(response.Payload, &ids); err != nil {
			d.logger.Warnf("member %s answered an undecodable active set: %v", member, err)
			continue
		}
		if len(ids) > 0 {
			d.logger.Infof("loaded the active set %v from member %s", ids, member)
			return ids, nil
		}
		if inert == "" {
			inert = member
		}
	}

	ids, err := d.local.Load(ctx)
	if errors.Is(err, gerrors.ErrNoState) && inert != "" {
		d.logger.Infof("loaded an empty active set from member %s", inert)
		return []string{}, nil
	}
	return ids, err
}

// Store persists the active set locally and pushes it to the other members
func (d *Distributed) Store(ctx context.Context, ids []string) error {
	ids = normalize(ids)
	if err := d.local.Store(ctx, ids); err != nil {
		return err
	}

	payload, err := codec.Encode(ids)
	if err != nil {
		return err
	}

	responses, err := d.channel.Broadcast(ctx, &distributed.Command{
		Service: service,
		Name:    storeCommand,
		Payload: payload,
	}, d.timeout)
	if err != nil {
		return fmt.Errorf("failed to share the active set: %w", err)
	}

	for member, response := range responses {
		if responseErr := response.Err(); responseErr != nil {
			return fmt.Errorf("member %s failed to apply the active set: %w", member, responseErr)
		}
	}
	return nil
}

func (d *Distributed) handle(ctx context.Context, cmd *distributed.Command) ([]byte, error) {
	switch cmd.Name {
	case loadCommand:
		ids, err := d.local.Load(ctx)
		switch {
		case errors.Is(err, gerrors.ErrNoState):
			// an empty answer stands for no active set
			return nil, nil
		case err != nil:
			return nil, err
		}
		return codec.Encode(normalize(ids))
	case storeCommand:
		var ids []string
		if err := codec.Decode(cmd.Payload, &ids); err != nil {
			return nil, err
		}
		if err := d.local.Store(ctx, ids); err != nil {
			return nil, err
		}

		d.mu.RLock()
		applier := d.applier
		d.mu.RUnlock()
		if applier != nil {
			return nil, applier.Apply(ctx, ids)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown state command %q", cmd.Name)
	}
}
