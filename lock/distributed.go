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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/tochemey/hadb/distributed"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/codec"
	"github.com/tochemey/hadb/log"
)

const (
	service        = "lock"
	acquireCommand = "acquire"
	releaseCommand = "release"
)

// broadcastMargin leaves room for the remote answer once the remote wait expired
const broadcastMargin = time.Second

type lockRequest struct {
	Name  string `msgpack:"name"`
	Owner string `msgpack:"owner"`
}

type remoteKey struct {
	member string
	name   string
	owner  string
}

// Distributed extends a Local manager across the members of a group channel.
// Shared locks stay local. An exclusive lock is acquired locally first and
// then on every other member on behalf of the requesting owner; it fails as a
// whole when any member refuses or does not answer.
type Distributed struct {
	local   *Local
	channel distributed.Channel
	logger  log.Logger

	mu        sync.Mutex
	remote    map[remoteKey][]Unlock
	inflight  map[remoteKey]int
	cancelled map[remoteKey]int
}

var _ Manager = (*Distributed)(nil)

// NewDistributed creates a Distributed lock manager
func NewDistributed(local *Local, channel distributed.Channel, opts ...DistributedOption) *Distributed {
	manager := &Distributed{
		local:     local,
		channel:   channel,
		logger:    log.DefaultLogger,
		remote:    make(map[remoteKey][]Unlock),
		inflight:  make(map[remoteKey]int),
		cancelled: make(map[remoteKey]int),
	}
	for _, opt := range opts {
		opt(manager)
	}

	channel.Handle(service, manager.handle)
	channel.OnMembershipChange(manager.onMembershipChange)
	return manager
}

// Start starts the underlying local manager
func (d *Distributed) Start(ctx context.Context) error {
	return d.local.Start(ctx)
}

// Stop releases every lock held on behalf of remote members
func (d *Distributed) Stop(ctx context.Context) error {
	d.mu.Lock()
	remote := d.remote
	d.remote = make(map[remoteKey][]Unlock)
	d.mu.Unlock()

	for _, unlocks := range remote {
		for _, unlock := range unlocks {
			unlock()
		}
	}
	return d.local.Stop(ctx)
}

// Lock acquires the named lock
func (d *Distributed) Lock(ctx context.Context, name string, mode Mode) (Unlock, error) {
	if mode == Shared {
		return d.local.Lock(ctx, name, mode)
	}

	owner, ok := OwnerFrom(ctx)
	if !ok {
		owner = uuid.NewString()
		ctx = WithOwner(ctx, owner)
	}

	unlock, nested, err := d.local.acquire(ctx, name, mode)
	if err != nil || nested {
		return unlock, err
	}

	request := &lockRequest{Name: name, Owner: owner}
	if err := d.broadcast(ctx, acquireCommand, request); err != nil {
		d.logger.Warnf("failed to acquire lock %s across the group: %v", name, err)
		if releaseErr := d.broadcast(context.WithoutCancel(ctx), releaseCommand, request); releaseErr != nil {
			d.logger.Warnf("failed to roll back lock %s across the group: %v", name, releaseErr)
		}
		unlock()
		return nil, fmt.Errorf("%w: %s %s: %w", gerrors.ErrLockTimeout, mode, name, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := d.broadcast(context.Background(), releaseCommand, request); err != nil {
				d.logger.Warnf("failed to release lock %s across the group: %v", name, err)
			}
			unlock()
		})
	}, nil
}

// broadcast sends a lock command and folds every member failure into one error
func (d *Distributed) broadcast(ctx context.Context, name string, request *lockRequest) error {
	payload, err := codec.Encode(request)
	if err != nil {
		return err
	}

	timeout := d.local.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	responses, err := d.channel.Broadcast(ctx, &distributed.Command{
		Service: service,
		Name:    name,
		Payload: payload,
	}, timeout+broadcastMargin)

	for member, response := range responses {
		if responseErr := response.Err(); responseErr != nil {
			err = multierr.Append(err, fmt.Errorf("member %s: %w", member, responseErr))
		}
	}
	return err
}

// handle executes the lock commands of other members
func (d *Distributed) handle(ctx context.Context, cmd *distributed.Command) ([]byte, error) {
	request := new(lockRequest)
	if err := codec.Decode(cmd.Payload, request); err != nil {
		return nil, err
	}

	key := remoteKey{member: cmd.Sender, name: request.Name, owner: request.Owner}
	switch cmd.Name {
	case acquireCommand:
		return nil, d.acquireRemote(ctx, key)
	case releaseCommand:
		d.releaseRemote(key)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown lock command %q", cmd.Name)
	}
}

func (d *Distributed) acquireRemote(ctx context.Context, key remoteKey) error {
	d.mu.Lock()
	d.inflight[key]++
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.local.timeout)
	defer cancel()

	owner := key.member + "/" + key.owner
	unlock, _, err := d.local.acquire(WithOwner(ctx, owner), key.name, Exclusive)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.inflight[key]--
	if d.inflight[key] <= 0 {
		delete(d.inflight, key)
	}

	if err != nil {
		return err
	}

	// the requester gave up while this member was waiting
	if d.cancelled[key] > 0 {
		d.cancelled[key]--
		if d.cancelled[key] == 0 {
			delete(d.cancelled, key)
		}
		unlock()
		return fmt.Errorf("lock %s released before acquisition completed", key.name)
	}

	d.remote[key] = append(d.remote[key], unlock)
	return nil
}

func (d *Distributed) releaseRemote(key remoteKey) {
	d.mu.Lock()
	unlocks := d.remote[key]
	if len(unlocks) == 0 {
		if d.inflight[key] > 0 {
			d.cancelled[key]++
		}
		d.mu.Unlock()
		return
	}

	unlock := unlocks[len(unlocks)-1]
	if len(unlocks) == 1 {
		delete(d.remote, key)
	} else {
		d.remote[key] = unlocks[:len(unlocks)-1]
	}
	d.mu.Unlock()

	unlock()
}

// onMembershipChange releases the locks held on behalf of a departed member
func (d *Distributed) onMembershipChange(event distributed.MembershipEvent) {
	if event.Type != distributed.MemberLeft {
		return
	}

	var unlocks []Unlock
	d.mu.Lock()
	for key, held := range d.remote {
		if key.member == event.Member {
			unlocks = append(unlocks, held...)
			delete(d.remote, key)
		}
	}
	d.mu.Unlock()

	for _, unlock := range unlocks {
		unlock()
	}

	if len(unlocks) > 0 {
		d.logger.Infof("released %d lock(s) held on behalf of departed member %s", len(unlocks), event.Member)
	}
}
