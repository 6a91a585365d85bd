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

// Package grouptest provides an in-process group network for tests of the
// components built on distributed.Channel.
package grouptest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tochemey/hadb/distributed"
)

// Network connects in-process channels
type Network struct {
	mu      sync.Mutex
	members map[string]*Channel
}

// NewNetwork creates an empty Network
func NewNetwork() *Network {
	return &Network{members: make(map[string]*Channel)}
}

// Join adds a member and notifies the existing ones
func (n *Network) Join(id string) *Channel {
	member := &Channel{
		Dispatcher: distributed.NewDispatcher(),
		id:         id,
		network:    n,
		mute:       atomic.NewBool(false),
		broadcasts: atomic.NewInt64(0),
	}

	n.mu.Lock()
	n.members[id] = member
	n.mu.Unlock()

	for _, peer := range n.peers(id) {
		peer.Notify(distributed.MembershipEvent{Type: distributed.MemberJoined, Member: id})
	}
	return member
}

// Leave removes a member and notifies the remaining ones
func (n *Network) Leave(id string) {
	n.mu.Lock()
	delete(n.members, id)
	n.mu.Unlock()

	for _, peer := range n.peers(id) {
		peer.Notify(distributed.MembershipEvent{Type: distributed.MemberLeft, Member: id})
	}
}

// Member returns the channel of the given member
func (n *Network) Member(id string) *Channel {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.members[id]
}

func (n *Network) peers(id string) []*Channel {
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := make([]*Channel, 0, len(n.members))
	for memberID, member := range n.members {
		if memberID != id {
			peers = append(peers, member)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].id < peers[j].id })
	return peers
}

// Channel is a member of a Network
type Channel struct {
	*distributed.Dispatcher
	id         string
	network    *Network
	mute       *atomic.Bool
	broadcasts *atomic.Int64
}

var _ distributed.Channel = (*Channel)(nil)

// Mute makes the member ignore every command, as if it were partitioned away
func (c *Channel) Mute(mute bool) {
	c.mute.Store(mute)
}

// Broadcasts returns the number of commands the member broadcast
func (c *Channel) Broadcasts() int64 {
	return c.broadcasts.Load()
}

// ID returns the member identifier
func (c *Channel) ID() string {
	return c.id
}

// Start is a no-op
func (c *Channel) Start(context.Context) error {
	return nil
}

// Stop is a no-op
func (c *Channel) Stop(context.Context) error {
	return nil
}

// Members returns the other members
func (c *Channel) Members() []string {
	peers := c.network.peers(c.id)
	members := make([]string, len(peers))
	for i, peer := range peers {
		members[i] = peer.id
	}
	return members
}

// Broadcast dispatches the command to every other member concurrently
func (c *Channel) Broadcast(ctx context.Context, cmd *distributed.Command, timeout time.Duration) (map[string]*distributed.Response, error) {
	c.broadcasts.Inc()
	cmd.Sender = c.id
	peers := c.network.peers(c.id)
	expected := make([]string, 0, len(peers))
	recv := make(chan *distributed.Response, len(peers))
	for _, peer := range peers {
		expected = append(expected, peer.id)
		if peer.mute.Load() {
			continue
		}
		go func() {
			copied := *cmd
			recv <- peer.Dispatch(context.Background(), peer.id, &copied)
		}()
	}

	responses := make(map[string]*distributed.Response, len(peers))
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for len(responses) < len(peers) {
		select {
		case response := <-recv:
			responses[response.Member] = response
		case <-timer.C:
			return responses, distributed.Missing(expected, responses)
		case <-ctx.Done():
			return responses, ctx.Err()
		}
	}
	return responses, nil
}
