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

// Package gossip implements the group channel on top of hashicorp/memberlist.
// Membership follows the gossip protocol events and commands travel as
// reliable user messages correlated by request id.
package gossip

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/hadb/distributed"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/codec"
	"github.com/tochemey/hadb/log"
)

type envelopeKind int

const (
	requestEnvelope envelopeKind = iota
	responseEnvelope
)

type envelope struct {
	Kind      envelopeKind          `msgpack:"kind"`
	RequestID string                `msgpack:"request_id"`
	From      string                `msgpack:"from"`
	Command   *distributed.Command  `msgpack:"command,omitempty"`
	Response  *distributed.Response `msgpack:"response,omitempty"`
}

// Channel is a distributed.Channel backed by memberlist
type Channel struct {
	*distributed.Dispatcher

	config  *Config
	id      string
	logger  log.Logger
	started *atomic.Bool
	mu      sync.Mutex

	mlist   *memberlist.Memberlist
	pending sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

// enforce compilation error
var _ distributed.Channel = (*Channel)(nil)

// NewChannel creates an instance of the gossip channel
func NewChannel(config *Config, opts ...Option) *Channel {
	channel := &Channel{
		Dispatcher: distributed.NewDispatcher(),
		config:     config,
		id:         uuid.NewString(),
		logger:     log.DefaultLogger,
		started:    atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(channel)
	}
	return channel
}

// ID returns the local member identifier
func (c *Channel) ID() string {
	return c.id
}

// Start creates the memberlist and joins the seed members
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started.Load() {
		return nil
	}

	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrInvalidConfig, err)
	}
	if err := c.config.sanitize(); err != nil {
		return err
	}

	events := make(chan memberlist.NodeEvent, 256)

	mconfig := memberlist.DefaultLANConfig()
	mconfig.Name = c.id
	mconfig.BindAddr = c.config.BindAddr
	mconfig.BindPort = c.config.BindPort
	mconfig.AdvertisePort = c.config.BindPort
	mconfig.LogOutput = newLogWriter(c.logger)
	mconfig.Delegate = &delegate{receive: c.receive}
	mconfig.Events = &memberlist.ChannelEventDelegate{Ch: events}

	mlist, err := memberlist.Create(mconfig)
	if err != nil {
		c.logger.Error(fmt.Errorf("failed to create the members list: %w", err))
		return err
	}

	if len(c.config.Seeds) > 0 {
		joinCtx, cancel := context.WithTimeout(ctx, c.config.JoinTimeout)
		defer cancel()
		retrier := retry.NewRetrier(5, 100*time.Millisecond, time.Second)
		if err := retrier.RunContext(joinCtx, func(context.Context) error {
			_, err := mlist.Join(c.config.Seeds)
			return err
		}); err != nil {
			_ = mlist.Shutdown()
			c.logger.Error(fmt.Errorf("failed to join the seed members: %w", err))
			return err
		}
	}

	c.mlist = mlist
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.started.Store(true)

	go c.eventsListener(events)

	c.logger.Infof("member %s started on %s:%d", c.id, c.config.BindAddr, c.config.BindPort)
	return nil
}

// Stop leaves the group and shuts memberlist down
func (c *Channel) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started.Load() {
		return nil
	}
	c.started.Store(false)
	c.cancel()

	err := multierr.Combine(
		c.mlist.Leave(c.config.LeaveTimeout),
		c.mlist.Shutdown(),
	)

	close(c.stop)
	<-c.done

	c.logger.Infof("member %s stopped", c.id)
	return err
}

// Members returns the other live members, sorted
func (c *Channel) Members() []string {
	mlist := c.memberlist()
	if mlist == nil {
		return nil
	}

	members := make([]string, 0, mlist.NumMembers())
	for _, node := range mlist.Members() {
		if node.Name != c.id {
			members = append(members, node.Name)
		}
	}
	sort.Strings(members)
	return members
}

// Broadcast sends the command to every live member and collects their answers
func (c *Channel) Broadcast(ctx context.Context, cmd *distributed.Command, timeout time.Duration) (map[string]*distributed.Response, error) {
	mlist := c.memberlist()
	if mlist == nil {
		return nil, gerrors.ErrChannelNotStarted
	}

	nodes := make([]*memberlist.Node, 0, mlist.NumMembers())
	expected := make([]string, 0, mlist.NumMembers())
	for _, node := range mlist.Members() {
		if node.Name != c.id {
			nodes = append(nodes, node)
			expected = append(expected, node.Name)
		}
	}

	responses := make(map[string]*distributed.Response, len(nodes))
	if len(nodes) == 0 {
		return responses, nil
	}

	cmd.Sender = c.id
	requestID := uuid.NewString()
	bytea, err := codec.Encode(&envelope{
		Kind:      requestEnvelope,
		RequestID: requestID,
		From:      c.id,
		Command:   cmd,
	})
	if err != nil {
		return nil, err
	}

	recv := make(chan *distributed.Response, len(nodes))
	c.pending.Store(requestID, recv)
	defer c.pending.Delete(requestID)

	eg := new(errgroup.Group)
	for _, node := range nodes {
		eg.Go(func() error {
			if err := mlist.SendReliable(node, bytea); err != nil {
				c.logger.Warnf("member %s failed to send %s/%s to %s: %v", c.id, cmd.Service, cmd.Name, node.Name, err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(responses) < len(nodes) {
		select {
		case response := <-recv:
			responses[response.Member] = response
		case <-timer.C:
			return responses, distributed.Missing(expected, responses)
		case <-ctx.Done():
			return responses, multierr.Append(ctx.Err(), distributed.Missing(expected, responses))
		}
	}
	return responses, nil
}

// memberlist returns the members list of a started channel.
// mlist is written before started flips to true and never reset.
func (c *Channel) memberlist() *memberlist.Memberlist {
	if !c.started.Load() {
		return nil
	}
	return c.mlist
}

// receive handles a user message delivered by memberlist
func (c *Channel) receive(bytea []byte) {
	message := new(envelope)
	if err := codec.Decode(bytea, message); err != nil {
		c.logger.Warnf("member %s dropped an undecodable message: %v", c.id, err)
		return
	}

	switch message.Kind {
	case responseEnvelope:
		if message.Response == nil {
			return
		}
		value, ok := c.pending.Load(message.RequestID)
		if !ok {
			return
		}
		select {
		case value.(chan *distributed.Response) <- message.Response:
		default:
		}
	case requestEnvelope:
		if message.Command == nil || !c.started.Load() {
			return
		}
		c.reply(message)
	}
}

func (c *Channel) reply(request *envelope) {
	response := c.Dispatch(c.ctx, c.id, request.Command)
	bytea, err := codec.Encode(&envelope{
		Kind:      responseEnvelope,
		RequestID: request.RequestID,
		From:      c.id,
		Response:  response,
	})
	if err != nil {
		c.logger.Errorf("member %s failed to encode the response to %s: %v", c.id, request.From, err)
		return
	}

	mlist := c.memberlist()
	if mlist == nil {
		return
	}
	for _, node := range mlist.Members() {
		if node.Name == request.From {
			if err := mlist.SendReliable(node, bytea); err != nil {
				c.logger.Warnf("member %s failed to answer %s: %v", c.id, request.From, err)
			}
			return
		}
	}
	c.logger.Warnf("member %s cannot answer %s: not a member anymore", c.id, request.From)
}

// eventsListener turns memberlist node events into membership events
func (c *Channel) eventsListener(events chan memberlist.NodeEvent) {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case event := <-events:
			if event.Node == nil || event.Node.Name == c.id {
				continue
			}

			switch event.Event {
			case memberlist.NodeJoin:
				c.logger.Infof("member %s joined", event.Node.Name)
				c.Notify(distributed.MembershipEvent{Type: distributed.MemberJoined, Member: event.Node.Name})
			case memberlist.NodeLeave:
				c.logger.Infof("member %s left", event.Node.Name)
				c.Notify(distributed.MembershipEvent{Type: distributed.MemberLeft, Member: event.Node.Name})
			case memberlist.NodeUpdate:
				continue
			}
		}
	}
}
