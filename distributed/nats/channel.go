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

// Package nats implements the group channel on top of NATS core messaging.
// Commands are published on a cluster subject and answers are collected on a
// reply inbox; membership follows join requests and leave announcements.
package nats

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/flowchartsman/retry"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tochemey/hadb/distributed"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/codec"
	"github.com/tochemey/hadb/log"
)

type messageKind int

const (
	joinMessage messageKind = iota
	leaveMessage
	presentMessage
)

type membershipMessage struct {
	Kind   messageKind `msgpack:"kind"`
	Member string      `msgpack:"member"`
}

// Channel is a distributed.Channel backed by NATS
type Channel struct {
	*distributed.Dispatcher

	config  *Config
	id      string
	logger  log.Logger
	started *atomic.Bool
	mu      sync.Mutex

	connection    *nats.Conn
	subscriptions []*nats.Subscription
	members       goset.Set[string]

	ctx    context.Context
	cancel context.CancelFunc
}

// enforce compilation error
var _ distributed.Channel = (*Channel)(nil)

// NewChannel creates an instance of the NATS channel
func NewChannel(config *Config, opts ...Option) *Channel {
	channel := &Channel{
		Dispatcher: distributed.NewDispatcher(),
		config:     config,
		id:         uuid.NewString(),
		logger:     log.DefaultLogger,
		started:    atomic.NewBool(false),
		members:    goset.NewSet[string](),
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

// Start connects to the NATS server and joins the group
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started.Load() {
		return nil
	}

	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrInvalidConfig, err)
	}
	c.config.sanitize()

	opts := nats.GetDefaultOptions()
	opts.Url = c.config.Server
	opts.Name = c.id
	opts.ReconnectWait = 2 * time.Second
	opts.MaxReconnect = -1

	var (
		connection *nats.Conn
		err        error
	)

	// let us connect using an exponential backoff mechanism
	const maxRetries = 5
	retrier := retry.NewRetrier(maxRetries, 100*time.Millisecond, opts.ReconnectWait)
	if err := retrier.RunContext(ctx, func(context.Context) error {
		connection, err = opts.Connect()
		return err
	}); err != nil {
		return fmt.Errorf("failed to connect to nats server %s: %w", c.config.Server, err)
	}

	c.connection = connection
	c.ctx, c.cancel = context.WithCancel(context.Background())

	membership, err := connection.Subscribe(c.config.membershipSubject(), c.onMembership)
	if err != nil {
		c.close()
		return err
	}

	commands, err := connection.Subscribe(c.config.commandSubject(), c.onCommand)
	if err != nil {
		c.close()
		return err
	}

	c.subscriptions = []*nats.Subscription{membership, commands}
	if err := c.join(ctx); err != nil {
		c.close()
		return err
	}

	c.started.Store(true)
	c.logger.Infof("member %s joined cluster %s with %d peer(s)", c.id, c.config.Cluster, c.members.Cardinality())
	return nil
}

// Stop announces the departure of the member and closes the connection
func (c *Channel) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started.Load() {
		return nil
	}
	c.started.Store(false)

	var err error
	for _, subscription := range c.subscriptions {
		if subscription != nil && subscription.IsValid() {
			err = multierr.Append(err, subscription.Unsubscribe())
		}
	}

	bytea, encodeErr := codec.Encode(&membershipMessage{Kind: leaveMessage, Member: c.id})
	if encodeErr == nil {
		err = multierr.Append(err, c.connection.Publish(c.config.membershipSubject(), bytea))
		err = multierr.Append(err, c.connection.Flush())
	}

	c.close()
	c.members.Clear()
	c.logger.Infof("member %s left cluster %s", c.id, c.config.Cluster)
	return multierr.Append(err, encodeErr)
}

// Members returns the other members in view, sorted
func (c *Channel) Members() []string {
	members := c.members.ToSlice()
	sort.Strings(members)
	return members
}

// Broadcast publishes the command and collects the answer of every member in view
func (c *Channel) Broadcast(ctx context.Context, cmd *distributed.Command, timeout time.Duration) (map[string]*distributed.Response, error) {
	c.mu.Lock()
	connection := c.connection
	c.mu.Unlock()

	if !c.started.Load() || connection == nil {
		return nil, gerrors.ErrChannelNotStarted
	}

	expected := c.Members()
	responses := make(map[string]*distributed.Response, len(expected))
	if len(expected) == 0 {
		return responses, nil
	}

	cmd.Sender = c.id
	bytea, err := codec.Encode(cmd)
	if err != nil {
		return nil, err
	}

	inbox := nats.NewInbox()
	recv := make(chan *nats.Msg, len(expected))
	subscription, err := connection.ChanSubscribe(inbox, recv)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = subscription.Unsubscribe()
	}()

	if err := connection.PublishRequest(c.config.commandSubject(), inbox, bytea); err != nil {
		return nil, err
	}

	waiting := goset.NewThreadUnsafeSet(expected...)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for waiting.Cardinality() > 0 {
		select {
		case msg := <-recv:
			response := new(distributed.Response)
			if err := codec.Decode(msg.Data, response); err != nil {
				c.logger.Warnf("member %s dropped an undecodable response: %v", c.id, err)
				continue
			}
			if !waiting.Contains(response.Member) {
				continue
			}
			waiting.Remove(response.Member)
			responses[response.Member] = response
		case <-timer.C:
			return responses, distributed.Missing(expected, responses)
		case <-ctx.Done():
			return responses, multierr.Append(ctx.Err(), distributed.Missing(expected, responses))
		}
	}
	return responses, nil
}

// join announces the member and collects the presence of the members already in the group
func (c *Channel) join(ctx context.Context) error {
	bytea, err := codec.Encode(&membershipMessage{Kind: joinMessage, Member: c.id})
	if err != nil {
		return err
	}

	inbox := nats.NewInbox()
	recv := make(chan *nats.Msg, 64)
	subscription, err := c.connection.ChanSubscribe(inbox, recv)
	if err != nil {
		return err
	}
	defer func() {
		_ = subscription.Unsubscribe()
	}()

	if err := c.connection.PublishRequest(c.config.membershipSubject(), inbox, bytea); err != nil {
		return err
	}

	timer := time.NewTimer(c.config.JoinTimeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-recv:
			message := new(membershipMessage)
			if err := codec.Decode(msg.Data, message); err != nil || message.Kind != presentMessage {
				continue
			}
			c.addMember(message.Member)
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) onMembership(msg *nats.Msg) {
	message := new(membershipMessage)
	if err := codec.Decode(msg.Data, message); err != nil {
		c.logger.Warnf("member %s dropped an undecodable membership message: %v", c.id, err)
		return
	}

	if message.Member == c.id {
		return
	}

	switch message.Kind {
	case joinMessage:
		c.addMember(message.Member)
		if msg.Reply == "" {
			return
		}
		bytea, err := codec.Encode(&membershipMessage{Kind: presentMessage, Member: c.id})
		if err != nil {
			return
		}
		if err := msg.Respond(bytea); err != nil {
			c.logger.Warnf("member %s failed to answer the join of %s: %v", c.id, message.Member, err)
		}
	case leaveMessage:
		if c.members.Contains(message.Member) {
			c.members.Remove(message.Member)
			c.logger.Infof("member %s left cluster %s", message.Member, c.config.Cluster)
			c.Notify(distributed.MembershipEvent{Type: distributed.MemberLeft, Member: message.Member})
		}
	}
}

func (c *Channel) onCommand(msg *nats.Msg) {
	cmd := new(distributed.Command)
	if err := codec.Decode(msg.Data, cmd); err != nil {
		c.logger.Warnf("member %s dropped an undecodable command: %v", c.id, err)
		return
	}

	if cmd.Sender == c.id || msg.Reply == "" {
		return
	}

	// a sender unknown to this member joined while this member was starting
	c.addMember(cmd.Sender)

	go func() {
		response := c.Dispatch(c.ctx, c.id, cmd)
		bytea, err := codec.Encode(response)
		if err != nil {
			c.logger.Errorf("member %s failed to encode the response to %s: %v", c.id, cmd.Sender, err)
			return
		}
		if err := msg.Respond(bytea); err != nil {
			c.logger.Warnf("member %s failed to answer %s: %v", c.id, cmd.Sender, err)
		}
	}()
}

func (c *Channel) addMember(member string) {
	if member == "" || member == c.id {
		return
	}
	if c.members.Add(member) {
		c.logger.Infof("member %s joined cluster %s", member, c.config.Cluster)
		c.Notify(distributed.MembershipEvent{Type: distributed.MemberJoined, Member: member})
	}
}

func (c *Channel) close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.connection != nil {
		c.connection.Close()
		c.connection = nil
	}
	c.subscriptions = nil
}
