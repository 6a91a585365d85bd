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

package nats

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/hadb/distributed"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/log"
)

func startNatsServer(t *testing.T) *natsserver.Server {
	t.Helper()
	serv, err := natsserver.NewServer(&natsserver.Options{
		Host: "127.0.0.1",
		Port: -1,
	})

	require.NoError(t, err)

	ready := make(chan bool)
	go func() {
		ready <- true
		serv.Start()
	}()
	<-ready

	if !serv.ReadyForConnections(2 * time.Second) {
		t.Fatalf("nats-io server failed to start")
	}

	return serv
}

func newMember(t *testing.T, serverAddr, id string) *Channel {
	t.Helper()
	config := &Config{
		Server:      fmt.Sprintf("nats://%s", serverAddr),
		Cluster:     "orders",
		JoinTimeout: 300 * time.Millisecond,
	}
	return NewChannel(config, WithID(id), WithLogger(log.DiscardLogger))
}

func TestChannel(t *testing.T) {
	t.Run("With members exchanging commands", func(t *testing.T) {
		ctx := context.Background()
		srv := startNatsServer(t)
		defer srv.Shutdown()

		node1 := newMember(t, srv.Addr().String(), "node1")
		node2 := newMember(t, srv.Addr().String(), "node2")

		var (
			mu     sync.Mutex
			events []distributed.MembershipEvent
		)
		node1.OnMembershipChange(func(event distributed.MembershipEvent) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		})

		node2.Handle("echo", func(_ context.Context, cmd *distributed.Command) ([]byte, error) {
			return append([]byte(cmd.Sender+":"), cmd.Payload...), nil
		})

		require.NoError(t, node1.Start(ctx))
		require.NoError(t, node2.Start(ctx))
		require.Equal(t, "node1", node1.ID())

		require.Eventually(t, func() bool {
			return len(node1.Members()) == 1 && len(node2.Members()) == 1
		}, 2*time.Second, 50*time.Millisecond)
		assert.Equal(t, []string{"node2"}, node1.Members())
		assert.Equal(t, []string{"node1"}, node2.Members())

		responses, err := node1.Broadcast(ctx, &distributed.Command{Service: "echo", Payload: []byte("ping")}, time.Second)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		require.NoError(t, responses["node2"].Err())
		assert.Equal(t, []byte("node1:ping"), responses["node2"].Payload)

		// node1 registered no handler
		responses, err = node2.Broadcast(ctx, &distributed.Command{Service: "echo"}, time.Second)
		require.NoError(t, err)
		require.Error(t, responses["node1"].Err())

		require.NoError(t, node2.Stop(ctx))
		require.Eventually(t, func() bool {
			return len(node1.Members()) == 0
		}, 2*time.Second, 50*time.Millisecond)

		mu.Lock()
		require.Len(t, events, 2)
		assert.Equal(t, distributed.MemberJoined, events[0].Type)
		assert.Equal(t, distributed.MemberLeft, events[1].Type)
		assert.Equal(t, "node2", events[1].Member)
		mu.Unlock()

		responses, err = node1.Broadcast(ctx, &distributed.Command{Service: "echo"}, time.Second)
		require.NoError(t, err)
		require.Empty(t, responses)
		require.NoError(t, node1.Stop(ctx))
	})
	t.Run("With a member that does not answer in time", func(t *testing.T) {
		ctx := context.Background()
		srv := startNatsServer(t)
		defer srv.Shutdown()

		node1 := newMember(t, srv.Addr().String(), "node1")
		node2 := newMember(t, srv.Addr().String(), "node2")
		node3 := newMember(t, srv.Addr().String(), "node3")

		release := make(chan struct{})
		node2.Handle("slow", func(context.Context, *distributed.Command) ([]byte, error) {
			<-release
			return nil, nil
		})
		node3.Handle("slow", func(context.Context, *distributed.Command) ([]byte, error) {
			return []byte("ok"), nil
		})

		require.NoError(t, node1.Start(ctx))
		require.NoError(t, node2.Start(ctx))
		require.NoError(t, node3.Start(ctx))
		require.Eventually(t, func() bool {
			return len(node1.Members()) == 2
		}, 2*time.Second, 50*time.Millisecond)

		responses, err := node1.Broadcast(ctx, &distributed.Command{Service: "slow"}, 300*time.Millisecond)
		close(release)
		require.ErrorIs(t, err, gerrors.ErrBroadcastIncomplete)
		require.Len(t, responses, 1)
		assert.Contains(t, responses, "node3")

		require.NoError(t, node3.Stop(ctx))
		require.NoError(t, node2.Stop(ctx))
		require.NoError(t, node1.Stop(ctx))
	})
	t.Run("With an invalid configuration", func(t *testing.T) {
		channel := NewChannel(&Config{}, WithLogger(log.DiscardLogger))
		err := channel.Start(context.Background())
		require.ErrorIs(t, err, gerrors.ErrInvalidConfig)
	})
	t.Run("Broadcast before start fails", func(t *testing.T) {
		channel := NewChannel(&Config{Server: "nats://127.0.0.1:4222", Cluster: "orders"})
		_, err := channel.Broadcast(context.Background(), &distributed.Command{}, time.Second)
		require.ErrorIs(t, err, gerrors.ErrChannelNotStarted)
	})
}
