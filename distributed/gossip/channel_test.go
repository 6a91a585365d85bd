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

package gossip

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"

	"github.com/tochemey/hadb/distributed"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/log"
)

func newMember(t *testing.T, id string, port int, seeds ...string) *Channel {
	t.Helper()
	config := &Config{
		BindAddr: "127.0.0.1",
		BindPort: port,
		Seeds:    seeds,
	}
	return NewChannel(config, WithID(id), WithLogger(log.DiscardLogger))
}

func TestChannel(t *testing.T) {
	t.Run("With members exchanging commands", func(t *testing.T) {
		ctx := context.Background()
		ports := dynaport.Get(2)

		node1 := newMember(t, "node1", ports[0])
		node2 := newMember(t, "node2", ports[1], net.JoinHostPort("127.0.0.1", strconv.Itoa(ports[0])))

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

		require.Eventually(t, func() bool {
			return len(node1.Members()) == 1 && len(node2.Members()) == 1
		}, 5*time.Second, 100*time.Millisecond)
		assert.Equal(t, []string{"node2"}, node1.Members())

		responses, err := node1.Broadcast(ctx, &distributed.Command{Service: "echo", Payload: []byte("ping")}, 2*time.Second)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		require.NoError(t, responses["node2"].Err())
		assert.Equal(t, []byte("node1:ping"), responses["node2"].Payload)

		responses, err = node2.Broadcast(ctx, &distributed.Command{Service: "echo"}, 2*time.Second)
		require.NoError(t, err)
		require.Error(t, responses["node1"].Err())

		require.NoError(t, node2.Stop(ctx))
		require.Eventually(t, func() bool {
			return len(node1.Members()) == 0
		}, 5*time.Second, 100*time.Millisecond)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(events) == 2
		}, 5*time.Second, 100*time.Millisecond)

		mu.Lock()
		assert.Equal(t, distributed.MemberJoined, events[0].Type)
		assert.Equal(t, distributed.MemberLeft, events[1].Type)
		mu.Unlock()

		require.NoError(t, node1.Stop(ctx))
	})
	t.Run("With a member that does not answer in time", func(t *testing.T) {
		ctx := context.Background()
		ports := dynaport.Get(2)

		node1 := newMember(t, "node1", ports[0])
		node2 := newMember(t, "node2", ports[1], net.JoinHostPort("127.0.0.1", strconv.Itoa(ports[0])))

		release := make(chan struct{})
		node2.Handle("slow", func(context.Context, *distributed.Command) ([]byte, error) {
			<-release
			return nil, nil
		})

		require.NoError(t, node1.Start(ctx))
		require.NoError(t, node2.Start(ctx))
		require.Eventually(t, func() bool {
			return len(node1.Members()) == 1
		}, 5*time.Second, 100*time.Millisecond)

		responses, err := node1.Broadcast(ctx, &distributed.Command{Service: "slow"}, 300*time.Millisecond)
		close(release)
		require.ErrorIs(t, err, gerrors.ErrBroadcastIncomplete)
		require.Empty(t, responses)

		require.NoError(t, node2.Stop(ctx))
		require.NoError(t, node1.Stop(ctx))
	})
	t.Run("With an invalid configuration", func(t *testing.T) {
		channel := NewChannel(&Config{BindPort: -1}, WithLogger(log.DiscardLogger))
		require.ErrorIs(t, channel.Start(context.Background()), gerrors.ErrInvalidConfig)

		_, err := channel.Broadcast(context.Background(), &distributed.Command{}, time.Second)
		require.ErrorIs(t, err, gerrors.ErrChannelNotStarted)
	})
}
