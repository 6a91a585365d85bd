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
	"fmt"
	"time"

	sockaddr "github.com/hashicorp/go-sockaddr"

	"github.com/tochemey/hadb/internal/validation"
)

const (
	// DefaultJoinTimeout bounds the time spent joining the seed members
	DefaultJoinTimeout = 5 * time.Second
	// DefaultLeaveTimeout bounds the time spent announcing the departure of the member
	DefaultLeaveTimeout = time.Second
)

// Config represents the gossip channel configuration
type Config struct {
	// BindAddr is the address memberlist listens on. Defaults to the first private IP.
	BindAddr string
	// BindPort is the gossip port
	BindPort int
	// Seeds are the host:port gossip addresses of members to join
	Seeds []string
	// JoinTimeout overrides DefaultJoinTimeout
	JoinTimeout time.Duration
	// LeaveTimeout overrides DefaultLeaveTimeout
	LeaveTimeout time.Duration
}

// Validate checks whether the given channel configuration is valid
func (x Config) Validate() error {
	chain := validation.New(validation.FailFast()).
		AddAssertion(x.BindPort > 0 && x.BindPort < 65536, fmt.Sprintf("invalid gossip port %d", x.BindPort))
	for _, seed := range x.Seeds {
		chain = chain.AddValidator(validation.NewTCPAddressValidator(seed))
	}
	return chain.Validate()
}

func (x *Config) sanitize() error {
	if x.BindAddr == "" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return fmt.Errorf("failed to resolve the bind address: %w", err)
		}
		if ip == "" {
			ip = "127.0.0.1"
		}
		x.BindAddr = ip
	}
	if x.JoinTimeout <= 0 {
		x.JoinTimeout = DefaultJoinTimeout
	}
	if x.LeaveTimeout <= 0 {
		x.LeaveTimeout = DefaultLeaveTimeout
	}
	return nil
}
