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
	"time"

	"github.com/tochemey/hadb/internal/validation"
)

const (
	// DefaultJoinTimeout is how long a joining member collects the presence of the existing members
	DefaultJoinTimeout = time.Second
	// DefaultSubjectPrefix is the prefix of every subject used by the channel
	DefaultSubjectPrefix = "hadb"
)

// Config represents the NATS channel configuration
type Config struct {
	// Server defines the nats server in the format nats://host:port
	Server string
	// Cluster is the name of the database cluster. Members of the same cluster share subjects.
	Cluster string
	// SubjectPrefix overrides DefaultSubjectPrefix
	SubjectPrefix string
	// JoinTimeout overrides DefaultJoinTimeout
	JoinTimeout time.Duration
}

// Validate checks whether the given channel configuration is valid
func (x Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Server", x.Server)).
		AddValidator(validation.NewEmptyStringValidator("Cluster", x.Cluster)).
		Validate()
}

func (x *Config) sanitize() {
	if x.SubjectPrefix == "" {
		x.SubjectPrefix = DefaultSubjectPrefix
	}
	if x.JoinTimeout <= 0 {
		x.JoinTimeout = DefaultJoinTimeout
	}
}

func (x *Config) membershipSubject() string {
	return x.SubjectPrefix + "." + x.Cluster + ".membership"
}

func (x *Config) commandSubject() string {
	return x.SubjectPrefix + "." + x.Cluster + ".commands"
}
