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

package cluster

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/hadb/balancer"
	"github.com/tochemey/hadb/database"
	"github.com/tochemey/hadb/distributed"
	"github.com/tochemey/hadb/durability"
	"github.com/tochemey/hadb/lock"
	"github.com/tochemey/hadb/log"
	"github.com/tochemey/hadb/state"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(cl *Cluster)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(cl *Cluster)

// Apply applies the Cluster's option
func (f OptionFunc) Apply(c *Cluster) {
	f(c)
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.logger = logger
	})
}

// WithBalancer sets the balancer factory. Defaults to round-robin.
func WithBalancer(factory balancer.Factory) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.balancerFactory = factory
	})
}

// WithLockManager sets the lock manager.
// Defaults to a local manager, distributed over the channel when one is set.
func WithLockManager(manager lock.Manager) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.lockManager = manager
	})
}

// WithStateManager sets the state manager.
// Defaults to an in-memory manager, distributed over the channel when one is set.
func WithStateManager(manager state.Manager) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.stateManager = manager
	})
}

// WithChannel sets the group channel shared with the other processes
// accessing the same databases. The cluster starts and stops it.
func WithChannel(channel distributed.Channel) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.channel = channel
	})
}

// WithDurability sets the durability granularity. Defaults to durability.Coarse.
func WithDurability(value durability.Durability) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.durability = value
	})
}

// WithDurabilityLog sets the log holding the invocation records.
// Defaults to an in-memory log which does not survive the process.
func WithDurabilityLog(records durability.Log) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.durabilityLog = records
	})
}

// WithSynchronizer sets the synchronizer run before a database is activated
func WithSynchronizer(synchronizer database.Synchronizer) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.synchronizer = synchronizer
	})
}

// WithReplayer sets the replayer used by crash recovery
func WithReplayer(replayer durability.Replayer) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.replayer = replayer
	})
}

// WithFailureDetector sets the failure detector
func WithFailureDetector(detector FailureDetector) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.failureDetector = detector
	})
}

// WithReadPolicy sets the read policy
func WithReadPolicy(policy ReadPolicy) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.readPolicy = policy
	})
}

// WithDispatchTimeout sets the time a database is given to complete its part of an invocation
func WithDispatchTimeout(timeout time.Duration) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.dispatchTimeout = timeout
	})
}

// WithLockTimeout sets the lock acquisition timeout
func WithLockTimeout(timeout time.Duration) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.lockTimeout = timeout
	})
}

// WithPoolSizes sets the maximum number of workers of the transactional and
// non-transactional executors
func WithPoolSizes(transactional, nonTransactional int) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.transactionalPoolSize = transactional
		cl.nonTransactionalPoolSize = nonTransactional
	})
}

// WithHealthChecker sets the health checker used by the scheduled jobs
func WithHealthChecker(checker HealthChecker) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.healthChecker = checker
	})
}

// WithAutoActivation periodically activates the inactive databases passing the
// health check. The schedule is a quartz cron expression.
func WithAutoActivation(cronExpression string) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.autoActivation = cronExpression
	})
}

// WithFailureDetection periodically deactivates the active databases failing
// the health check. The schedule is a quartz cron expression.
func WithFailureDetection(cronExpression string) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.failureDetection = cronExpression
	})
}

// WithMeterProvider sets the meter provider of the cluster instruments
func WithMeterProvider(provider metric.MeterProvider) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.meterProvider = provider
	})
}

// WithShutdownTimeout sets the time given to the scheduled jobs to complete on Stop
func WithShutdownTimeout(timeout time.Duration) Option {
	return OptionFunc(func(cl *Cluster) {
		cl.shutdownTimeout = timeout
	})
}
