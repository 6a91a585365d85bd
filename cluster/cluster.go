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

// Package cluster implements the membership of a database cluster: which of
// the configured databases are active, how they get activated and deactivated,
// and the collaborators invocations rely on.
package cluster

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/reugn/go-quartz/quartz"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/hadb/balancer"
	"github.com/tochemey/hadb/database"
	"github.com/tochemey/hadb/distributed"
	"github.com/tochemey/hadb/durability"
	gerrors "github.com/tochemey/hadb/errors"
	"github.com/tochemey/hadb/internal/validation"
	"github.com/tochemey/hadb/internal/workerpool"
	"github.com/tochemey/hadb/lock"
	"github.com/tochemey/hadb/log"
	"github.com/tochemey/hadb/state"
	"github.com/tochemey/hadb/telemetry"
)

const (
	// DefaultDispatchTimeout is the default time a database is given to complete its part of an invocation
	DefaultDispatchTimeout = 30 * time.Second
	// DefaultShutdownTimeout is the default time given to the scheduled jobs to complete on Stop
	DefaultShutdownTimeout = 5 * time.Second

	autoActivationJob   = "auto-activation"
	failureDetectionJob = "failure-detection"
)

// Executor runs the per-database tasks of an invocation
type Executor interface {
	Submit(ctx context.Context, task func()) error
}

// Cluster is a set of databases presented as one logical database.
//
// Each configured database is either active or inactive. Invocations only
// target active databases. Activation synchronizes the database with an
// active peer under the exclusive cluster lock; deactivation takes the
// database out of the active set right away. Every change is persisted
// through the state manager and announced to the listeners.
type Cluster struct {
	id       string
	registry *database.Registry
	balancer balancer.Balancer

	balancerFactory balancer.Factory
	lockManager     lock.Manager
	stateManager    state.Manager
	channel         distributed.Channel

	durability    durability.Durability
	durabilityLog durability.Log
	tracker       *durability.Tracker
	synchronizer  database.Synchronizer
	replayer      durability.Replayer

	failureDetector FailureDetector
	readPolicy      ReadPolicy
	dispatchTimeout time.Duration
	lockTimeout     time.Duration
	shutdownTimeout time.Duration

	transactionalPoolSize    int
	nonTransactionalPoolSize int
	transactional            *workerpool.WorkerPool
	nonTransactional         *workerpool.WorkerPool

	healthChecker    HealthChecker
	autoActivation   string
	failureDetection string
	scheduler        *scheduler

	meterProvider metric.MeterProvider
	telemetry     *telemetry.Telemetry

	logger    log.Logger
	listeners *listeners

	// mu serializes Start and Stop
	mu sync.Mutex
	// stateMu serializes the changes of the active set
	stateMu sync.Mutex
	running *atomic.Bool
}

var _ state.Applier = (*Cluster)(nil)

// New creates a Cluster of the given databases
func New(id string, databases []*database.Database, opts ...Option) (*Cluster, error) {
	registry, err := database.NewRegistry(databases...)
	if err != nil {
		return nil, err
	}

	cl := &Cluster{
		id:              id,
		registry:        registry,
		balancerFactory: balancer.Factory(func() balancer.Balancer { return balancer.NewRoundRobin() }),
		durability:      durability.Coarse,
		synchronizer:    database.PassiveSynchronizer,
		failureDetector: DefaultFailureDetector,
		readPolicy:      SingleAttempt,
		dispatchTimeout: DefaultDispatchTimeout,
		lockTimeout:     lock.DefaultTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          log.DefaultLogger,
		listeners:       &listeners{},
		running:         atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(cl)
	}

	if err := cl.validate(); err != nil {
		return nil, err
	}

	cl.logger = cl.logger.With("cluster", cl.id)
	cl.balancer = cl.balancerFactory()

	if cl.lockManager == nil {
		local := lock.NewLocal(lock.WithTimeout(cl.lockTimeout))
		cl.lockManager = local
		if cl.channel != nil {
			cl.lockManager = lock.NewDistributed(local, cl.channel, lock.WithLogger(cl.logger))
		}
	}

	if cl.stateManager == nil {
		cl.stateManager = state.NewMemory()
		if cl.channel != nil {
			cl.stateManager = state.NewDistributed(cl.stateManager, cl.channel, state.WithLogger(cl.logger))
		}
	}

	if applied, ok := cl.stateManager.(interface{ SetApplier(state.Applier) }); ok {
		applied.SetApplier(cl)
	}

	if cl.durabilityLog == nil {
		cl.durabilityLog = durability.NewMemoryLog()
	}
	cl.tracker = durability.NewTracker(cl.durabilityLog, cl.durability, cl.logger)

	var telemetryOpts []telemetry.Option
	if cl.meterProvider != nil {
		telemetryOpts = append(telemetryOpts, telemetry.WithMeterProvider(cl.meterProvider))
	}
	if cl.telemetry, err = telemetry.New(telemetryOpts...); err != nil {
		return nil, err
	}

	return cl, nil
}

func (c *Cluster) validate() error {
	chain := validation.New(validation.AllErrors()).
		AddValidator(validation.NewEmptyStringValidator("cluster id", c.id)).
		AddAssertion(c.balancerFactory != nil, "the balancer is required").
		AddAssertion(c.synchronizer != nil, "the synchronizer is required").
		AddAssertion(c.failureDetector != nil, "the failure detector is required").
		AddAssertion(c.logger != nil, "the logger is required").
		AddValidator(validation.NewPositiveDurationValidator("dispatch timeout", c.dispatchTimeout)).
		AddValidator(validation.NewPositiveDurationValidator("lock timeout", c.lockTimeout)).
		AddValidator(validation.NewPositiveDurationValidator("shutdown timeout", c.shutdownTimeout))

	for _, expression := range []string{c.autoActivation, c.failureDetection} {
		if expression == "" {
			continue
		}
		chain.AddAssertion(c.healthChecker != nil, "the health checker is required by the scheduled jobs")
		chain.AddValidator(newCronValidator(expression))
	}

	if err := chain.Validate(); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrInvalidConfig, err)
	}
	return nil
}

// Start starts the collaborators, reconciles the databases left behind by a
// previous run and activates the databases of the persisted active set.
// With no persisted set every configured database is activated. A persisted
// empty set, left when the last database was deactivated, activates the
// preferred database and synchronizes the others from it.
func (c *Cluster) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return gerrors.ErrClusterAlreadyRunning
	}

	c.logger.Infof("starting database cluster %s...", c.id)

	if err := c.startCollaborators(ctx); err != nil {
		c.logger.Error(fmt.Errorf("failed to start database cluster %s: %w", c.id, err))
		return multierr.Append(err, c.stopCollaborators(ctx))
	}

	candidates, inert, err := c.candidates(ctx)
	if err != nil {
		return multierr.Append(err, c.stopCollaborators(ctx))
	}

	report, err := durability.Recover(ctx, c.durabilityLog, durability.RecoveryConfig{
		Candidates:   candidates,
		Synchronizer: c.synchronizer,
		Replayer:     c.replayer,
		Logger:       c.logger,
	})
	if err != nil {
		err = fmt.Errorf("failed to recover database cluster %s: %w", c.id, err)
		c.logger.Error(err)
		return multierr.Append(err, c.stopCollaborators(ctx))
	}

	// a database call ignoring its context must not hold the shutdown
	poolOpts := []workerpool.Option{workerpool.WithLogger(c.logger), workerpool.WithStopTimeout(c.shutdownTimeout)}
	c.transactional = workerpool.New(c.id+"-transactional", c.transactionalPoolSize, poolOpts...)
	c.nonTransactional = workerpool.New(c.id+"-non-transactional", c.nonTransactionalPoolSize, poolOpts...)
	c.transactional.Start()
	c.nonTransactional.Start()

	c.stateMu.Lock()
	var activated, lagging []*database.Database
	for _, db := range candidates {
		if report.Failed.Contains(db.ID()) {
			c.logger.Warnf("database %s could not be reconciled and stays inactive", db.ID())
			continue
		}
		if inert && len(activated) > 0 {
			lagging = append(lagging, db)
			continue
		}
		if c.registry.MarkActive(db) {
			c.balancer.Add(db)
			c.telemetry.RecordActivation(ctx, db.ID())
			activated = append(activated, db)
		}
	}
	c.persist(ctx, c.activeIDs())
	c.stateMu.Unlock()

	// no invocation runs before the cluster is running
	for _, db := range lagging {
		if _, ok, err := c.activate(ctx, db); err == nil && ok {
			activated = append(activated, db)
		}
	}
	active := c.activeIDs()

	c.running.Store(true)

	if err := c.startJobs(ctx); err != nil {
		c.running.Store(false)
		c.stopPools()
		c.resetMembership()
		return multierr.Append(err, c.stopCollaborators(ctx))
	}

	c.logger.Infof("database cluster %s started with active databases %v", c.id, active)

	for _, db := range activated {
		c.listeners.fire(Event{Type: Activated, Database: db, Active: active})
	}
	return nil
}

// Stop stops the scheduled jobs, the executors and the collaborators.
// The persisted active set is left untouched so that the next Start resumes it.
func (c *Cluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Swap(false) {
		return nil
	}

	c.logger.Infof("stopping database cluster %s...", c.id)

	if c.scheduler != nil {
		c.scheduler.Stop(ctx)
		c.scheduler = nil
	}

	c.stopPools()
	c.resetMembership()

	if err := c.stopCollaborators(ctx); err != nil {
		c.logger.Error(fmt.Errorf("failed to stop database cluster %s cleanly: %w", c.id, err))
		return err
	}

	c.logger.Infof("database cluster %s stopped", c.id)
	return nil
}

// IsRunning returns true when the cluster is started
func (c *Cluster) IsRunning() bool {
	return c.running.Load()
}

// ID returns the cluster identifier
func (c *Cluster) ID() string {
	return c.id
}

// Registry returns the configured databases
func (c *Cluster) Registry() *database.Registry {
	return c.registry
}

// Balancer returns the active databases
func (c *Cluster) Balancer() balancer.Balancer {
	return c.balancer
}

// LockManager returns the lock manager
func (c *Cluster) LockManager() lock.Manager {
	return c.lockManager
}

// StateManager returns the state manager
func (c *Cluster) StateManager() state.Manager {
	return c.stateManager
}

// Tracker returns the durability tracker
func (c *Cluster) Tracker() *durability.Tracker {
	return c.tracker
}

// FailureDetector returns the failure detector
func (c *Cluster) FailureDetector() FailureDetector {
	return c.failureDetector
}

// ReadPolicy returns the read policy
func (c *Cluster) ReadPolicy() ReadPolicy {
	return c.readPolicy
}

// DispatchTimeout returns the time a database is given to complete its part of an invocation
func (c *Cluster) DispatchTimeout() time.Duration {
	return c.dispatchTimeout
}

// LockTimeout returns the lock acquisition timeout
func (c *Cluster) LockTimeout() time.Duration {
	return c.lockTimeout
}

// Telemetry returns the cluster instruments
func (c *Cluster) Telemetry() *telemetry.Telemetry {
	return c.telemetry
}

// Logger returns the cluster logger
func (c *Cluster) Logger() log.Logger {
	return c.logger
}

// Executor returns the executor running the invocations of the given kind.
// Non-transactional writes have their own executor; statements inside a
// transaction and transaction boundaries share the transactional one.
func (c *Cluster) Executor(kind durability.Kind) Executor {
	if kind == durability.NonTransactional {
		return c.nonTransactional
	}
	return c.transactional
}

// Degraded returns true when some configured database is inactive
func (c *Cluster) Degraded() bool {
	return c.balancer.Len() < c.registry.Len()
}

// AddListener registers a membership listener
func (c *Cluster) AddListener(listener Listener) ListenerID {
	return c.listeners.add(listener)
}

// RemoveListener unregisters a membership listener
func (c *Cluster) RemoveListener(id ListenerID) bool {
	return c.listeners.remove(id)
}

// AddSynchronizationListener registers a synchronization listener
func (c *Cluster) AddSynchronizationListener(listener SynchronizationListener) {
	c.listeners.addSync(listener)
}

func (c *Cluster) startCollaborators(ctx context.Context) error {
	if c.channel != nil {
		if err := c.channel.Start(ctx); err != nil {
			return fmt.Errorf("failed to start the group channel: %w", err)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.lockManager.Start(ctx)
	})
	eg.Go(func() error {
		return c.stateManager.Start(ctx)
	})
	eg.Go(func() error {
		return c.durabilityLog.Open(ctx)
	})
	return eg.Wait()
}

func (c *Cluster) stopCollaborators(ctx context.Context) error {
	err := multierr.Combine(
		c.lockManager.Stop(ctx),
		c.stateManager.Stop(ctx),
		c.durabilityLog.Close(),
	)
	if c.channel != nil {
		err = multierr.Append(err, c.channel.Stop(ctx))
	}
	return err
}

func (c *Cluster) stopPools() {
	if c.transactional != nil {
		c.transactional.Stop()
	}
	if c.nonTransactional != nil {
		c.nonTransactional.Stop()
	}
}

func (c *Cluster) resetMembership() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.balancer.Clear()
	for _, db := range c.registry.All() {
		c.registry.MarkInactive(db)
	}
}

// candidates resolves the persisted active set against the configuration.
// inert is true when the persisted set is empty: the candidates are then every
// configured database, preferred first, and only the first one is up to date.
func (c *Cluster) candidates(ctx context.Context) (candidates []*database.Database, inert bool, err error) {
	ids, err := c.stateManager.Load(ctx)
	switch {
	case errors.Is(err, gerrors.ErrNoState):
		c.logger.Infof("no persisted active set found, activating every configured database")
		return c.registry.All(), false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to load the active set of database cluster %s: %w", c.id, err)
	}

	if len(ids) == 0 {
		candidates = c.registry.All()
		slices.SortStableFunc(candidates, func(a, b *database.Database) int {
			if a.Weight() != b.Weight() {
				return cmp.Compare(b.Weight(), a.Weight())
			}
			return strings.Compare(a.ID(), b.ID())
		})
		c.logger.Infof("database cluster %s stopped with no active database, resuming from %s", c.id, candidates[0].ID())
		return candidates, true, nil
	}

	candidates = make([]*database.Database, 0, len(ids))
	for _, id := range ids {
		db, err := c.registry.Get(id)
		if err != nil {
			c.logger.Warnf("persisted database %s is no longer configured", id)
			continue
		}
		candidates = append(candidates, db)
	}
	database.Sort(candidates)
	return candidates, false, nil
}

func (c *Cluster) startJobs(ctx context.Context) error {
	if c.autoActivation == "" && c.failureDetection == "" {
		return nil
	}

	c.scheduler = newScheduler(c.logger, c.shutdownTimeout)
	c.scheduler.Start(ctx)

	if c.autoActivation != "" {
		if err := c.scheduler.ScheduleCron(autoActivationJob, c.autoActivation, c.activateHealthy); err != nil {
			c.scheduler.Stop(ctx)
			c.scheduler = nil
			return err
		}
	}

	if c.failureDetection != "" {
		if err := c.scheduler.ScheduleCron(failureDetectionJob, c.failureDetection, c.deactivateUnhealthy); err != nil {
			c.scheduler.Stop(ctx)
			c.scheduler = nil
			return err
		}
	}
	return nil
}

// activateHealthy activates every inactive database passing the health check
func (c *Cluster) activateHealthy(ctx context.Context) error {
	var err error
	for _, db := range c.registry.Inactive() {
		if checkErr := c.healthChecker.Check(ctx, db); checkErr != nil {
			c.logger.Debugf("inactive database %s is still unhealthy: %v", db.ID(), checkErr)
			continue
		}
		if _, activateErr := c.Activate(ctx, db.ID()); activateErr != nil {
			err = multierr.Append(err, activateErr)
		}
	}
	return err
}

// deactivateUnhealthy deactivates every active database failing the health check
func (c *Cluster) deactivateUnhealthy(ctx context.Context) error {
	var err error
	for _, db := range c.balancer.All() {
		checkErr := c.healthChecker.Check(ctx, db)
		if checkErr == nil {
			continue
		}
		if _, deactivateErr := c.Deactivate(ctx, db.ID(), checkErr); deactivateErr != nil {
			err = multierr.Append(err, deactivateErr)
		}
	}
	return err
}

// persist stores the active set. A failure does not undo the membership
// change: the databases actually serving invocations are the source of truth.
func (c *Cluster) persist(ctx context.Context, active []string) {
	err := c.stateManager.Store(ctx, active)
	switch {
	case err == nil:
	case errors.Is(err, gerrors.ErrBroadcastIncomplete):
		c.logger.Warnf("active set %v was not shared with every member: %v", active, err)
	default:
		c.logger.Error(fmt.Errorf("failed to persist the active set %v: %w", active, err))
	}
}

func (c *Cluster) activeIDs() []string {
	return database.IDs(c.balancer.All())
}

type cronValidator struct {
	expression string
}

var _ validation.Validator = (*cronValidator)(nil)

func newCronValidator(expression string) *cronValidator {
	return &cronValidator{expression: expression}
}

// Validate executes the validation
func (v *cronValidator) Validate() error {
	if _, err := quartz.NewCronTrigger(v.expression); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", v.expression, err)
	}
	return nil
}
