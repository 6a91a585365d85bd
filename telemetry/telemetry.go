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

// Package telemetry exposes the OpenTelemetry instruments recorded by the
// database cluster and the invocation coordinator.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/tochemey/hadb"

	invocationsCounterName   = "hadb.invocations"
	failuresCounterName      = "hadb.database.failures"
	deactivationsCounterName = "hadb.database.deactivations"
	activeDatabasesName      = "hadb.active.databases"
)

// Telemetry holds the meter and the instruments of a database cluster.
// A nil Telemetry records nothing.
type Telemetry struct {
	meterProvider metric.MeterProvider
	meter         metric.Meter

	invocations   metric.Int64Counter
	failures      metric.Int64Counter
	deactivations metric.Int64Counter
	active        metric.Int64UpDownCounter
}

// New creates an instance of Telemetry
func New(options ...Option) (*Telemetry, error) {
	telemetry := &Telemetry{
		meterProvider: otel.GetMeterProvider(),
	}

	for _, opt := range options {
		opt.Apply(telemetry)
	}

	telemetry.meter = telemetry.meterProvider.Meter(instrumentationName)

	var err error
	if telemetry.invocations, err = telemetry.meter.Int64Counter(
		invocationsCounterName,
		metric.WithDescription("The total number of invocations by strategy and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create invocations instrument: %w", err)
	}

	if telemetry.failures, err = telemetry.meter.Int64Counter(
		failuresCounterName,
		metric.WithDescription("The total number of failed dispatches by database"),
	); err != nil {
		return nil, fmt.Errorf("failed to create failures instrument: %w", err)
	}

	if telemetry.deactivations, err = telemetry.meter.Int64Counter(
		deactivationsCounterName,
		metric.WithDescription("The total number of deactivations by database"),
	); err != nil {
		return nil, fmt.Errorf("failed to create deactivations instrument: %w", err)
	}

	if telemetry.active, err = telemetry.meter.Int64UpDownCounter(
		activeDatabasesName,
		metric.WithDescription("The number of active databases"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active databases instrument: %w", err)
	}

	return telemetry, nil
}

// MeterProvider returns the meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Meter returns the meter
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// RecordInvocation counts a completed invocation
func (t *Telemetry) RecordInvocation(ctx context.Context, strategy, outcome string) {
	if t == nil {
		return
	}
	t.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
}

// RecordFailure counts a failed dispatch against a database
func (t *Telemetry) RecordFailure(ctx context.Context, database string) {
	if t == nil {
		return
	}
	t.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("database", database)))
}

// RecordActivation increments the active databases count
func (t *Telemetry) RecordActivation(ctx context.Context, database string) {
	if t == nil {
		return
	}
	t.active.Add(ctx, 1, metric.WithAttributes(attribute.String("database", database)))
}

// RecordDeactivation counts a deactivation and decrements the active databases count
func (t *Telemetry) RecordDeactivation(ctx context.Context, database string) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("database", database))
	t.deactivations.Add(ctx, 1, attrs)
	t.active.Add(ctx, -1, attrs)
}
