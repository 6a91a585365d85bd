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

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTelemetry(t *testing.T) {
	t.Run("With the global meter provider", func(t *testing.T) {
		tel, err := New()
		require.NoError(t, err)
		assert.Equal(t, otel.GetMeterProvider(), tel.MeterProvider())
		assert.NotNil(t, tel.Meter())
	})
	t.Run("With a nil telemetry nothing is recorded", func(t *testing.T) {
		var tel *Telemetry
		ctx := context.Background()
		assert.NotPanics(t, func() {
			tel.RecordInvocation(ctx, "write-to-all", "success")
			tel.RecordFailure(ctx, "db1")
			tel.RecordActivation(ctx, "db1")
			tel.RecordDeactivation(ctx, "db1")
		})
	})
	t.Run("With recorded instruments", func(t *testing.T) {
		ctx := context.Background()
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		t.Cleanup(func() { _ = provider.Shutdown(ctx) })

		tel, err := New(WithMeterProvider(provider))
		require.NoError(t, err)

		tel.RecordInvocation(ctx, "write-to-all", "success")
		tel.RecordInvocation(ctx, "write-to-all", "success")
		tel.RecordFailure(ctx, "db2")
		tel.RecordActivation(ctx, "db1")
		tel.RecordActivation(ctx, "db2")
		tel.RecordDeactivation(ctx, "db2")

		var data metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &data))
		require.Len(t, data.ScopeMetrics, 1)

		metrics := make(map[string]metricdata.Metrics)
		for _, m := range data.ScopeMetrics[0].Metrics {
			metrics[m.Name] = m
		}

		invocations := metrics[invocationsCounterName].Data.(metricdata.Sum[int64])
		require.Len(t, invocations.DataPoints, 1)
		assert.EqualValues(t, 2, invocations.DataPoints[0].Value)
		strategy, ok := invocations.DataPoints[0].Attributes.Value(attribute.Key("strategy"))
		require.True(t, ok)
		assert.Equal(t, "write-to-all", strategy.AsString())

		failures := metrics[failuresCounterName].Data.(metricdata.Sum[int64])
		require.Len(t, failures.DataPoints, 1)
		assert.EqualValues(t, 1, failures.DataPoints[0].Value)

		deactivations := metrics[deactivationsCounterName].Data.(metricdata.Sum[int64])
		require.Len(t, deactivations.DataPoints, 1)

		active := metrics[activeDatabasesName].Data.(metricdata.Sum[int64])
		var total int64
		for _, point := range active.DataPoints {
			total += point.Value
		}
		assert.EqualValues(t, 1, total)
	})
}
