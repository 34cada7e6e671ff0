package otelmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/IvanBrykalov/slidecache/cache"
)

func newReader(t *testing.T) (*Adapter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	a, err := New(provider.Meter("slidecache-test"), "slidecache")
	require.NoError(t, err)
	return a, reader
}

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// sumBy returns the int64 sum data point whose attribute key equals value,
// or the single unlabelled point when key is empty.
func sumBy(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestAdapter_Instruments(t *testing.T) {
	a, reader := newReader(t)

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(cache.EvictExpired)
	a.Evict(cache.EvictDeleted)
	a.Update(nil)
	a.Update(assert.AnError)
	a.LockWait(3 * time.Millisecond)
	a.Size(5)

	got := collect(t, reader)
	assert.EqualValues(t, 2, sumBy(t, got["slidecache_hits_total"], "", ""))
	assert.EqualValues(t, 1, sumBy(t, got["slidecache_misses_total"], "", ""))
	assert.EqualValues(t, 1, sumBy(t, got["slidecache_evictions_total"], "reason", "expired"))
	assert.EqualValues(t, 1, sumBy(t, got["slidecache_evictions_total"], "reason", "deleted"))
	assert.EqualValues(t, 1, sumBy(t, got["slidecache_updates_total"], "result", "ok"))
	assert.EqualValues(t, 1, sumBy(t, got["slidecache_updates_total"], "result", "error"))

	hist, ok := got["slidecache_lock_wait_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.EqualValues(t, 1, hist.DataPoints[0].Count)
	assert.InDelta(t, 0.003, hist.DataPoints[0].Sum, 1e-9)

	gauge, ok := got["slidecache_size_entries"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.EqualValues(t, 5, gauge.DataPoints[0].Value)
}

func TestAdapter_WiredIntoCache(t *testing.T) {
	a, reader := newReader(t)

	c := cache.New[string, string](cache.Options[string, string]{Metrics: a})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Get("a")
	c.Delete("b")

	got := collect(t, reader)
	assert.EqualValues(t, 1, sumBy(t, got["slidecache_hits_total"], "", ""))
	assert.EqualValues(t, 1, sumBy(t, got["slidecache_evictions_total"], "reason", "deleted"))
	gauge := got["slidecache_size_entries"].Data.(metricdata.Gauge[int64])
	assert.EqualValues(t, 1, gauge.DataPoints[0].Value)

	require.NoError(t, a.Unregister())
}
