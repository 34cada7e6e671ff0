// Package otelmetrics adapts cache.Metrics to an OpenTelemetry meter.
package otelmetrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/IvanBrykalov/slidecache/cache"
)

// Adapter implements cache.Metrics on top of OpenTelemetry instruments.
// Hooks carry no context, so measurements are recorded with
// context.Background().
type Adapter struct {
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	evicts   metric.Int64Counter
	updates  metric.Int64Counter
	lockWait metric.Float64Histogram

	size atomic.Int64
	reg  metric.Registration
}

// New creates the instruments on meter. Every instrument name starts with
// prefix followed by an underscore (e.g. "slidecache_hits_total").
func New(meter metric.Meter, prefix string) (*Adapter, error) {
	a := &Adapter{}
	name := func(s string) string { return prefix + "_" + s }

	var err error
	a.hits, err = meter.Int64Counter(
		name("hits_total"),
		metric.WithDescription("Cache hits"),
	)
	if err != nil {
		return nil, err
	}

	a.misses, err = meter.Int64Counter(
		name("misses_total"),
		metric.WithDescription("Cache misses"),
	)
	if err != nil {
		return nil, err
	}

	a.evicts, err = meter.Int64Counter(
		name("evictions_total"),
		metric.WithDescription("Entries removed, by reason"),
	)
	if err != nil {
		return nil, err
	}

	a.updates, err = meter.Int64Counter(
		name("updates_total"),
		metric.WithDescription("Completed Update calls, by result"),
	)
	if err != nil {
		return nil, err
	}

	a.lockWait, err = meter.Float64Histogram(
		name("lock_wait_seconds"),
		metric.WithDescription("Time spent waiting for a locked key"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	sizeGauge, err := meter.Int64ObservableGauge(
		name("size_entries"),
		metric.WithDescription("Number of resident entries"),
	)
	if err != nil {
		return nil, err
	}
	a.reg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(sizeGauge, a.size.Load())
		return nil
	}, sizeGauge)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Add(context.Background(), 1) }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Add(context.Background(), 1) }

func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", r.String())))
}

func (a *Adapter) LockWait(d time.Duration) {
	a.lockWait.Record(context.Background(), d.Seconds())
}

func (a *Adapter) Update(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	a.updates.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("result", result)))
}

// Size is sampled by the gauge callback at collection time.
func (a *Adapter) Size(entries int) { a.size.Store(int64(entries)) }

// Unregister detaches the size gauge callback from the meter.
func (a *Adapter) Unregister() error { return a.reg.Unregister() }

var _ cache.Metrics = (*Adapter)(nil)
