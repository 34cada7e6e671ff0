// Command bench runs a synthetic workload against the cache and exposes
// Prometheus metrics and pprof over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/slidecache/cache"
	"github.com/IvanBrykalov/slidecache/internal/config"
	"github.com/IvanBrykalov/slidecache/internal/log"
	"github.com/IvanBrykalov/slidecache/metrics/otelmetrics"
	pmet "github.com/IvanBrykalov/slidecache/metrics/prom"
)

type counters struct {
	total, reads, hits, misses, sets, updates, deletes, failed atomic.Uint64
}

func main() {
	fs := pflag.NewFlagSet("bench", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := log.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bench failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Metrics backend ----
	metrics, shutdown, err := setupMetrics(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}
	defer shutdown()

	// ---- HTTP: /metrics, /debug/pprof, /healthz ----
	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           newRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http: serving", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server stopped", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// ---- Build cache ----
	c := cache.New[string, int](cache.Options[string, int]{
		Shards:     cfg.Cache.Shards,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Metrics:    metrics,
		Logger:     logger.Named("cache"),
	})
	defer func() { _ = c.Close() }()

	b := cfg.Bench
	for i := 0; i < b.Preload; i++ {
		c.Set("k:"+strconv.Itoa(i), i, b.TTL)
	}

	workers := b.Workers
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
	}
	seed := b.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	var limiter *rate.Limiter
	if b.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(b.Rate), workers)
	}

	logger.Info("bench: starting",
		zap.Int("workers", workers),
		zap.Duration("duration", b.Duration),
		zap.Int("keys", b.Keys),
		zap.Int64("seed", seed),
		zap.String("metrics", cfg.Metrics),
	)

	// ---- Load generation ----
	runCtx, cancel := context.WithTimeout(ctx, b.Duration)
	defer cancel()

	var n counters
	incr := func(_ context.Context, cur int, _ bool) (int, error) { return cur + 1, nil }

	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			// rand.Rand is not goroutine-safe: one RNG + Zipf per worker.
			r := rand.New(rand.NewSource(seed + int64(id)*9973))
			zipf := rand.NewZipf(r, b.ZipfS, b.ZipfV, uint64(b.Keys-1))

			for gctx.Err() == nil {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return nil
					}
				}
				k := "k:" + strconv.FormatUint(zipf.Uint64(), 10)
				n.total.Add(1)

				switch p := r.Intn(100); {
				case p < b.ReadPct:
					n.reads.Add(1)
					if _, ok := c.Get(k); ok {
						n.hits.Add(1)
					} else {
						n.misses.Add(1)
					}
				case p < b.ReadPct+b.UpdatePct:
					n.updates.Add(1)
					if _, err := c.Update(gctx, k, incr, b.TTL); err != nil {
						n.failed.Add(1)
					}
				case p < b.ReadPct+b.UpdatePct+b.DeletePct:
					n.deletes.Add(1)
					c.Delete(k)
				default:
					n.sets.Add(1)
					c.Set(k, r.Int(), b.TTL)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	report(logger, &n, c, time.Since(start))
	return nil
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug", middleware.Profiler())
	return r
}

// setupMetrics returns the cache.Metrics for backend and a shutdown hook.
// Both backends are exposed through the default Prometheus registry.
func setupMetrics(backend string) (cache.Metrics, func(), error) {
	switch backend {
	case "prom":
		return pmet.New(nil, "slidecache", "bench", nil), func() {}, nil
	case "otel":
		exporter, err := otelprom.New()
		if err != nil {
			return nil, nil, err
		}
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		otel.SetMeterProvider(provider)

		m, err := otelmetrics.New(provider.Meter("slidecache/bench"), "slidecache_bench")
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = provider.Shutdown(context.Background()) }, nil
	default:
		return cache.NoopMetrics{}, func() {}, nil
	}
}

func report(logger *zap.Logger, n *counters, c cache.Cache[string, int], elapsed time.Duration) {
	ops := n.total.Load()
	reads := n.reads.Load()
	hitRate := 0.0
	if reads > 0 {
		hitRate = float64(n.hits.Load()) / float64(reads) * 100
	}
	st := c.Stats()

	fmt.Printf("ops=%d (%.0f ops/s) dur=%v\n", ops, float64(ops)/elapsed.Seconds(), elapsed)
	fmt.Printf("reads=%d sets=%d updates=%d (failed=%d) deletes=%d\n",
		reads, n.sets.Load(), n.updates.Load(), n.failed.Load(), n.deletes.Load())
	fmt.Printf("hits=%d misses=%d hit-rate=%.2f%%\n", n.hits.Load(), n.misses.Load(), hitRate)
	fmt.Printf("expired=%d deleted=%d lock-waits=%d Len()=%d\n",
		st.Expired, st.Deleted, st.LockWaits, c.Len())

	logger.Debug("bench: done", zap.Any("stats", st))
}
