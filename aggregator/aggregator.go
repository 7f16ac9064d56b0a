package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/resilience"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Aggregator fans out to every venue adapter and merges the results into one Snapshot.
type Aggregator struct {
	adapters []dex.Adapter
	breakers map[string]*resilience.CircuitBreaker
	metrics  *metrics.EngineMetrics
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Aggregator)

// WithCircuitBreakers guards each venue with its own breaker built from cfg.
func WithCircuitBreakers(cfg resilience.CircuitBreakerConfig) Option {
	return func(a *Aggregator) {
		for _, ad := range a.adapters {
			c := cfg
			c.Name = ad.Name()
			a.breakers[ad.Name()] = resilience.NewCircuitBreaker(c)
		}
	}
}

func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// New keeps adapters in the given order; that order is the venue enumeration order
// of every snapshot.
func New(adapters []dex.Adapter, logger *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		adapters: adapters,
		breakers: make(map[string]*resilience.CircuitBreaker),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Venues returns the adapter names in enumeration order.
func (a *Aggregator) Venues() []string {
	names := make([]string, len(a.adapters))
	for i, ad := range a.adapters {
		names[i] = ad.Name()
	}
	return names
}

// Adapter returns the adapter registered under name.
func (a *Aggregator) Adapter(name string) (dex.Adapter, bool) {
	for _, ad := range a.adapters {
		if ad.Name() == name {
			return ad, true
		}
	}
	return nil, false
}

type venueOutcome struct {
	results []dex.Result
	err     error
	elapsed time.Duration
}

// Aggregate queries all venues concurrently, each bounded by rc.VenueTimeout.
// Venue failures are recorded on the snapshot and never fail the call.
func (a *Aggregator) Aggregate(ctx context.Context, rc config.RunConfig) *Snapshot {
	q := dex.QueryFrom(rc)
	outcomes := make([]venueOutcome, len(a.adapters))

	var g errgroup.Group
	for i, ad := range a.adapters {
		i, ad := i, ad
		g.Go(func() error {
			start := time.Now()
			results, err := a.fetch(ctx, ad, q, rc.VenueTimeout)
			outcomes[i] = venueOutcome{results: results, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	snap := NewSnapshot(a.Venues(), a.now())
	for i, ad := range a.adapters {
		a.merge(snap, ad.Name(), outcomes[i])
	}

	a.logger.Info("Aggregated venue prices",
		zap.Int("pairs", len(snap.Table)),
		zap.Int("venues", len(snap.Venues)),
		zap.Int("failedVenues", len(snap.VenueErrors)))
	return snap
}

// fetch runs one adapter under its own deadline. An adapter that ignores the
// context is abandoned when the deadline passes.
func (a *Aggregator) fetch(ctx context.Context, ad dex.Adapter, q dex.Query, timeout time.Duration) ([]dex.Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var results []dex.Result
	call := func(ctx context.Context) error {
		done := make(chan venueOutcome, 1)
		go func() {
			r, err := ad.FetchPrices(ctx, q)
			done <- venueOutcome{results: r, err: err}
		}()

		select {
		case out := <-done:
			results = out.results
			return out.err
		case <-ctx.Done():
			return types.NewError(types.KindTransientFetch, "fetch prices", fmt.Errorf("venue timed out: %w", ctx.Err()))
		}
	}

	var err error
	if cb, ok := a.breakers[ad.Name()]; ok {
		err = cb.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return results, nil
	}

	var typed *types.Error
	if errors.As(err, &typed) {
		return nil, typed.WithVenue(ad.Name())
	}
	return nil, types.NewError(types.KindTransientFetch, "fetch prices", err).WithVenue(ad.Name())
}

func (a *Aggregator) merge(snap *Snapshot, venue string, out venueOutcome) {
	if a.metrics != nil {
		a.metrics.VenueFetchLatency.WithLabelValues(venue).Observe(out.elapsed.Seconds())
	}

	if out.err != nil {
		snap.VenueErrors[venue] = out.err
		if a.metrics != nil {
			a.metrics.VenueErrors.WithLabelValues(venue, types.KindOf(out.err).String()).Inc()
			a.metrics.VenuePools.WithLabelValues(venue).Set(0)
		}
		a.logger.Warn("Venue fetch failed", zap.String("venue", venue), zap.Duration("elapsed", out.elapsed), zap.Error(out.err))
		return
	}

	for _, r := range out.results {
		if r.Err != nil {
			snap.PoolErrors[venue]++
			a.logger.Debug("Skipping pool", zap.String("venue", venue), zap.Error(r.Err))
			continue
		}
		if r.Point == nil {
			continue
		}
		snap.Counts[venue]++
		snap.Add(*r.Point)
	}

	if a.metrics != nil {
		a.metrics.VenuePools.WithLabelValues(venue).Set(float64(snap.Counts[venue]))
		a.metrics.PoolsSkipped.WithLabelValues(venue).Add(float64(snap.PoolErrors[venue]))
	}
	a.logger.Debug("Venue fetched",
		zap.String("venue", venue),
		zap.Int("pools", snap.Counts[venue]),
		zap.Int("skipped", snap.PoolErrors[venue]),
		zap.Duration("elapsed", out.elapsed))
}
