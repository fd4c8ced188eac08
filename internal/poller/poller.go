// Package poller runs the exporter's poll loop.
//
// Each cycle fetches the upstream data, builds one snapshot per metric and
// applies it to that metric's Reconciler, which writes the gauges. Cycles run
// one at a time on a single goroutine: a slow cycle delays the next one and
// never overlaps it.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/emby-exporter/internal/emby"
	"github.com/randomizedcoder/emby-exporter/internal/labeltree"
	"github.com/randomizedcoder/emby-exporter/internal/metrics"
)

// Fetcher returns the upstream data for one cycle.
// Implemented by *emby.Client.
type Fetcher interface {
	Fetch(ctx context.Context) (*emby.Data, error)
}

// BuildFunc turns fetched data into one snapshot per metric name.
type BuildFunc func(*emby.Data) map[string]labeltree.Snapshot

// Config configures a Poller.
type Config struct {
	Interval    time.Duration // time between the end of one cycle and the start of the next
	Timeout     time.Duration // upper bound on one fetch; defaults to Interval
	Fetcher     Fetcher
	Build       BuildFunc
	Definitions []metrics.Definition
	Registry    *metrics.Registry
	Collector   *metrics.Collector
	Logger      *slog.Logger

	// OnCycle, if set, is called after every cycle with the outcome.
	OnCycle func(err error)
}

// MetricStatus is the last known state of one metric.
type MetricStatus struct {
	Name      string
	Series    int
	Zeroed    int
	Malformed int64
}

// Status is a point-in-time view of the loop for display.
type Status struct {
	metrics.PollStats
	Interval time.Duration
	NextPoll time.Time
	Metrics  []MetricStatus
}

// Poller owns the reconcilers of every published metric.
type Poller struct {
	interval  time.Duration
	timeout   time.Duration
	fetcher   Fetcher
	build     BuildFunc
	collector *metrics.Collector
	logger    *slog.Logger
	onCycle   func(error)

	reconcilers []*labeltree.Reconciler

	// cycle serializes Poll so cycles never overlap
	cycle sync.Mutex

	mu        sync.Mutex
	nextPoll  time.Time
	perMetric map[string]*MetricStatus
}

// New registers every definition with the registry and creates its
// reconciler.
func New(cfg Config) (*Poller, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	if cfg.Build == nil {
		return nil, errors.New("poller: build function is required")
	}
	if cfg.Registry == nil || cfg.Collector == nil {
		return nil, errors.New("poller: registry and collector are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poller: interval must be positive (got %v)", cfg.Interval)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Poller{
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		fetcher:   cfg.Fetcher,
		build:     cfg.Build,
		collector: cfg.Collector,
		logger:    cfg.Logger,
		onCycle:   cfg.OnCycle,
		perMetric: make(map[string]*MetricStatus, len(cfg.Definitions)),
	}

	for _, def := range cfg.Definitions {
		sink, err := cfg.Registry.Register(def)
		if err != nil {
			return nil, fmt.Errorf("poller: %w", err)
		}
		name := strings.ToLower(def.Name)
		p.reconcilers = append(p.reconcilers, labeltree.NewReconciler(name, def.Arity(), sink, cfg.Logger))
		p.perMetric[name] = &MetricStatus{Name: name}
	}
	return p, nil
}

// Run polls every interval until ctx is cancelled. The first cycle starts
// one interval after Run is called; call Poll first for an immediate one.
//
// Uses Timer.Reset() instead of time.Ticker so the wait starts after a cycle
// completes.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	p.setNext(time.Now().Add(p.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// Poll logs and records its own failures
			_ = p.Poll(ctx)
			timer.Reset(p.interval)
			p.setNext(time.Now().Add(p.interval))
		}
	}
}

// Poll runs one cycle. A fetch failure abandons the cycle and leaves every
// gauge at its previous value. A malformed snapshot skips only its metric.
func (p *Poller) Poll(ctx context.Context) error {
	p.cycle.Lock()
	defer p.cycle.Unlock()

	start := time.Now()
	err := p.poll(ctx)
	elapsed := time.Since(start)

	p.collector.RecordPoll(elapsed, err)
	if err != nil {
		p.logger.Warn("poll_cycle_failed", "error", err, "duration", elapsed)
	} else {
		p.logger.Debug("poll_cycle_complete", "duration", elapsed)
	}
	if p.onCycle != nil {
		p.onCycle(err)
	}
	return err
}

func (p *Poller) poll(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	data, err := p.fetcher.Fetch(fetchCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	snapshots := p.build(data)
	for _, r := range p.reconcilers {
		s, ok := snapshots[r.Name()]
		if !ok {
			p.logger.Debug("snapshot_missing", "metric", r.Name())
			continue
		}

		res, err := r.Apply(s)
		if err != nil {
			if errors.Is(err, labeltree.ErrMalformedSnapshot) {
				p.collector.RecordMalformed(r.Name())
				p.mu.Lock()
				p.perMetric[r.Name()].Malformed++
				p.mu.Unlock()
			}
			p.logger.Warn("snapshot_rejected", "metric", r.Name(), "error", err)
			continue
		}

		series := r.Series()
		p.collector.RecordMetric(r.Name(), res, series)

		p.mu.Lock()
		st := p.perMetric[r.Name()]
		st.Series = series
		st.Zeroed = res.Zeroed
		p.mu.Unlock()
	}
	return nil
}

// Status returns the current loop state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		PollStats: p.collector.Stats(),
		Interval:  p.interval,
		NextPoll:  p.nextPoll,
		Metrics:   make([]MetricStatus, 0, len(p.perMetric)),
	}
	for _, m := range p.perMetric {
		s.Metrics = append(s.Metrics, *m)
	}
	sort.Slice(s.Metrics, func(i, j int) bool { return s.Metrics[i].Name < s.Metrics[j].Name })
	return s
}

// Tree returns a copy of the published tree of one metric.
func (p *Poller) Tree(name string) (*labeltree.Node, bool) {
	p.cycle.Lock()
	defer p.cycle.Unlock()

	for _, r := range p.reconcilers {
		if r.Name() == name {
			return r.Tree(), true
		}
	}
	return nil, false
}

func (p *Poller) setNext(t time.Time) {
	p.mu.Lock()
	p.nextPoll = t
	p.mu.Unlock()
}
