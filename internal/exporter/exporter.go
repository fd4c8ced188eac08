// Package exporter wires the Emby client, the poll loop, the metrics server
// and the optional TUI into one process.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/emby-exporter/internal/config"
	"github.com/randomizedcoder/emby-exporter/internal/emby"
	"github.com/randomizedcoder/emby-exporter/internal/logging"
	"github.com/randomizedcoder/emby-exporter/internal/metrics"
	"github.com/randomizedcoder/emby-exporter/internal/poller"
	"github.com/randomizedcoder/emby-exporter/internal/preflight"
	"github.com/randomizedcoder/emby-exporter/internal/snapshot"
	"github.com/randomizedcoder/emby-exporter/internal/tui"
)

// shutdownTimeout bounds the graceful stop of the metrics server.
const shutdownTimeout = 10 * time.Second

// ErrPreflightFailed is returned when a required startup check fails.
var ErrPreflightFailed = errors.New("preflight checks failed (use -skip-preflight to override)")

// Options carries what the caller decides outside the configuration.
type Options struct {
	Version string
	Handler slog.Handler // base log handler; wrapped to remember warnings
	Out     io.Writer    // preflight results, one-shot output, exit summary
	Signals bool         // stop on SIGINT/SIGTERM
}

// Exporter coordinates all components of a running exporter.
type Exporter struct {
	config  *config.Config
	version string
	out     io.Writer
	signals bool

	logger *slog.Logger
	recent *logging.RecentHandler

	registry  *prometheus.Registry
	collector *metrics.Collector
	client    *emby.Client
	poller    *poller.Poller
	server    *metrics.Server

	program atomic.Pointer[tea.Program]
}

// New builds every component. Nothing touches the network until Run.
func New(cfg *config.Config, opts Options) (*Exporter, error) {
	if opts.Handler == nil {
		opts.Handler = logging.Discard().Handler()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	recent := logging.NewRecentHandler(opts.Handler, slog.LevelWarn)
	logger := slog.New(recent)

	e := &Exporter{
		config:   cfg,
		version:  opts.Version,
		out:      opts.Out,
		signals:  opts.Signals,
		logger:   logger,
		recent:   recent,
		registry: prometheus.NewRegistry(),
	}

	client, err := emby.New(emby.Config{
		BaseURL:     cfg.EmbyAddr,
		APIKey:      cfg.APIKey,
		UserID:      cfg.UserID,
		Timeout:     cfg.Timeout,
		PageSize:    cfg.PageSize,
		Concurrency: cfg.FetchConcurrency,
		Extended:    cfg.Extended,
		UserAgent:   "emby-exporter/" + opts.Version,
	}, logger)
	if err != nil {
		return nil, err
	}
	e.client = client

	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e.collector = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:  opts.Version,
		Upstream: client.BaseURL(),
	}, e.registry)

	e.poller, err = poller.New(poller.Config{
		Interval:    cfg.Interval,
		Timeout:     cfg.PollTimeout,
		Fetcher:     client,
		Build:       snapshot.Build,
		Definitions: snapshot.Definitions(),
		Registry:    metrics.NewRegistry(e.registry),
		Collector:   e.collector,
		Logger:      logger,
		OnCycle:     e.onCycle,
	})
	if err != nil {
		return nil, err
	}

	e.server = metrics.NewServer(cfg.ListenAddr(), e.registry, logger)
	return e, nil
}

// Run executes the exporter. It blocks until ctx is cancelled, a signal
// arrives or the TUI is closed. In one-shot mode it returns after one poll.
func (e *Exporter) Run(ctx context.Context) error {
	if !e.config.SkipPreflight {
		if err := e.preflight(ctx); err != nil {
			return err
		}
	}

	if e.config.Once {
		return e.runOnce(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// First poll before serving so the first scrape sees data
	if err := e.poller.Poll(ctx); err != nil {
		e.logger.Warn("initial_poll_failed", "error", err)
	}

	if err := e.server.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	var sigCh chan os.Signal
	if e.signals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigCh)
	}

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		e.poller.Run(ctx)
	}()

	tuiDone := make(chan struct{})
	if e.config.TUIEnabled {
		go e.runTUI(ctx, tuiDone)
	}

	e.logger.Info("exporter_running",
		"upstream", e.client.BaseURL(),
		"metrics_addr", e.server.Addr(),
		"interval", e.config.Interval.String(),
	)

	select {
	case sig := <-sigCh:
		e.logger.Info("received_signal", "signal", sig.String())
	case <-tuiDone:
		e.logger.Info("tui_closed")
	case <-ctx.Done():
		e.logger.Info("context_cancelled")
	}

	cancel()
	tui.SendQuit(e.program.Load())
	<-pollDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	e.printExitSummary()
	return nil
}

// preflight runs the startup checks and prints their results.
func (e *Exporter) preflight(ctx context.Context) error {
	result := preflight.RunAll(ctx, preflight.Options{
		ListenAddr:       e.config.ListenAddr(),
		Upstream:         e.client,
		APIKey:           e.config.APIKey,
		UserID:           e.config.UserID,
		FetchConcurrency: e.config.FetchConcurrency,
		Timeout:          e.config.Timeout,
	})
	preflight.WriteResults(e.out, result)
	if !result.Passed {
		return ErrPreflightFailed
	}
	return nil
}

// runOnce polls once and writes the exposition to the output.
func (e *Exporter) runOnce(ctx context.Context) error {
	if err := e.poller.Poll(ctx); err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	if err := metrics.WriteText(e.out, e.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	counts, err := metrics.CountSeries(e.registry)
	if err != nil {
		return fmt.Errorf("count series: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	e.logger.Info("once_complete", "families", len(counts), "series", total)
	return nil
}

// onCycle is called by the poller after every cycle.
func (e *Exporter) onCycle(err error) {
	if err == nil && e.server != nil {
		e.server.SetReady(true)
	}
	if p := e.program.Load(); p != nil {
		tui.SendStatus(p, e.poller.Status())
	}
}

// runTUI runs the dashboard until it is closed or ctx is cancelled.
func (e *Exporter) runTUI(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	model := tui.New(tui.Config{
		Version:      e.version,
		Upstream:     e.client.BaseURL(),
		MetricsAddr:  e.server.Addr(),
		Extended:     e.config.Extended,
		StatusSource: e.poller,
		EventSource:  e.recent,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	e.program.Store(p)
	defer e.program.Store(nil)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		e.logger.Error("tui_error", "error", err)
	}
}

// Poller returns the poll loop for external access.
func (e *Exporter) Poller() *poller.Poller {
	return e.poller
}

// Gatherer returns the registry behind /metrics.
func (e *Exporter) Gatherer() prometheus.Gatherer {
	return e.registry
}

// Server returns the metrics server.
func (e *Exporter) Server() *metrics.Server {
	return e.server
}

// printExitSummary prints a summary of the run.
func (e *Exporter) printExitSummary() {
	status := e.poller.Status()
	w := e.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                     emby-exporter Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Run Duration:           %s\n", formatDuration(status.Uptime))
	fmt.Fprintf(w, "Emby Server:            %s\n", e.client.BaseURL())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Polls:")
	fmt.Fprintf(w, "  Total:                %d\n", status.Polls)
	fmt.Fprintf(w, "  Failed:               %d\n", status.Failures)
	if status.Polls > 0 {
		fmt.Fprintf(w, "  Duration P50:         %s\n", status.DurationP50.Round(time.Millisecond))
		fmt.Fprintf(w, "  Duration P95:         %s\n", status.DurationP95.Round(time.Millisecond))
	}
	if status.LastError != "" {
		fmt.Fprintf(w, "  Last Error:           %s\n", status.LastError)
	}
	fmt.Fprintln(w)

	if len(status.Metrics) > 0 {
		fmt.Fprintln(w, "Series:")
		for _, m := range status.Metrics {
			fmt.Fprintf(w, "  %-24s %d\n", m.Name, m.Series)
		}
		fmt.Fprintln(w)
	}

	if counts := e.recent.Counts(); len(counts) > 0 {
		fmt.Fprintln(w, "Warnings:")
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-24s %d\n", name, counts[name])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Metrics endpoint was: http://%s/metrics\n", e.config.ListenAddr())
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
