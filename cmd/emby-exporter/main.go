// Package main provides the emby-exporter CLI entry point.
//
// emby-exporter polls an Emby media server and publishes library, device
// and server information as Prometheus gauges.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/emby-exporter/internal/config"
	"github.com/randomizedcoder/emby-exporter/internal/exporter"
	"github.com/randomizedcoder/emby-exporter/internal/logging"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/emby-exporter
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("emby-exporter %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Printf("emby-exporter %s\n", version)
		return 0
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error:\n%v\n", err)
		return 1
	}

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var handler slog.Handler
	if cfg.TUIEnabled {
		handler = logging.NewHandler(io.Discard, "json", "error", false)
	} else {
		handler = logging.NewHandler(os.Stderr, cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logger := slog.New(handler)
	logging.SetDefault(logger)

	logger.Info("starting",
		"version", version,
		"emby", cfg.EmbyAddr,
		"interval", cfg.Interval.String(),
		"extended", cfg.Extended,
		"metrics_addr", cfg.ListenAddr(),
	)

	// One-shot output goes to stdout, so keep it clean
	if !cfg.Once {
		printBanner(cfg)
	}

	exp, err := exporter.New(cfg, exporter.Options{
		Version: version,
		Handler: handler,
		Out:     os.Stdout,
		Signals: true,
	})
	if err != nil {
		logger.Error("exporter_init_failed", "error", err)
		return 1
	}

	if err := exp.Run(context.Background()); err != nil {
		logger.Error("exporter_failed", "error", err)
		return 1
	}

	return 0
}

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("#52B54B")).
			Bold(true).
			Padding(0, 4)

	bannerLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF")).
			Width(13)
)

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	line := func(label, value string) {
		fmt.Println("  " + bannerLabel.Render(label) + value)
	}

	fmt.Println()
	fmt.Println(bannerStyle.Render("emby-exporter\nPrometheus metrics for Emby media servers"))
	fmt.Println()
	line("Emby:", cfg.EmbyAddr)
	line("Interval:", cfg.Interval.String())
	line("Metrics:", "http://"+cfg.ListenAddr()+"/metrics")
	if cfg.UserID == "" {
		line("User:", "none (played and favourite counts stay at 0)")
	} else {
		line("User:", cfg.UserID)
	}
	if cfg.Extended {
		line("Categories:", "extended (episodes, songs)")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
