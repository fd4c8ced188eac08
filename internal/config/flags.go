package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config.
// Values from a -config file are applied first; explicit flags win.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[0], os.Args[1:], os.Stderr)
}

// Parse is ParseFlags over an explicit argument list.
func Parse(name string, args []string, output io.Writer) (*Config, error) {
	// First pass only finds the config file.
	probe := newFlagSet(name, DefaultConfig(), io.Discard)
	probe.Usage = func() {}
	cfg := DefaultConfig()
	if err := probe.Parse(args); err == nil && probeConfigFile(probe) != "" {
		if err := LoadFile(probeConfigFile(probe), cfg); err != nil {
			return nil, err
		}
	}

	fs := newFlagSet(name, cfg, output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return cfg, nil
}

func probeConfigFile(fs *flag.FlagSet) string {
	if f := fs.Lookup("config"); f != nil {
		return f.Value.String()
	}
	return ""
}

// newFlagSet binds every flag to cfg, using its current values as defaults.
func newFlagSet(name string, cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(output, `emby-exporter - Prometheus exporter for Emby media server library statistics

Usage:
  emby-exporter [flags]

Emby Server:
`)
		// Print flags by category
		printFlagCategory(fs, output, []string{"emby", "auth", "userid", "extended"})

		fmt.Fprintf(output, "\nPolling:\n")
		printFlagCategory(fs, output, []string{"interval", "timeout", "poll-timeout", "page-size", "fetch-concurrency"})

		fmt.Fprintf(output, "\nMetrics Endpoint:\n")
		printFlagCategory(fs, output, []string{"interface", "port"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"v", "log-format", "log-level", "tui"})

		fmt.Fprintf(output, "\nModes:\n")
		printFlagCategory(fs, output, []string{"config", "once", "skip-preflight", "version"})

		fmt.Fprintf(output, `
Examples:
  # Export a local server
  emby-exporter -auth 0123456789abcdef -userid 4c1d6a2e

  # Remote server, count episodes and songs too
  emby-exporter -emby https://emby.example.com -auth $EMBY_TOKEN -extended

  # Print the metrics once and exit
  emby-exporter -auth $EMBY_TOKEN -once

`)
	}

	// Emby server
	fs.StringVar(&cfg.EmbyAddr, "emby", cfg.EmbyAddr, "Emby server address (host:port or URL)")
	fs.StringVar(&cfg.APIKey, "auth", cfg.APIKey, "Emby API token")
	fs.StringVar(&cfg.UserID, "userid", cfg.UserID, "Emby user id (enables played and favorite counts)")
	fs.BoolVar(&cfg.Extended, "extended", cfg.Extended, "Also count episodes and songs (slow on large libraries)")

	// Polling
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Time between polls")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout of a single upstream request")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "Deadline for fetching everything in one poll (0 = interval)")
	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "Items requested per page")
	fs.IntVar(&cfg.FetchConcurrency, "fetch-concurrency", cfg.FetchConcurrency, "Parallel upstream requests per poll")

	// Metrics endpoint
	fs.StringVar(&cfg.Interface, "interface", cfg.Interface, "Listen interface for /metrics")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port for /metrics")

	// Observability
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show live terminal dashboard")

	// Modes
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file (flags override it)")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "Poll once, print metrics to stdout and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := strconv.Atoi(f.DefValue); err == nil {
		return "int"
	}

	return "string"
}
