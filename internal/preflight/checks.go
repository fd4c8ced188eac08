// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Pinger reaches the upstream server. Implemented by *emby.Client.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
	BaseURL() string
}

// Options selects what RunAll checks.
type Options struct {
	ListenAddr       string        // host:port the metrics server will bind
	Upstream         Pinger        // nil skips the reachability check
	APIKey           string        // empty is a warning
	UserID           string        // empty is a warning
	FetchConcurrency int           // parallel upstream requests per poll
	Timeout          time.Duration // for the upstream ping
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	result.add(checkFileDescriptors(opts.FetchConcurrency))
	result.add(checkListenAddr(opts.ListenAddr))
	if opts.Upstream != nil {
		result.add(checkUpstream(ctx, opts.Upstream, opts.Timeout))
	}
	result.add(checkAPIKey(opts.APIKey))
	result.add(checkUserID(opts.UserID))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(concurrency int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// Upstream connections plus scrapers and the listener
	required := concurrency*2 + 64
	actual := int(min(limit.Cur, uint64(1<<31-1)))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkListenAddr verifies the metrics address can be bound.
func checkListenAddr(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, syscall.EADDRINUSE) {
			msg = fmt.Sprintf("%s already in use", addr)
		}
		return Check{
			Name:    "listen_address",
			Passed:  false,
			Message: msg,
		}
	}
	ln.Close()

	return Check{
		Name:    "listen_address",
		Passed:  true,
		Message: fmt.Sprintf("%s is available", addr),
	}
}

// checkUpstream verifies the Emby server answers.
// An unreachable server is a warning: the poll loop keeps retrying.
func checkUpstream(ctx context.Context, p Pinger, timeout time.Duration) Check {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	server, err := p.Ping(ctx)
	if err != nil {
		return Check{
			Name:    "emby_reachable",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s: %v", p.BaseURL(), err),
		}
	}
	return Check{
		Name:    "emby_reachable",
		Passed:  true,
		Message: fmt.Sprintf("%s (%s)", p.BaseURL(), server),
	}
}

func checkAPIKey(key string) Check {
	if key == "" {
		return Check{
			Name:    "api_key",
			Passed:  true,
			Warning: true,
			Message: "no API key set; most endpoints will refuse requests",
		}
	}
	return Check{
		Name:    "api_key",
		Passed:  true,
		Message: "set",
	}
}

func checkUserID(id string) Check {
	if id == "" {
		return Check{
			Name:    "user_id",
			Passed:  true,
			Warning: true,
			Message: "no user id set; played and favorite counts will be 0",
		}
	}
	return Check{
		Name:    "user_id",
		Passed:  true,
		Message: id,
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	WriteResults(os.Stdout, result)
}

// WriteResults writes the preflight check results to w.
func WriteResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "listen_address":
		return "choose another -port or -interface"
	case "emby_reachable":
		return "check -emby and that the server is running"
	case "api_key":
		return "create a key under Dashboard > Advanced > API Keys and pass -auth"
	case "user_id":
		return "pass -userid with the id of the user to count for"
	default:
		return "see documentation"
	}
}
