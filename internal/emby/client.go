package emby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// Maximum JSON response size to prevent OOM from malformed/massive responses
const maxJSONResponseSize = 64 * 1024 * 1024 // 64MB

// ErrUnexpectedStatus is returned for any non-200 response.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Config holds client settings.
type Config struct {
	BaseURL     string        // e.g. http://localhost:8096
	APIKey      string        // sent as X-Emby-Token
	UserID      string        // optional; enables per-user data (played, favorite)
	Timeout     time.Duration // per request
	PageSize    int           // items per request when paging
	Concurrency int           // parallel requests per Fetch
	Extended    bool          // also count episodes and songs
	UserAgent   string
}

// Client talks to one Emby server.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// NormalizeBaseURL accepts "host:port" or a full URL and returns a URL with
// a scheme and no trailing slash.
func NormalizeBaseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("empty address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("URL must have a host")
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// New creates a client. Zero values in cfg are replaced with defaults.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("emby address: %w", err)
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "emby-exporter"
	}

	return &Client{
		cfg:  cfg,
		base: u,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Ping checks that the server answers the unauthenticated info endpoint.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.getJSON(ctx, "/System/Info/Public", nil, &info); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", info.ServerName, info.Version), nil
}

// SystemInfo fetches the server identity.
func (c *Client) SystemInfo(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo
	err := c.getJSON(ctx, "/System/Info", nil, &info)
	return info, err
}

// Devices fetches the registered devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var resp itemsResponse[Device]
	if err := c.getJSON(ctx, "/Devices", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Items fetches every item of a category, following pages until the server's
// total is reached. Without a total, a short page ends the listing.
func (c *Client) Items(ctx context.Context, cat Category) ([]Item, error) {
	path, query := c.itemsQuery(cat)

	var all []Item
	for start := 0; ; {
		q := cloneValues(query)
		q.Set("StartIndex", strconv.Itoa(start))
		q.Set("Limit", strconv.Itoa(c.cfg.PageSize))

		var page itemsResponse[Item]
		if err := c.getJSON(ctx, path, q, &page); err != nil {
			return nil, fmt.Errorf("%s: %w", cat.Label, err)
		}
		all = append(all, page.Items...)
		start += len(page.Items)

		if len(page.Items) == 0 {
			break
		}
		if page.TotalRecordCount > 0 {
			if start >= page.TotalRecordCount {
				break
			}
		} else if len(page.Items) < c.cfg.PageSize {
			break
		}
	}

	c.logger.Debug("emby_items_fetched", "type", cat.Label, "count", len(all))
	return all, nil
}

// itemsQuery returns the endpoint and base query for a category.
func (c *Client) itemsQuery(cat Category) (string, url.Values) {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("Fields", "Genres,ProductionYear")
	q.Set("EnableImages", "false")

	// Artists are not folder items; they have their own endpoint.
	if cat.ItemType == "MusicArtist" {
		if c.cfg.UserID != "" {
			q.Set("UserId", c.cfg.UserID)
		}
		return "/Artists", q
	}

	q.Set("IncludeItemTypes", cat.ItemType)
	if c.cfg.UserID != "" {
		return "/Users/" + url.PathEscape(c.cfg.UserID) + "/Items", q
	}
	return "/Items", q
}

// Fetch collects everything the exporter needs for one poll.
// Requests run concurrently; the first failure cancels the rest.
func (c *Client) Fetch(ctx context.Context) (*Data, error) {
	cats := Categories(c.cfg.Extended)
	items := make([][]Item, len(cats))
	data := &Data{Library: make(map[string][]Item, len(cats))}

	p := pool.New().
		WithMaxGoroutines(c.cfg.Concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	p.Go(func(ctx context.Context) error {
		info, err := c.SystemInfo(ctx)
		if err != nil {
			return fmt.Errorf("system info: %w", err)
		}
		data.Info = info
		return nil
	})
	p.Go(func(ctx context.Context) error {
		devices, err := c.Devices(ctx)
		if err != nil {
			return fmt.Errorf("devices: %w", err)
		}
		data.Devices = devices
		return nil
	})
	for i, cat := range cats {
		p.Go(func(ctx context.Context) error {
			got, err := c.Items(ctx, cat)
			if err != nil {
				return err
			}
			items[i] = got
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	for i, cat := range cats {
		data.Library[cat.Label] = items[i]
	}
	return data, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into v.
// Uses LimitReader to prevent OOM from malformed/massive responses.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Emby-Token", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, path)
	}

	limitedReader := io.LimitReader(resp.Body, maxJSONResponseSize)
	if err := json.NewDecoder(limitedReader).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
