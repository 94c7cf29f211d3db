// Package overpass retrieves candidate features from the OpenStreetMap
// Overpass API.
package overpass

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/geoproapp/geopro-server/internal/cache"
	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/ratelimit"
)

const (
	defaultRPS        = 1.0
	defaultBurst      = 2
	defaultTimeout    = 120 * time.Second
	defaultQueryLimit = 100
	defaultMaxRetries = 5
	maxBackoff        = 30 * time.Second

	cacheNamespace = "overpass"
)

// Observer receives request telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveQuery(endpoint, status string, elapsed time.Duration)
	ObserveCache(hit bool)
}

// Options configures a Client.
type Options struct {
	Endpoints []string
	// QueryTimeout is the [timeout:N] value in seconds.
	QueryTimeout int
	HTTPTimeout  time.Duration
	// MaxRetries is the number of attempts per query.
	MaxRetries int
	RPS        float64
	Burst      int
	UserAgent  string
	Cache      cache.Cache
	Observer   Observer
}

// Client is a rate-limited Overpass client that rotates between endpoints
// and retries transient failures with exponential backoff.
type Client struct {
	http      *http.Client
	endpoints []string
	next      atomic.Uint64
	limiter   *ratelimit.KeyedRateLimiter
	cache     cache.Cache
	observer  Observer
	logger    *slog.Logger

	queryTimeout int
	maxRetries   int
	userAgent    string

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client. The first endpoint used is picked at random so that
// concurrent processes spread their load.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = defaultTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryLimit
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RPS <= 0 {
		opts.RPS = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "GeoPro/1.0"
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}

	c := &Client{
		http:         &http.Client{Timeout: opts.HTTPTimeout},
		endpoints:    opts.Endpoints,
		limiter:      ratelimit.New(opts.RPS, opts.Burst),
		cache:        opts.Cache,
		observer:     opts.Observer,
		logger:       logger,
		queryTimeout: opts.QueryTimeout,
		maxRetries:   opts.MaxRetries,
		userAgent:    opts.UserAgent,
		sleep:        sleepCtx,
	}
	if n := len(opts.Endpoints); n > 1 {
		c.next.Store(uint64(rand.IntN(n)))
	}
	return c
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Retrieve returns the features near rec whose name shares a word with the
// record's display name, at most maxResults, in response order. An empty
// result is not an error.
func (c *Client) Retrieve(ctx context.Context, rec domain.SourceRecord, radius, maxResults int) ([]domain.Candidate, error) {
	q := NewQuery(rec, radius, maxResults, c.queryTimeout)
	body, err := c.Execute(ctx, q.String())
	if err != nil {
		return nil, err
	}
	return ParseResponse(body, maxResults)
}

// Execute runs a raw Overpass QL query and returns the JSON body, from the
// cache when possible.
func (c *Client) Execute(ctx context.Context, query string) ([]byte, error) {
	key := cache.Key(cacheNamespace, query)
	if body, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("overpass cache read failed", "error", err)
	} else {
		c.observeCache(ok)
		if ok {
			return body, nil
		}
	}

	body, err := c.executeWithRetry(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, body); err != nil {
		c.logger.Warn("overpass cache write failed", "error", err)
	}
	return body, nil
}

func (c *Client) executeWithRetry(ctx context.Context, query string) ([]byte, error) {
	if len(c.endpoints) == 0 {
		return nil, &Error{Op: "query", Err: ErrNoEndpoints}
	}

	start := c.next.Add(1) - 1
	var (
		lastErr      error
		lastEndpoint string
		attempts     int
	)
	for attempt := range c.maxRetries {
		endpoint := c.endpoints[(start+uint64(attempt))%uint64(len(c.endpoints))]
		lastEndpoint = endpoint
		attempts++

		body, err := c.doRequest(ctx, endpoint, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == c.maxRetries-1 {
			break
		}

		wait := backoff(attempt)
		c.logger.Warn("overpass request failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)
		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	return nil, &Error{Op: "query", Endpoint: lastEndpoint, Attempts: attempts, Err: lastErr}
}

// backoff is 1s, 2s, 4s ... capped at 30s.
func backoff(attempt int) time.Duration {
	d := time.Second << attempt
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// doRequest executes one POST with rate limiting per endpoint host.
func (c *Client) doRequest(ctx context.Context, endpoint, query string) ([]byte, error) {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil {
		host = u.Host
	}

	if err := c.limiter.Wait(ctx, host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("overpass request", "endpoint", endpoint)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observeQuery(host, "error", started)
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	c.observeQuery(host, http.StatusText(resp.StatusCode), started)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusGatewayTimeout:
		return nil, ErrGatewayTimeout
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, truncate(body, 200))
	default:
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedContent, resp.Header.Get("Content-Type"))
	}
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) observeQuery(endpoint, status string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveQuery(endpoint, status, time.Since(started))
	}
}

func (c *Client) observeCache(hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(hit)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
