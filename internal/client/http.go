package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mlb_daily/ingestion/internal/metrics"

	"github.com/rs/zerolog"
)

const userAgent = "mlb-daily-model/1.0"

// Policy is the HTTP behavior shared by every upstream client
type Policy struct {
	Timeout     time.Duration
	Retries     int
	BackoffBase time.Duration
	Concurrency int
}

// DefaultPolicy is 15s per request, 3 retries waiting 1s/2s/4s, 8 in flight
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     15 * time.Second,
		Retries:     3,
		BackoffBase: time.Second,
		Concurrency: 8,
	}
}

// Limiter bounds in-flight requests. Share one across clients to bound the
// whole process.
type Limiter chan struct{}

// NewLimiter creates a limiter with n slots
func NewLimiter(n int) Limiter {
	if n < 1 {
		n = 1
	}
	l := make(Limiter, n)
	for i := 0; i < n; i++ {
		l <- struct{}{}
	}
	return l
}

func (l Limiter) acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l:
		return nil
	}
}

func (l Limiter) release() {
	l <- struct{}{}
}

// Option configures a client
type Option func(*httpCore)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpCore) { c.httpClient = hc }
}

// WithLogger sets the logger used for retry diagnostics
func WithLogger(l zerolog.Logger) Option {
	return func(c *httpCore) { c.logger = l }
}

// WithLimiter shares a concurrency limiter between clients
func WithLimiter(l Limiter) Option {
	return func(c *httpCore) { c.limiter = l }
}

// httpCore performs GETs with bounded concurrency and exponential backoff
type httpCore struct {
	upstream   string
	baseURL    string
	accept     string
	httpClient *http.Client
	limiter    Limiter
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func newHTTPCore(upstream, baseURL, accept string, policy Policy, opts ...Option) *httpCore {
	c := &httpCore{
		upstream:   upstream,
		baseURL:    strings.TrimRight(baseURL, "/"),
		accept:     accept,
		maxRetries: policy.Retries,
		retryDelay: policy.BackoffBase,
		logger:     zerolog.Nop(),
		sleep:      sleepCtx,
		httpClient: &http.Client{
			Timeout: policy.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = NewLimiter(policy.Concurrency)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// get performs a GET with retry on transient failures. endpoint is a stable
// label used for metrics and errors; path is appended to the base URL.
func (c *httpCore) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: base, 2*base, 4*base
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Debug().
				Str("endpoint", endpoint).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying upstream request after backoff")
			metrics.RecordAPIRetry(c.upstream, endpoint)

			if err := c.sleep(ctx, backoff); err != nil {
				return nil, transient(endpoint, 0, err)
			}
		}

		body, status, err := c.do(ctx, endpoint, u)
		if ctx.Err() != nil {
			return nil, transient(endpoint, status, ctx.Err())
		}

		switch {
		case err != nil:
			// Network errors and client timeouts count as 5xx
			lastErr = transient(endpoint, 0, err)
			metrics.RecordAPICall(c.upstream, endpoint, "network_error", 0)
			continue

		case status == http.StatusOK:
			return body, nil

		case status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
			lastErr = transient(endpoint, status, fmt.Errorf("%s", snippet(body)))
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", status).
				Int("attempt", attempt+1).
				Msg("Received retryable upstream status")
			continue

		case status >= 400:
			return nil, missing(endpoint, status, ErrNotFound)

		default:
			return nil, schema(endpoint, fmt.Errorf("unexpected status %d", status))
		}
	}

	return nil, lastErr
}

// do runs a single request while holding a limiter slot
func (c *httpCore) do(ctx context.Context, endpoint, u string) ([]byte, int, error) {
	if err := c.limiter.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer c.limiter.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", c.accept)
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall(c.upstream, endpoint, statusLabel(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 200 && code < 300:
		return "success"
	default:
		return "other"
	}
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
