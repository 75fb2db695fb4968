// Package fetch retrieves remote documents over HTTP with bounded retries.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
)

// Options controls retry behavior. Backoff is the wait before the second
// attempt; it doubles on each further attempt up to MaxBackoff. Setting
// MaxBackoff equal to Backoff gives a fixed delay.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
}

// Client performs GET requests for one named data source.
type Client struct {
	source     string
	opts       Options
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a fetch client. source labels metrics and logs.
func NewClient(source string, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = opts.Backoff
	}
	return &Client{
		source:     source,
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch GETs rawURL with params and returns the response body. Transport
// errors and non-2xx responses are retried up to MaxAttempts times; when
// attempts run out the error wraps domain.ErrDataUnavailable.
func (c *Client) Fetch(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	full := rawURL
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	backoff := c.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff, c.opts.MaxBackoff)
		}

		body, err := c.get(ctx, full)
		if err == nil {
			c.metrics.FetchRequests.WithLabelValues(c.source, "success").Inc()
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.metrics.FetchRequests.WithLabelValues(c.source, "retry").Inc()
		c.logger.Warn("fetch attempt failed",
			"source", c.source,
			"attempt", attempt,
			"max_attempts", c.opts.MaxAttempts,
			"error", err,
		)
	}

	c.metrics.FetchRequests.WithLabelValues(c.source, "exhausted").Inc()
	return nil, fmt.Errorf("%s: %d attempts failed: %w: %w", c.source, c.opts.MaxAttempts, domain.ErrDataUnavailable, lastErr)
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	start := time.Now()
	defer func() {
		c.metrics.FetchDuration.WithLabelValues(c.source).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
