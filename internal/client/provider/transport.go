package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gamecatalog/internal/metrics"
	"gamecatalog/internal/ratelimit"
)

// Options are shared by both provider clients. Passing the same Limiter to
// both makes the spacing apply to every outbound call in the process.
type Options struct {
	HTTPClient *http.Client
	Limiter    ratelimit.Limiter
	Backoff    ratelimit.Backoff
	MaxRetries int
	Logger     *zap.Logger
}

type transport struct {
	name       string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	backoff    ratelimit.Backoff
	maxRetries int
	logger     *zap.Logger
}

func newTransport(name string, opts Options) *transport {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &transport{
		name:       name,
		httpClient: httpClient,
		limiter:    opts.Limiter,
		backoff:    opts.Backoff,
		maxRetries: maxRetries,
		logger:     logger.With(zap.String("provider", name)),
	}
}

// get performs a rate-limited GET. A 429 is retried with jittered exponential
// backoff up to maxRetries times; after that ErrRateLimited is returned.
func (t *transport) get(ctx context.Context, fullURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				t.count(err)
				return nil, err
			}
		}
		body, retryAfter, err := t.do(ctx, fullURL)
		if err == nil {
			t.count(nil)
			return body, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			t.count(err)
			return nil, err
		}
		if attempt >= t.maxRetries {
			t.count(err)
			return nil, fmt.Errorf("%w after %d retries", err, attempt)
		}
		delay := t.backoff.Delay(attempt)
		if retryAfter > delay {
			delay = retryAfter
		}
		if t.backoff.Max > 0 && delay > t.backoff.Max {
			delay = t.backoff.Max
		}
		metrics.RateLimitRetriesTotal.WithLabelValues(t.name).Inc()
		t.logger.Warn("provider throttled, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		if err := ratelimit.Sleep(ctx, delay); err != nil {
			t.count(err)
			return nil, err
		}
	}
}

func (t *transport) do(ctx context.Context, fullURL string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request failed: %w", t.name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return body, 0, nil
	case http.StatusNotFound:
		return nil, 0, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), ErrRateLimited
	default:
		return nil, 0, &APIError{Provider: t.name, Status: resp.StatusCode, Body: string(body)}
	}
}

func (t *transport) count(err error) {
	metrics.ProviderRequestsTotal.WithLabelValues(t.name, Classify(err)).Inc()
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
