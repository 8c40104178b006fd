package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx reply from a provider API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned non-2xx status: %d %s", e.Status, e.Body)
}

// Temporary reports whether the call may succeed if repeated: gateway
// failures, throttling and nginx-fronted 500s.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError:
		return strings.Contains(e.Body, "<center>nginx/")
	}
	return false
}

// ClientOptions tunes an API client.
type ClientOptions struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxRetries    int
}

// apiClient is a JSON-over-HTTP client shared by the provider
// implementations. Calls are throttled and transient failures retried with
// exponential backoff up to MaxRetries.
type apiClient struct {
	baseURL    string
	auth       func(*http.Request)
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff
	log        zerolog.Logger
}

func newAPIClient(baseURL string, auth func(*http.Request), opts ClientOptions, log zerolog.Logger) *apiClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		httpClient: &http.Client{
			Timeout: opts.Timeout + time.Second,
		},
		limiter:    rate.NewLimiter(limit, max(opts.Burst, 1)),
		timeout:    opts.Timeout,
		maxRetries: uint64(max(opts.MaxRetries, 0)),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(500*time.Millisecond),
				backoff.WithMaxInterval(10*time.Second),
			)
		},
		log: log,
	}
}

// withTimeout wraps the context with a timeout if it doesn't already have one.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// do sends method path with in as the JSON body (nil for none) and decodes
// the reply into out (nil to discard).
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
		}
		body = b
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	return backoff.RetryNotify(func() error {
		return c.once(ctx, method, path, body, out)
	}, b, func(err error, next time.Duration) {
		c.log.Warn().Err(err).Str("path", path).Dur("retry_in", next).Msg("provider call failed, retrying")
	})
}

func (c *apiClient) once(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &nerr) {
			return fmt.Errorf("request timeout or connection error: %w", err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Body: string(raw)}
		if apiErr.Temporary() {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}
