package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/italolelis/poster_downloader/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// drainLimit bounds how much of a rejected response body is read so the
// connection can go back to the pool.
const drainLimit = 4 << 10

// RetryPolicy controls how failed attempts are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	// Default: 3
	MaxAttempts int

	// BaseBackoff is the wait after the first failed attempt. Attempt k waits
	// BaseBackoff * 2^(k-1).
	// Default: 500ms
	BaseBackoff time.Duration

	// MaxBackoff caps a single wait.
	// Default: 10s
	MaxBackoff time.Duration

	// RetryStatusCodes lists non-200 statuses that are retried like network
	// failures. Every other non-200 status fails immediately.
	RetryStatusCodes []int
}

// Options configures the Client.
type Options struct {
	// Timeout bounds every single attempt, body included.
	// Default: 30s
	Timeout time.Duration

	Retry RetryPolicy

	// MaxIdleConnsPerHost sets the size of the idle pool per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// UserAgent is sent with every request when not empty.
	UserAgent string

	// Transport replaces the default pooled transport. It is still wrapped
	// with OpenTelemetry instrumentation.
	Transport http.RoundTripper
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout: 30 * time.Second,
		Retry: RetryPolicy{
			MaxAttempts:      3,
			BaseBackoff:      500 * time.Millisecond,
			MaxBackoff:       10 * time.Second,
			RetryStatusCodes: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		},
		MaxIdleConnsPerHost: 100,
		UserAgent:           "poster_downloader",
	}
}

// Client fetches whole payloads over HTTP. It keeps no per-request state and
// is safe for concurrent use; all calls share one connection pool.
type Client struct {
	client      *http.Client
	opts        Options
	retryStatus map[int]struct{}
}

// NewClient creates a Client, filling zero fields of opts with defaults.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()

	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if opts.Retry.BaseBackoff <= 0 {
		opts.Retry.BaseBackoff = defaults.Retry.BaseBackoff
	}
	if opts.Retry.MaxBackoff < opts.Retry.BaseBackoff {
		opts.Retry.MaxBackoff = max(defaults.Retry.MaxBackoff, opts.Retry.BaseBackoff)
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}

	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
			MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	retryStatus := make(map[int]struct{}, len(opts.Retry.RetryStatusCodes))
	for _, code := range opts.Retry.RetryStatusCodes {
		retryStatus[code] = struct{}{}
	}

	return &Client{
		client:      &http.Client{Transport: otelhttp.NewTransport(base)},
		opts:        opts,
		retryStatus: retryStatus,
	}
}

// Options returns the effective options of the client.
func (c *Client) Options() Options {
	return c.opts
}

// Result is the payload of a fetch together with the number of attempts it took.
type Result struct {
	Body     []byte
	Attempts int
}

// Fetch downloads the body behind url.
//
// A 200 response returns the body. Other statuses return *BadStatusError
// without retry unless listed in RetryPolicy.RetryStatusCodes. Network
// failures and attempt timeouts are retried with exponential backoff; when the
// attempts run out *ExhaustedError is returned. Cancelling ctx stops the
// retries and returns the context error.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := c.Do(ctx, url)
	if err != nil {
		return nil, err
	}

	return res.Body, nil
}

// Do is Fetch but also reports how many attempts were made, on success and
// on failure alike.
func (c *Client) Do(ctx context.Context, url string) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.opts.Retry.BaseBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.opts.Retry.MaxBackoff,
	}
	b.Reset()

	attempts := 0

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++

		body, err := c.attempt(ctx, url)
		if err != nil && !c.retryable(err) {
			return nil, backoff.Permanent(err)
		}

		return body, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.Retry.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.DebugContext(ctx, "retrying fetch", "url", url, "attempt", attempts, "wait", next.String(), "err", err)
		}),
	)
	if err == nil {
		return Result{Body: body, Attempts: attempts}, nil
	}

	res := Result{Attempts: attempts}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("fetch %s: %w", url, ctxErr)
	}

	if !c.retryable(err) {
		return res, err
	}

	return res, &ExhaustedError{URL: url, Attempts: attempts, Last: err}
}

// attempt performs one GET bounded by the configured timeout.
func (c *Client) attempt(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &InvalidURLError{URL: url, Err: err}
	}

	if (req.URL.Scheme != "http" && req.URL.Scheme != "https") || req.URL.Host == "" {
		return nil, &InvalidURLError{URL: url, Err: errors.New("only absolute http and https urls are supported")}
	}

	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.classify(ctx, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

		return nil, &BadStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, url, err)
	}

	return body, nil
}

// classify turns a transport error of one attempt into a typed error.
func (c *Client) classify(attemptCtx context.Context, url string, err error) error {
	var netErr net.Error

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{URL: url, Timeout: c.opts.Timeout.String(), Err: err}
	}

	return &NetworkError{URL: url, Err: err}
}

func (c *Client) retryable(err error) bool {
	var (
		statusErr  *BadStatusError
		networkErr *NetworkError
		timeoutErr *TimeoutError
	)

	switch {
	case errors.As(err, &statusErr):
		_, ok := c.retryStatus[statusErr.StatusCode]

		return ok
	case errors.As(err, &networkErr), errors.As(err, &timeoutErr):
		return true
	default:
		return false
	}
}
