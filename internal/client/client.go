// Package client executes single logical HTTP operations against a platform
// instance. Every attempt first takes a token from the shared rate limiter;
// transient failures are retried with exponential backoff, authentication
// failures and rejections are surfaced immediately.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/lherron/cfgsync/internal/ratelimit"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 30 * time.Second
)

// Endpoint addresses one platform instance
type Endpoint struct {
	Name      string // "source" or "target", used in logs and errors
	BaseURL   string
	Token     string
	VerifySSL bool
}

// URL joins the base URL and an API path
func (e Endpoint) URL(path string) string {
	return strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Options configures a Client
type Options struct {
	// RequestTimeout bounds each attempt, not the whole operation
	RequestTimeout time.Duration
	// RetryAttempts is the total number of attempts for transient failures.
	// Values below 1 mean a single attempt.
	RetryAttempts int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Limiter       *ratelimit.Bucket
	Logger        zerolog.Logger
	// Transport overrides the HTTP transport (tests)
	Transport http.RoundTripper
}

// Request is one logical operation
type Request struct {
	Endpoint Endpoint
	Method   string
	Path     string
	Body     any // marshaled as JSON when non-nil
}

// Result is the successful outcome of an operation
type Result struct {
	Status   int
	Body     []byte
	Attempts int
	// Backoff is the total time slept between attempts
	Backoff time.Duration
}

// Decode unmarshals the response body into v
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client is the retrying HTTP execution layer. It is safe for concurrent use.
type Client struct {
	opts     Options
	secure   *http.Client
	insecure *http.Client
	log      zerolog.Logger
}

// New creates a client from opts, filling defaults
func New(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}

	c := &Client{opts: opts, log: opts.Logger}
	if opts.Transport != nil {
		c.secure = &http.Client{Transport: opts.Transport}
		c.insecure = c.secure
		return c
	}

	secure := http.DefaultTransport.(*http.Transport).Clone()
	secure.MaxIdleConns = 100
	secure.MaxIdleConnsPerHost = 30
	insecure := secure.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via verify_ssl=false
	c.secure = &http.Client{Transport: secure}
	c.insecure = &http.Client{Transport: insecure}
	return c
}

// Limiter returns the shared rate limiter, nil when unthrottled
func (c *Client) Limiter() *ratelimit.Bucket { return c.opts.Limiter }

// Do executes req, retrying transient failures. The returned error is an
// *Error for HTTP and transport failures, or the context's error when ctx
// ends.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
	}

	bo := c.newBackoff()
	var slept time.Duration
	log := c.log.With().
		Str("endpoint", req.Endpoint.Name).
		Str("method", req.Method).
		Str("path", req.Path).
		Logger()

	for attempt := 1; ; attempt++ {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Acquire(ctx, 1); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, req, payload)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var failure *Error
		var retryAfter time.Duration
		if err != nil {
			failure = &Error{Kind: KindTransient, Message: err.Error(), Err: err}
		} else {
			kind, ok := classifyStatus(resp.status)
			if ok {
				return &Result{Status: resp.status, Body: resp.body, Attempts: attempt, Backoff: slept}, nil
			}
			failure = &Error{Kind: kind, Status: resp.status, Message: diagnostic(resp.body)}
			retryAfter = parseRetryAfter(resp.header.Get("Retry-After"), time.Now())
		}
		failure.Endpoint = req.Endpoint.Name
		failure.Method = req.Method
		failure.Path = req.Path
		failure.Attempts = attempt

		if failure.Kind != KindTransient || attempt >= c.opts.RetryAttempts {
			return nil, failure
		}

		delay := bo.NextBackOff()
		if retryAfter > 0 {
			delay = retryAfter
		}
		log.Debug().
			Int("attempt", attempt).
			Int("status", failure.Status).
			Dur("delay", delay).
			Str("reason", failure.Message).
			Msg("retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			slept += delay
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// attempt performs one HTTP round trip under the per-request deadline. The
// body is fully read and closed before returning.
func (c *Client) attempt(ctx context.Context, req Request, payload []byte) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Endpoint.URL(req.Path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "apiToken "+req.Endpoint.Token)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.secure
	if !req.Endpoint.VerifySSL {
		httpClient = c.insecure
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timed out after %s: %w", c.opts.RequestTimeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = c.opts.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
