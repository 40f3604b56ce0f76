package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cfgsync/internal/ratelimit"
)

// statusSequence replies with the given statuses in order, repeating the last
func statusSequence(t *testing.T, hits *int32, statuses ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(hits, 1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"message":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(attempts int, limiter *ratelimit.Bucket) *Client {
	return New(Options{
		RequestTimeout: time.Second,
		RetryAttempts:  attempts,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Limiter:        limiter,
		Logger:         zerolog.Nop(),
	})
}

func get(srv *httptest.Server) Request {
	return Request{
		Endpoint: Endpoint{Name: "source", BaseURL: srv.URL, Token: "t", VerifySSL: true},
		Method:   http.MethodGet,
		Path:     "/api/custom-dashboard",
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := statusSequence(t, &hits, 503, 502, 429, 200)
	c := newTestClient(5, nil)

	res, err := c.Do(context.Background(), get(srv))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))

	var body map[string]bool
	require.NoError(t, res.Decode(&body))
	assert.True(t, body["ok"])
}

func TestDoExhaustsTransientRetries(t *testing.T) {
	var hits int32
	srv := statusSequence(t, &hits, 503)
	c := newTestClient(3, nil)

	_, err := c.Do(context.Background(), get(srv))
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindTransient, apiErr.Kind)
	assert.Equal(t, 3, apiErr.Attempts)
	assert.Equal(t, 503, apiErr.Status)
	assert.False(t, IsFatal(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestDoZeroAttemptsMeansSingleTry(t *testing.T) {
	var hits int32
	srv := statusSequence(t, &hits, 503, 200)
	c := newTestClient(0, nil)

	_, err := c.Do(context.Background(), get(srv))
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDoFatalIsNotRetried(t *testing.T) {
	for _, status := range []int{401, 403} {
		var hits int32
		srv := statusSequence(t, &hits, status)
		c := newTestClient(5, nil)

		_, err := c.Do(context.Background(), get(srv))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFatal))
		assert.Equal(t, KindFatal, KindOf(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	}
}

func TestDoRejectedCarriesDiagnostic(t *testing.T) {
	var hits int32
	srv := statusSequence(t, &hits, 400)
	c := newTestClient(5, nil)

	_, err := c.Do(context.Background(), get(srv))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindRejected, apiErr.Kind)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Contains(t, err.Error(), "status 400")
}

func TestDoHonorsRetryAfter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(Options{
		RequestTimeout: time.Second,
		RetryAttempts:  2,
		BaseDelay:      time.Millisecond,
		Logger:         zerolog.Nop(),
	})

	start := time.Now()
	res, err := c.Do(context.Background(), get(srv))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, time.Second, res.Backoff)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestDoTimeoutIsTransient(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(Options{
		RequestTimeout: 20 * time.Millisecond,
		RetryAttempts:  2,
		BaseDelay:      time.Millisecond,
		Logger:         zerolog.Nop(),
	})

	_, err := c.Do(context.Background(), get(srv))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindTransient, apiErr.Kind)
	assert.Equal(t, 2, apiErr.Attempts)
	assert.Contains(t, apiErr.Message, "timed out")
}

func TestDoConsultsLimiterPerAttempt(t *testing.T) {
	var hits int32
	srv := statusSequence(t, &hits, 500, 500, 200)
	limiter := ratelimit.New(0.001, 10)
	c := newTestClient(3, limiter)

	_, err := c.Do(context.Background(), get(srv))
	require.NoError(t, err)
	assert.InDelta(t, 7.0, limiter.Tokens(), 0.01)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	var hits int32
	srv := statusSequence(t, &hits, 503)
	c := New(Options{RetryAttempts: 5, BaseDelay: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Do(ctx, get(srv))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDoSendsTokenAndBody(t *testing.T) {
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"new"}`))
	}))
	defer srv.Close()

	c := newTestClient(1, nil)
	req := Request{
		Endpoint: Endpoint{Name: "target", BaseURL: srv.URL + "/", Token: "secret", VerifySSL: true},
		Method:   http.MethodPost,
		Path:     "/api/custom-dashboard",
		Body:     map[string]string{"title": "x"},
	}
	res, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.Status)
	assert.Equal(t, "apiToken secret", gotAuth)
	assert.Equal(t, "application/json", gotType)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "3", 3 * time.Second},
		{"negative", "-1", 0},
		{"date", now.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.in, now))
		})
	}
}

func TestEndpointURL(t *testing.T) {
	e := Endpoint{BaseURL: "https://example.com/"}
	assert.Equal(t, "https://example.com/api/custom-dashboard", e.URL("/api/custom-dashboard"))
}

func TestDiagnosticTruncatesOnRuneBoundary(t *testing.T) {
	body := []byte(strings.Repeat("a", maxMessageLen-1) + strings.Repeat("é", 10))

	msg := diagnostic(body)
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Equal(t, strings.Repeat("a", maxMessageLen-1)+"...", msg)

	assert.Equal(t, "short", diagnostic([]byte("  short \n")))
	assert.Equal(t, "bad widget", diagnostic([]byte(`{"message":"bad widget"}`)))
}
