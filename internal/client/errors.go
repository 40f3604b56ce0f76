package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind classifies the terminal outcome of a failed operation
type Kind int

const (
	// KindTransient covers timeouts, connection failures, 408, 429 and 5xx
	// once retries are exhausted.
	KindTransient Kind = iota + 1
	// KindRejected covers 4xx responses other than 401, 403, 408 and 429.
	// They are never retried.
	KindRejected
	// KindFatal covers 401 and 403. The whole run must stop.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrFatal matches any *Error of KindFatal via errors.Is
var ErrFatal = errors.New("authentication failed")

// Error is the failure of one logical operation after retries
type Error struct {
	Kind     Kind
	Endpoint string
	Method   string
	Path     string
	Status   int    // 0 when no response was received
	Message  string // server diagnostic or transport error text
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %s: ", e.Method, e.Path, e.Endpoint)
	if e.Status != 0 {
		fmt.Fprintf(&b, "status %d", e.Status)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrFatal for authentication failures
func (e *Error) Is(target error) bool {
	return target == ErrFatal && e.Kind == KindFatal
}

// KindOf returns the Kind of err, or 0 when err is not an *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsFatal reports whether err must abort the run
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status >= 200 && status < 300:
		return 0, true
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindFatal, false
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return KindTransient, false
	default:
		return KindRejected, false
	}
}

const maxMessageLen = 512

// diagnostic extracts a readable message from an error response body
func diagnostic(body []byte) string {
	var payload struct {
		Message string   `json:"message"`
		Error   string   `json:"error"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case len(payload.Errors) > 0:
			return strings.Join(payload.Errors, "; ")
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
