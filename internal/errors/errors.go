// Package errors defines the failure taxonomy shared by the transport, the
// retry executor and the pagination engine, plus the gofulmen envelope
// helpers used by the CLI and the mock API server.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a failure for retry decisions. It never changes the error
// reported to the caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindThrottled
	KindServerFault
	KindTransient
	KindRequestRejected
	KindRetriesExhausted
	KindPaginationOverrun
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindServerFault:
		return "server_fault"
	case KindTransient:
		return "transient"
	case KindRequestRejected:
		return "request_rejected"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindPaginationOverrun:
		return "pagination_overrun"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may be retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindThrottled, KindServerFault, KindTransient:
		return true
	default:
		return false
	}
}

// KindFromStatus maps an HTTP status code to a failure kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindThrottled
	case status >= 500 && status <= 599:
		return KindServerFault
	case status >= 400 && status <= 499:
		return KindRequestRejected
	default:
		return KindUnknown
	}
}

// APIError is the structured failure produced by the HTTP transport. The kind
// is assigned once, where the failure is observed.
type APIError struct {
	Kind      Kind
	Status    int
	Code      string
	Message   string
	Method    string
	Path      string
	RequestID string
	Headers   http.Header
	Err       error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	if e.Method != "" || e.Path != "" {
		fmt.Fprintf(&b, "%s %s: ", e.Method, e.Path)
	}
	if e.Status > 0 {
		fmt.Fprintf(&b, "status %d", e.Status)
		if e.Code != "" {
			fmt.Fprintf(&b, " (%s)", e.Code)
		}
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RateLimitHeaders exposes the response headers so rate-limit state can be
// extracted from a failed exchange.
func (e *APIError) RateLimitHeaders() http.Header {
	if e == nil {
		return nil
	}
	return e.Headers
}

// RetriesExhaustedError is returned by the retry executor once the backoff
// calculator rejects any further attempt.
type RetriesExhaustedError struct {
	Reason       string
	Attempts     int
	TotalBackoff time.Duration
	Last         error
}

func (e *RetriesExhaustedError) Error() string {
	msg := fmt.Sprintf("retries exhausted after %d attempt(s): %s", e.Attempts, e.Reason)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// PaginationOverrunError is returned when a paginated walk exceeds its page
// budget or revisits a cursor.
type PaginationOverrunError struct {
	Pages  int
	Limit  int
	Cursor string
	Reason string
}

func (e *PaginationOverrunError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("pagination limit exceeded after %d page(s): %s", e.Pages, e.Reason)
	}
	return fmt.Sprintf("pagination limit exceeded: %d page(s) fetched, limit %d", e.Pages, e.Limit)
}

// CanceledError marks a call abandoned because its context ended, typically
// while suspended between retries.
type CanceledError struct {
	Attempts int
	Err      error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("canceled after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first classified error in err's chain.
// Synthetic terminal errors take precedence over the errors they wrap.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var exhausted *RetriesExhaustedError
	if stderrors.As(err, &exhausted) {
		return KindRetriesExhausted
	}
	var overrun *PaginationOverrunError
	if stderrors.As(err, &overrun) {
		return KindPaginationOverrun
	}
	var canceled *CanceledError
	if stderrors.As(err, &canceled) {
		return KindCanceled
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is classified as throttling, a server fault
// or a transient network failure. Unrecognised errors are not retryable.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// IsThrottled reports whether err is a throttling failure.
func IsThrottled(err error) bool {
	return KindOf(err) == KindThrottled
}
