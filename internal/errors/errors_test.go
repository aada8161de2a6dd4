package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindFromStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusTooManyRequests:     KindThrottled,
		http.StatusInternalServerError: KindServerFault,
		http.StatusBadGateway:          KindServerFault,
		http.StatusServiceUnavailable:  KindServerFault,
		http.StatusBadRequest:          KindRequestRejected,
		http.StatusUnauthorized:        KindRequestRejected,
		http.StatusNotFound:            KindRequestRejected,
		http.StatusConflict:            KindRequestRejected,
		http.StatusOK:                  KindUnknown,
	}
	for status, want := range cases {
		require.Equal(t, want, KindFromStatus(status), "status %d", status)
	}
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&APIError{Kind: KindThrottled, Status: 429}))
	require.True(t, IsRetryable(&APIError{Kind: KindServerFault, Status: 503}))
	require.True(t, IsRetryable(&APIError{Kind: KindTransient}))
	require.False(t, IsRetryable(&APIError{Kind: KindRequestRejected, Status: 400}))
	require.False(t, IsRetryable(stderrors.New("boom")))
	require.False(t, IsRetryable(nil))

	wrapped := fmt.Errorf("query database: %w", &APIError{Kind: KindThrottled, Status: 429})
	require.True(t, IsRetryable(wrapped))
	require.True(t, IsThrottled(wrapped))
}

func TestKindOfPrefersSyntheticErrors(t *testing.T) {
	last := &APIError{Kind: KindThrottled, Status: 429}
	exhausted := &RetriesExhaustedError{Reason: "maximum retries exceeded", Attempts: 3, Last: last}

	require.Equal(t, KindRetriesExhausted, KindOf(exhausted))
	require.False(t, IsRetryable(exhausted))
	require.ErrorIs(t, exhausted, last)

	overrun := &PaginationOverrunError{Pages: 1001, Limit: 1000}
	require.Equal(t, KindPaginationOverrun, KindOf(overrun))
	require.Contains(t, overrun.Error(), "pagination limit exceeded")

	canceled := &CanceledError{Attempts: 2, Err: context.Canceled}
	require.Equal(t, KindCanceled, KindOf(canceled))
	require.ErrorIs(t, canceled, context.Canceled)
}

func TestClassify(t *testing.T) {
	t.Run("ConnectionRefused", func(t *testing.T) {
		err := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		require.Equal(t, KindTransient, Classify(err))
	})

	t.Run("DNS", func(t *testing.T) {
		err := &net.DNSError{Err: "no such host", Name: "api.example.invalid", IsNotFound: true}
		require.Equal(t, KindTransient, Classify(err))
	})

	t.Run("UnexpectedEOF", func(t *testing.T) {
		require.Equal(t, KindTransient, Classify(fmt.Errorf("read body: %w", io.ErrUnexpectedEOF)))
	})

	t.Run("Canceled", func(t *testing.T) {
		require.Equal(t, KindCanceled, Classify(context.Canceled))
	})

	t.Run("AlreadyClassified", func(t *testing.T) {
		require.Equal(t, KindRequestRejected, Classify(&APIError{Kind: KindRequestRejected}))
	})

	t.Run("Unrecognised", func(t *testing.T) {
		require.Equal(t, KindUnknown, Classify(stderrors.New("something odd")))
	})
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{
		Kind:    KindRequestRejected,
		Status:  400,
		Code:    "validation_error",
		Message: "body failed validation",
		Method:  http.MethodPost,
		Path:    "/v1/search",
	}
	require.Equal(t, "POST /v1/search: status 400 (validation_error): body failed validation", err.Error())

	transient := &APIError{Kind: KindTransient, Err: io.ErrUnexpectedEOF}
	require.Equal(t, "transient: unexpected EOF", transient.Error())
}

func TestToEnvelope(t *testing.T) {
	exhausted := &RetriesExhaustedError{
		Reason:   "cumulative delay budget exceeded",
		Attempts: 2,
		Last:     &APIError{Kind: KindThrottled, Status: 429, RequestID: "req-1"},
	}

	env := ToEnvelope(exhausted)
	require.Equal(t, CodeRetriesExhausted, env.Code)
	require.Equal(t, "cumulative delay budget exceeded", env.Context["reason"])
	require.Equal(t, "req-1", env.Context["request_id"])

	rejected := ToEnvelope(&APIError{Kind: KindRequestRejected, Status: 404})
	require.Equal(t, CodeUpstreamRejected, rejected.Code)

	nilEnv := ToEnvelope(nil)
	require.Equal(t, CodeInternal, nilEnv.Code)
}

func TestRespondWithEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithEnvelope(rec, "req-42", NewRateLimitedError("slow down"))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"object":"error","status":429,"code":"RATE_LIMITED","message":"slow down","request_id":"req-42"}`, rec.Body.String())
}
