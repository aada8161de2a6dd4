package errors

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"syscall"
)

// Classify assigns a kind to a failure returned by an HTTP exchange before a
// response was received. It inspects error types, never message text.
// Deadline errors are reported as transient timeouts; callers that own the
// context check ctx.Err() themselves to tell cancellation apart.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if kind := KindOf(err); kind != KindUnknown {
		return kind
	}

	if stderrors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return KindTransient
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.ECONNABORTED) ||
		stderrors.Is(err, syscall.EPIPE) {
		return KindTransient
	}

	if stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
		return KindTransient
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return KindTransient
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	return KindUnknown
}
