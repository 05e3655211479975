package apierr

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
	"github.com/vietddude/deepwiki/internal/infra/rpc/timeout"
)

// Classify maps a raw transport or HTTP outcome to a structured error. It is the only
// place raw failures become *Error; the raw error is kept as the cause for logging.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return classify(err).WithCause(err)
}

func classify(err error) *Error {
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr)
	}

	var decodeErr *provider.DecodeError
	if errors.As(err, &decodeErr) {
		return New(KindUnknown, "the service returned a malformed %s response", decodeErr.Op).AsTerminal()
	}

	switch {
	case errors.Is(err, provider.ErrResponseTooLarge):
		return New(KindServer, "the service returned a response larger than the client accepts").AsTerminal()
	case errors.Is(err, timeout.ErrPoolTimeout):
		return New(KindTimeout, "timed out waiting for a free connection")
	case errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		return New(KindTimeout, "request to the service timed out")
	case errors.Is(err, context.Canceled):
		return New(KindUnknown, "request cancelled").AsTerminal()
	case isConnectionFailure(err):
		return New(KindServer, "could not reach the code-intelligence service")
	}

	return New(KindUnknown, "unexpected transport failure").AsTerminal()
}

func classifyStatus(se *provider.StatusError) *Error {
	var e *Error
	switch code := se.StatusCode; {
	case code == http.StatusTooManyRequests:
		e = New(KindRateLimit, "rate limit exceeded")
		e.RetryAfter = se.RetryAfter
	case code == http.StatusNotFound:
		e = New(KindNotFound, "resource not found; check the query id or repository name")
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		e = New(KindValidation, "the service rejected the request")
	case code == http.StatusRequestTimeout:
		e = New(KindTimeout, "the service timed out reading the request")
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		e = New(KindUnknown, "the service refused the credentials (HTTP %d)", code).
			WithSuggestion("Check that the API key is set and valid.")
	case code >= 500:
		e = New(KindServer, "server error (%d); the service may be temporarily unavailable", code)
	default:
		e = New(KindUnknown, "request failed with HTTP %d", code).AsTerminal()
	}
	e.StatusCode = se.StatusCode
	return e
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
