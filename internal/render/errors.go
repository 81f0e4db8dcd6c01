package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
)

// ErrRendererUnavailable reports that no headless browser can be started.
var ErrRendererUnavailable = errors.New("headless renderer unavailable")

// ErrTimeout indicates a timeout while loading a page.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 401/403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing page (HTTP 404/410).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// classifyError wraps err into one of the typed errors above based on the
// error value and the HTTP status, if any.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode < http.StatusBadRequest {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("status %d %s", statusCode, http.StatusText(statusCode))
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrForbidden{Err: err}
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound{Err: err}
	case http.StatusTooManyRequests:
		return ErrRateLimited{Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection{Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrConnection{Err: err}
	}
	return err
}

// ErrorType returns a short label for logs and metrics.
func ErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, ErrRendererUnavailable) {
		return "unavailable"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}

// isUnavailable reports whether err means the browser binary itself is
// missing, as opposed to a page failing to load.
func isUnavailable(err error) bool {
	return errors.Is(err, ErrRendererUnavailable) || errors.Is(err, exec.ErrNotFound)
}
