package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Transient marks an error as safe to retry, carrying the HTTP status
// that triggered it when one applies.
type Transient struct {
	Err        error
	StatusCode int
}

func (e *Transient) Error() string { return e.Err.Error() }

func (e *Transient) Unwrap() error { return e.Err }

// MarkTransient wraps an error as retryable. statusCode may be zero.
func MarkTransient(err error, statusCode int) error {
	return &Transient{Err: err, StatusCode: statusCode}
}

// TransientStatus reports whether an HTTP status is a server-side
// condition worth retrying.
func TransientStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsTransient reports whether the error is marked Transient or looks
// like a network-level hiccup. Anything else is a permanent answer.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var t *Transient
	if errors.As(err, &t) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped transport errors only surface as text.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
