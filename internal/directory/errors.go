package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// FetchError is returned by Fetcher implementations once any internal
// retrying has been exhausted. StatusCode is zero for network-level
// failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the failure indicates throttling or a temporary
// outage rather than a problem with the request itself. Only transient
// failures are worth retrying.
func (e *FetchError) Transient() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	if e.StatusCode != 0 {
		return false
	}
	return isNetworkError(e.Err)
}

// isNetworkError distinguishes connectivity trouble from client-side
// mistakes that also surface without a status code, such as a malformed URL
// or a collector refusing a revisit. Retrying the latter can only fail the
// same way again.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTransientFetch reports whether err wraps a transient FetchError.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}
