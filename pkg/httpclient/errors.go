package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// RetryableError is returned by Do after the client's own retry budget is
// spent. RetryAfter carries the delay the caller should honor before
// trying the request again.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt can change the answer.
// Transport failures (status 0), throttling and server errors can;
// any other 4xx cannot.
func (e *RetryableError) IsRetryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}
