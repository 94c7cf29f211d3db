package overpass

import (
	"errors"
	"fmt"
)

// Sentinel errors for Overpass operations.
var (
	ErrRateLimited       = errors.New("overpass: rate limited by server")
	ErrGatewayTimeout    = errors.New("overpass: gateway timeout")
	ErrServer            = errors.New("overpass: server error")
	ErrBadRequest        = errors.New("overpass: bad request")
	ErrUnexpectedContent = errors.New("overpass: unexpected content type")
	ErrRuntime           = errors.New("overpass: query runtime error")
	ErrNoEndpoints       = errors.New("overpass: no endpoints configured")
)

// Error wraps an underlying error with the endpoint and attempt count.
type Error struct {
	Op       string
	Endpoint string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("overpass %s [%s, %d attempt(s)]: %v", e.Op, e.Endpoint, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt, possibly on another endpoint,
// may succeed. Transport failures are retried; the caller stops once its
// context is done.
func retryable(err error) bool {
	return !errors.Is(err, ErrBadRequest) && !errors.Is(err, ErrNoEndpoints)
}
