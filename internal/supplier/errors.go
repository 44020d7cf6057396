// internal/supplier/errors.go
package supplier

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoData means the upstream answered but carried no usable product
// payload. This is a data failure: retrying cannot fix it.
var ErrNoData = errors.New("supplier returned no product data")

// StatusError is a non-2xx response from the supplier API.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supplier API returned status %d from %s", e.StatusCode, e.Endpoint)
}

// IsRateLimited reports whether err is an HTTP 429 from the supplier.
func IsRateLimited(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}
