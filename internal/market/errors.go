package market

import (
	"errors"
	"fmt"
)

// Sentinel errors for gateway failures. Callers match with errors.Is;
// Transient and RateLimited are already retried inside the client before
// they surface.
var (
	ErrUnavailableRegion = errors.New("market: service unavailable from this region")
	ErrUnknownSymbol     = errors.New("market: unknown symbol")
	ErrRateLimited       = errors.New("market: rate limited")
	ErrTransient         = errors.New("market: transient upstream error")
)

// DataError wraps a sentinel kind with the upstream cause
type DataError struct {
	Kind  error
	Cause string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Cause)
}

func (e *DataError) Unwrap() error {
	return e.Kind
}

func dataErr(kind error, format string, args ...interface{}) *DataError {
	return &DataError{Kind: kind, Cause: fmt.Sprintf(format, args...)}
}
