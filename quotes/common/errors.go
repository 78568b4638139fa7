package common

import (
	"errors"
	"fmt"
	"time"
)

// Err is the root every error kind in this library wraps, so that
// errors.Is(err, common.Err) matches any failure originating here.
var Err = errors.New("stock-quotes")

var (
	// ErrSymbol means: the symbol matches no supported market, or a date
	// argument is malformed.
	ErrSymbol = fmt.Errorf("%w: bad symbol or date", Err)

	// ErrDataSource means: the vendor answered with an error payload, or the
	// whole retrieval produced no data at all.
	ErrDataSource = fmt.Errorf("%w: vendor error", Err)

	// ErrParse means: the vendor response did not match the documented shape.
	ErrParse = fmt.Errorf("%w: parse failure", Err)

	// ErrNetwork means: the request kept failing after exhausting all retry
	// attempts.
	ErrNetwork = fmt.Errorf("%w: network failure", Err)

	// ErrCache means: a cache backend failed at the I/O level. Cache failures
	// surface as-is; there is no silent network fallback.
	ErrCache = fmt.Errorf("%w: cache failure", Err)

	// ErrCacheMiss means: the cache holds nothing fresh for the requested key
	// and window. It is a flow signal, not a failure, and does not wrap Err.
	ErrCacheMiss = errors.New("cache miss")
)

// QuoteReqError is the error vendor requests travel in. Code carries the HTTP
// status or the vendor's own error code, IsNotRetryable short-circuits the
// retrier and RetryAfter overrides its back-off when the vendor said how long
// to wait.
type QuoteReqError struct {
	Code           int
	Err            error
	IsNotRetryable bool
	IsVendorSide   bool
	RetryAfter     time.Duration
}

func (e QuoteReqError) Error() string {
	return e.Err.Error()
}

func (e QuoteReqError) Unwrap() error {
	return e.Err
}
