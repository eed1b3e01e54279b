package oracle

import (
	"context"
	"errors"
	"time"
)

const (
	rateLimitWait     = 500 * time.Millisecond
	rateLimitAttempts = 5
)

// errRateLimited marks a response the endpoint refused with 429.
var errRateLimited = errors.New("rate limited")

type fetchFunc[T any] func() (T, error)

// rateLimitRetry repeats fn while the endpoint answers 429, waiting between
// attempts. It gives up after rateLimitAttempts or when ctx is done.
func rateLimitRetry[T any](ctx context.Context, wait time.Duration, fn fetchFunc[T]) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 0; attempt < rateLimitAttempts; attempt++ {
		result, err = fn()
		if !errors.Is(err, errRateLimited) {
			return result, err
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}
	return result, err
}
