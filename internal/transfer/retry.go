package transfer

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// Default backoff bounds for RetryPolicy.
const (
	DefaultRetryBase = 500 * time.Millisecond
	DefaultRetryMax  = 10 * time.Second
)

// jitterPercent spreads retries of concurrent callers apart.
const jitterPercent = 25

// RetryPolicy retries idempotent reads (list, resolve) on transient failures
// with capped exponential backoff. The zero value never retries. Uploads and
// deletes are never passed through a RetryPolicy.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
	Max        time.Duration
}

// Do runs fn, retrying while it fails with a transient error and retries
// remain. The last error is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	if p.MaxRetries == 0 {
		return fn(ctx)
	}

	base := p.Base
	if base <= 0 {
		base = DefaultRetryBase
	}

	capped := p.Max
	if capped <= 0 {
		capped = DefaultRetryMax
	}

	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(capped, b)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithMaxRetries(p.MaxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && api.IsTransient(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}
