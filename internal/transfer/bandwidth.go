package transfer

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// burstMultiplier sizes the token bucket relative to the per-second rate so a
// short stall can be made up without exceeding the sustained limit.
const burstMultiplier = 2

// BandwidthLimiter caps aggregate upload throughput. One limiter is shared by
// every task of an Orchestrator, so parallel uploads split the budget.
// A nil *BandwidthLimiter means unlimited.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns nil for bytesPerSec <= 0 (unlimited).
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	burst := int(bytesPerSec) * burstMultiplier

	logger.Debug("bandwidth limiter created",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// WrapReader returns r throttled by the limiter, or r itself when bl is nil.
func (bl *BandwidthLimiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &rateLimitedReader{r: r, limiter: bl.limiter, ctx: ctx}
}

// rateLimitedReader blocks after each read until the limiter has admitted
// the bytes consumed.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if waitErr := waitN(r.ctx, r.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

// waitN splits n into burst-sized requests; rate.Limiter.WaitN rejects any
// single request larger than the burst.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		take := min(n, burst)

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
