package downloader

import (
	"context"

	"golang.org/x/time/rate"
)

// RequestPacer rate-limits outbound GET_BLOCK_HEADERS dispatch so a burst
// of retries against a rotating peer set never floods the wire faster
// than the configured budget allows.
type RequestPacer struct {
	limiter *rate.Limiter
}

// NewRequestPacer builds a pacer allowing perSecond requests on average
// with room for an initial burst of up to burst requests.
func NewRequestPacer(perSecond float64, burst int) *RequestPacer {
	return &RequestPacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a request may be issued or ctx is cancelled.
func (p *RequestPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
