// Package ratelimit paces outbound REST calls per venue during
// backfill (spec.md §4.6: "100-500ms inter-request delay per venue").
// Grounded on the teacher's internal/providers/kraken/ratelimiter.go
// (per-client token-bucket wrapper with a Wait(ctx) method), built on
// golang.org/x/time/rate instead of a hand-rolled bucket.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests to at most one per interval, burst 1 — a
// fixed inter-request delay rather than a bursty budget, matching
// spec.md's "inter-request delay" phrasing.
type Limiter struct {
	l *rate.Limiter
}

// New constructs a Limiter enforcing at least delayMs between
// successive Wait calls.
func New(delayMs int) *Limiter {
	if delayMs <= 0 {
		return &Limiter{l: rate.NewLimiter(rate.Inf, 1)}
	}
	every := rate.Every(time.Duration(delayMs) * time.Millisecond)
	return &Limiter{l: rate.NewLimiter(every, 1)}
}

// Wait blocks until the next request is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}
