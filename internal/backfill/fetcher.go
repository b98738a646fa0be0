package backfill

import (
	"context"
	"errors"
	"fmt"

	"github.com/sawpanic/compositefeed/internal/trade"
)

// ErrBackfillUnsupported is returned by a venue fetcher whose REST API
// has no time-range query capability (e.g. Coinbase) — the venue is
// realtime-only and must be excluded with BACKFILL_UNAVAILABLE rather
// than retried.
var ErrBackfillUnsupported = errors.New("backfill: venue has no time-range REST API")

// VenueFetcherError wraps a venue-specific REST failure with the venue
// prefix spec.md §4.6 requires ("typed runtime error with venue
// prefix").
type VenueFetcherError struct {
	Venue trade.VenueID
	Err   error
}

func (e *VenueFetcherError) Error() string {
	return fmt.Sprintf("backfill[%s]: %v", e.Venue, e.Err)
}

func (e *VenueFetcherError) Unwrap() error { return e.Err }

// VenueFetcher retrieves historical trades for one venue's (asset,
// market) pair over an exact millisecond window [startMs, endMs],
// handling its own pagination and inter-request pacing.
type VenueFetcher interface {
	VenueID() trade.VenueID
	FetchTrades(ctx context.Context, asset trade.Asset, market trade.MarketType, startMs, endMs int64) ([]trade.Trade, error)
}
