package backfill

import (
	"context"

	"github.com/sawpanic/compositefeed/internal/trade"
)

// CoinbaseFetcher exists only to satisfy the VenueFetcher interface for
// symmetry with the realtime venue set; Coinbase's REST API has no
// time-range trade history, so every call fails with
// ErrBackfillUnsupported and the backfill service marks it
// BACKFILL_UNAVAILABLE (spec.md §4.6).
type CoinbaseFetcher struct{}

func NewCoinbaseFetcher() *CoinbaseFetcher { return &CoinbaseFetcher{} }

func (f *CoinbaseFetcher) VenueID() trade.VenueID { return trade.VenueCoinbase }

func (f *CoinbaseFetcher) FetchTrades(_ context.Context, _ trade.Asset, _ trade.MarketType, _, _ int64) ([]trade.Trade, error) {
	return nil, &VenueFetcherError{Venue: trade.VenueCoinbase, Err: ErrBackfillUnsupported}
}
