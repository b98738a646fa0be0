// Package bar accumulates normalized trades into minute-aligned per-venue
// OHLCV bars and provides the composite bar shape built on top of them.
package bar

import "github.com/sawpanic/compositefeed/internal/trade"

// Bar is a single-venue, one-minute OHLCV summary with taker-side split.
type Bar struct {
	Time       int64 // unix seconds, floor of minute
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int
	BuyVolume  float64
	SellVolume float64
	BuyCount   int
	SellCount  int
	Venue      trade.VenueID
	Asset      trade.Asset
	MarketType trade.MarketType
	IsPartial  bool
}

// ExcludeReason explains why a venue did not contribute to a composite
// component.
type ExcludeReason string

const (
	ReasonNone                ExcludeReason = ""
	ReasonDisconnected        ExcludeReason = "DISCONNECTED"
	ReasonStale               ExcludeReason = "STALE"
	ReasonOutlier             ExcludeReason = "OUTLIER"
	ReasonNoData              ExcludeReason = "NO_DATA"
	ReasonBackfillUnavailable ExcludeReason = "BACKFILL_UNAVAILABLE"
)

// ExcludedVenue records a venue excluded from the close composite along
// with why.
type ExcludedVenue struct {
	Venue  trade.VenueID
	Reason ExcludeReason
}

// CompositeBar is the per-(asset,market) composite for one minute, built
// from per-venue bars via the outlier filter.
type CompositeBar struct {
	Time       int64
	Asset      trade.Asset
	MarketType trade.MarketType

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume     float64
	BuyVolume  float64
	SellVolume float64
	BuyCount   int
	SellCount  int
	TradeCount int

	IncludedVenues []trade.VenueID
	ExcludedVenues []ExcludedVenue

	IsGap        bool
	Degraded     bool
	IsBackfilled bool
}
