// Package sink defines the external contracts (C7): the persistence
// sink used by both live emission and backfill, and the telemetry sink
// used for connector/inclusion traceability. These are specified by
// call shape only (spec.md §6) — callers depend on the interfaces, not
// on any one backing store.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// ErrNotFound is returned by read paths when no row exists for the key.
var ErrNotFound = errors.New("sink: not found")

// PersistenceSink stores composite and venue bars, keyed respectively
// by (time, asset, market_type) and (time, asset, market_type, venue).
// Implementations MUST make the is_backfilled flag monotonic: an
// upsert must never flip it from true back to false.
type PersistenceSink interface {
	UpsertCompositeBar(ctx context.Context, c bar.CompositeBar) error
	UpsertVenueBar(ctx context.Context, asset trade.Asset, market trade.MarketType, v trade.VenueID, b bar.Bar) error

	LatestCompositeBar(ctx context.Context, asset trade.Asset, market trade.MarketType) (bar.CompositeBar, error)
	RangeCompositeBars(ctx context.Context, asset trade.Asset, market trade.MarketType, start, end int64, limit int) ([]bar.CompositeBar, error)

	// GapTimestamps returns bar_times in [start, end) with no stored
	// composite row or a stored row with is_gap=true, ascending.
	GapTimestamps(ctx context.Context, asset trade.Asset, market trade.MarketType, start, end int64) ([]int64, error)

	// RetentionSweep deletes composite and venue bars older than
	// olderThanDays, returning the number of composite rows removed.
	RetentionSweep(ctx context.Context, olderThanDays int) (int, error)
}

// TelemetrySink records operational events for traceability: every
// venue bar's inclusion outcome and each connector's connection state
// transitions. It must never block the aggregator's minute tick
// (spec.md §5's "emission callbacks must not block").
type TelemetrySink interface {
	RecordVenueBar(ctx context.Context, asset trade.Asset, market trade.MarketType, b bar.Bar, included bool, reason bar.ExcludeReason) error
	RecordConnectionState(ctx context.Context, v trade.VenueID, asset trade.Asset, market trade.MarketType, connected bool, at time.Time) error
}
