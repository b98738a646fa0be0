package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/trade"
)

func TestMemory_UpsertCompositeBar_MonotonicBackfilled(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.UpsertCompositeBar(ctx, bar.CompositeBar{
		Asset: "BTC", MarketType: trade.MarketSpot, Time: 60, IsBackfilled: true, Close: 100,
	}))
	require.NoError(t, m.UpsertCompositeBar(ctx, bar.CompositeBar{
		Asset: "BTC", MarketType: trade.MarketSpot, Time: 60, IsBackfilled: false, Close: 101,
	}))

	latest, err := m.LatestCompositeBar(ctx, "BTC", trade.MarketSpot)
	require.NoError(t, err)
	assert.True(t, latest.IsBackfilled)
	assert.Equal(t, 101.0, latest.Close) // other fields still overwritten
}

func TestMemory_LatestCompositeBar_NotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.LatestCompositeBar(context.Background(), "BTC", trade.MarketSpot)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_RangeCompositeBars_NewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, ts := range []int64{60, 120, 180, 240} {
		require.NoError(t, m.UpsertCompositeBar(ctx, bar.CompositeBar{Asset: "ETH", MarketType: trade.MarketPerp, Time: ts}))
	}

	out, err := m.RangeCompositeBars(ctx, "ETH", trade.MarketPerp, 0, 300, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(240), out[0].Time)
	assert.Equal(t, int64(180), out[1].Time)
}

func TestMemory_GapTimestamps_MissingAndFlaggedGap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertCompositeBar(ctx, bar.CompositeBar{Asset: "BTC", MarketType: trade.MarketSpot, Time: 60, IsGap: false}))
	require.NoError(t, m.UpsertCompositeBar(ctx, bar.CompositeBar{Asset: "BTC", MarketType: trade.MarketSpot, Time: 120, IsGap: true}))
	// 180 has no row at all.

	gaps, err := m.GapTimestamps(ctx, "BTC", trade.MarketSpot, 60, 240)
	require.NoError(t, err)
	assert.Equal(t, []int64{120, 180}, gaps)
}

func TestMemory_RecordVenueBarAndConnectionState(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.RecordVenueBar(ctx, "BTC", trade.MarketSpot, bar.Bar{Time: 60, Venue: trade.VenueBinance}, true, bar.ReasonNone))
	require.NoError(t, m.RecordConnectionState(ctx, trade.VenueBinance, "BTC", trade.MarketSpot, true, time.Now()))

	assert.Len(t, m.venueBarLog, 1)
	assert.Len(t, m.connStates, 1)
}
