package backfill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/clock"
	"github.com/sawpanic/compositefeed/internal/sink"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// fakeFetcher returns canned trades keyed by bar_time (unix seconds);
// a missing key means the venue produced nothing for that minute.
type fakeFetcher struct {
	id     trade.VenueID
	trades map[int64][]trade.Trade
}

func (f *fakeFetcher) VenueID() trade.VenueID { return f.id }

func (f *fakeFetcher) FetchTrades(_ context.Context, _ trade.Asset, _ trade.MarketType, startMs, _ int64) ([]trade.Trade, error) {
	return f.trades[startMs/1000], nil
}

func tradeAt(venue trade.VenueID, barTime int64, price float64) trade.Trade {
	return trade.Trade{
		Timestamp: barTime*1000 + 100, Price: price, Quantity: 1,
		TakerSide: trade.Buy, Venue: venue, Asset: "BTC", MarketType: trade.MarketSpot,
	}
}

func TestBackfillGaps_ThreeGapMinutes_CoinbaseUnavailable(t *testing.T) {
	const t0 = int64(1_700_000_100)
	const t1 = t0 + 60
	const t2 = t0 + 120

	binance := &fakeFetcher{id: trade.VenueBinance, trades: map[int64][]trade.Trade{
		t0: {tradeAt(trade.VenueBinance, t0, 45000)},
		t1: {tradeAt(trade.VenueBinance, t1, 45010)},
		t2: {tradeAt(trade.VenueBinance, t2, 45020)},
	}}
	kraken := &fakeFetcher{id: trade.VenueKraken, trades: map[int64][]trade.Trade{
		t0: {tradeAt(trade.VenueKraken, t0, 45005)},
		t1: {tradeAt(trade.VenueKraken, t1, 45015)},
		// t2 intentionally absent: "Kraken returns trades for two of three" (spec.md §8 scenario 6)
	}}
	okx := &fakeFetcher{id: trade.VenueOKX, trades: map[int64][]trade.Trade{
		t0: {tradeAt(trade.VenueOKX, t0, 44995)},
		t1: {tradeAt(trade.VenueOKX, t1, 45012)},
		t2: {tradeAt(trade.VenueOKX, t2, 45018)}, // keeps t2 at quorum without Kraken
	}}

	cat := catalog.NewDefault()
	memSink := sink.NewMemory()
	svc := New(cat, memSink, nil, clock.Real{}, binance, kraken, okx)

	result, err := svc.BackfillGaps(context.Background(), "BTC", trade.MarketSpot, t0, t2+60, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.GapsFound)
	assert.Equal(t, 3, result.BarsRepaired)
	assert.Equal(t, 0, result.BarsFailed)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.RunID)

	bars, err := memSink.RangeCompositeBars(context.Background(), "BTC", trade.MarketSpot, t0, t2+60, 0)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	for _, b := range bars {
		assert.True(t, b.IsBackfilled)
		assert.False(t, b.IsGap)

		foundCoinbase := false
		for _, ev := range b.ExcludedVenues {
			if ev.Venue == trade.VenueCoinbase {
				foundCoinbase = true
				assert.Equal(t, trade.VenueCoinbase, ev.Venue)
				assert.EqualValues(t, "BACKFILL_UNAVAILABLE", ev.Reason)
			}
		}
		assert.True(t, foundCoinbase, "expected Coinbase excluded with BACKFILL_UNAVAILABLE for bar %d", b.Time)
	}
}

func TestBackfillGaps_BelowQuorumMarksBarFailed(t *testing.T) {
	const t0 = int64(1_700_000_100)

	binance := &fakeFetcher{id: trade.VenueBinance, trades: map[int64][]trade.Trade{
		t0: {tradeAt(trade.VenueBinance, t0, 45000)},
	}}
	kraken := &fakeFetcher{id: trade.VenueKraken, trades: map[int64][]trade.Trade{}}
	okx := &fakeFetcher{id: trade.VenueOKX, trades: map[int64][]trade.Trade{}}

	cat := catalog.NewDefault()
	memSink := sink.NewMemory()
	svc := New(cat, memSink, nil, clock.Real{}, binance, kraken, okx)

	result, err := svc.BackfillGaps(context.Background(), "BTC", trade.MarketSpot, t0, t0+60, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.GapsFound)
	assert.Equal(t, 0, result.BarsRepaired)
	assert.Equal(t, 1, result.BarsFailed)

	_, err = memSink.LatestCompositeBar(context.Background(), "BTC", trade.MarketSpot)
	assert.ErrorIs(t, err, sink.ErrNotFound)
}

func TestBackfillGaps_RejectsOversizedWindow(t *testing.T) {
	cat := catalog.NewDefault()
	memSink := sink.NewMemory()
	svc := New(cat, memSink, nil, clock.Real{}, &fakeFetcher{id: trade.VenueBinance})

	_, err := svc.BackfillGaps(context.Background(), "BTC", trade.MarketSpot, 0, int64((25*60*60)), nil)
	assert.ErrorIs(t, err, ErrWindowTooLarge)
}

func TestBackfillGaps_RejectsInvertedWindow(t *testing.T) {
	cat := catalog.NewDefault()
	memSink := sink.NewMemory()
	svc := New(cat, memSink, nil, clock.Real{}, &fakeFetcher{id: trade.VenueBinance})

	_, err := svc.BackfillGaps(context.Background(), "BTC", trade.MarketSpot, 100, 100, nil)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
