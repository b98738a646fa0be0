package bar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/compositefeed/internal/trade"
)

func mkTrade(ts int64, price, qty float64, side trade.TakerSide) trade.Trade {
	return trade.Trade{
		Timestamp:  ts,
		Price:      price,
		Quantity:   qty,
		TakerSide:  side,
		Venue:      trade.VenueBinance,
		Asset:      "BTC",
		MarketType: trade.MarketSpot,
	}
}

func TestBuilder_BarRollover(t *testing.T) {
	b := NewBuilder(trade.VenueBinance, "BTC", trade.MarketSpot)
	var completed []Bar
	b.SetOnComplete(func(bar Bar) { completed = append(completed, bar) })

	b.AddTrade(mkTrade(1_700_000_059_900, 100, 1, trade.Buy))
	b.AddTrade(mkTrade(1_700_000_060_100, 110, 1, trade.Buy))

	require.Len(t, completed, 1)
	first := completed[0]
	assert.Equal(t, int64(1_700_000_000), first.Time)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 100.0, first.Close)
	assert.Equal(t, 100.0, first.High)
	assert.Equal(t, 100.0, first.Low)
	assert.False(t, first.IsPartial)

	partial, ok := b.PartialBar()
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_060), partial.Time)
	assert.Equal(t, 110.0, partial.Open)
}

func TestBuilder_OHLCInvariant(t *testing.T) {
	b := NewBuilder(trade.VenueBinance, "BTC", trade.MarketSpot)
	var got Bar
	b.SetOnComplete(func(bar Bar) { got = bar })

	base := int64(1_700_000_000_000)
	b.AddTrade(mkTrade(base, 100, 1, trade.Buy))
	b.AddTrade(mkTrade(base+1000, 90, 2, trade.Sell))
	b.AddTrade(mkTrade(base+2000, 120, 1, trade.Buy))
	b.AddTrade(mkTrade(base+60000, 1, 1, trade.Buy)) // rolls over, finalizes above

	assert.LessOrEqual(t, got.Low, got.Open)
	assert.LessOrEqual(t, got.Low, got.Close)
	assert.GreaterOrEqual(t, got.High, got.Open)
	assert.GreaterOrEqual(t, got.High, got.Close)
	assert.InDelta(t, got.Volume, got.BuyVolume+got.SellVolume, 1e-9)
	assert.Equal(t, got.TradeCount, got.BuyCount+got.SellCount)
	assert.Equal(t, int64(0), got.Time%60)
}

func TestBuilder_OutOfOrderTradeDropped(t *testing.T) {
	b := NewBuilder(trade.VenueBinance, "BTC", trade.MarketSpot)
	b.AddTrade(mkTrade(1_700_000_060_000, 100, 1, trade.Buy))
	b.AddTrade(mkTrade(1_700_000_059_000, 999, 1, trade.Buy)) // earlier minute, dropped

	partial, ok := b.PartialBar()
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_060), partial.Time)
	assert.Equal(t, 1, partial.TradeCount)
}

func TestBuilder_PerMinuteSafetyCap(t *testing.T) {
	b := NewBuilder(trade.VenueBinance, "BTC", trade.MarketSpot)
	base := int64(1_700_000_000_000)
	for i := 0; i < maxTradesPerMinute+10; i++ {
		b.AddTrade(mkTrade(base+int64(i), 100, 1, trade.Buy))
	}
	partial, ok := b.PartialBar()
	require.True(t, ok)
	assert.Equal(t, maxTradesPerMinute, partial.TradeCount)
}

func TestBuilder_ReplayIdempotent(t *testing.T) {
	trades := []trade.Trade{
		mkTrade(1_700_000_000_000, 100, 1, trade.Buy),
		mkTrade(1_700_000_010_000, 101, 2, trade.Sell),
		mkTrade(1_700_000_020_000, 99, 1, trade.Buy),
	}

	run := func() Bar {
		b := NewBuilder(trade.VenueBinance, "BTC", trade.MarketSpot)
		for _, tr := range trades {
			b.AddTrade(tr)
		}
		partial, _ := b.PartialBar()
		return partial
	}

	a := run()
	c := run()
	assert.Equal(t, a.Open, c.Open)
	assert.Equal(t, a.High, c.High)
	assert.Equal(t, a.Low, c.Low)
	assert.Equal(t, a.Close, c.Close)
	assert.Equal(t, a.Volume, c.Volume)
	assert.Equal(t, a.TradeCount, c.TradeCount)
}
