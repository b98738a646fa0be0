package outlier

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/compositefeed/internal/trade"
)

func ptrF(f float64) *float64 { return &f }
func ptrI(i int64) *int64     { return &i }

func freshInput(venue trade.VenueID, price float64, nowMs int64) VenuePriceInput {
	last := nowMs - 1000
	return VenuePriceInput{
		Venue: venue, Price: ptrF(price), LastUpdateMs: ptrI(last),
		IsConnected: true, StaleThresholdMs: 10000,
	}
}

// Scenario 1: median of two concordant venues.
func TestFilter_MedianOfTwoConcordantVenues(t *testing.T) {
	barTimeMs := int64(1_700_000_000) * 1000
	now := barTimeMs + 60_000

	inputs := []VenuePriceInput{
		freshInput(trade.VenueBinance, 45050.0, now),
		freshInput(trade.VenueCoinbase, 45060.0, now),
	}

	res := Filter(inputs, now)
	require.NotNil(t, res.CompositePrice)
	assert.InDelta(t, 45055.0, *res.CompositePrice, 1e-9)
	assert.False(t, res.IsGap)
	assert.True(t, res.Degraded) // below preferred quorum of 3
	assert.Equal(t, 2, res.IncludedCount)
}

// Scenario 2: stale exclusion prevents outlier pollution.
func TestFilter_StaleExcludedBeforeOutlierMath(t *testing.T) {
	now := int64(2_000_000_000)
	staleLast := now - 15000 // stale: threshold 10000

	inputs := []VenuePriceInput{
		{Venue: trade.VenueBinance, Price: ptrF(95100.0), LastUpdateMs: ptrI(staleLast), IsConnected: true, StaleThresholdMs: 10000},
		freshInput(trade.VenueCoinbase, 94100.0, now),
		freshInput(trade.VenueOKX, 94100.0, now),
	}

	res := Filter(inputs, now)
	require.NotNil(t, res.CompositePrice)
	assert.InDelta(t, 94100.0, *res.CompositePrice, 1e-9)

	for _, c := range res.Contributions {
		if c.Venue == trade.VenueBinance {
			assert.Equal(t, ExcludeStale, c.ExcludeReason)
			assert.NotEqual(t, ExcludeOutlier, c.ExcludeReason)
		}
	}
}

// Scenario 3: outlier rejected.
func TestFilter_OutlierRejected(t *testing.T) {
	now := int64(2_000_000_000)
	inputs := []VenuePriceInput{
		freshInput(trade.VenueBinance, 94100.0, now),
		freshInput(trade.VenueCoinbase, 94100.0, now),
		freshInput(trade.VenueOKX, 95100.0, now),
	}

	res := Filter(inputs, now)
	require.NotNil(t, res.CompositePrice)
	assert.InDelta(t, 94100.0, *res.CompositePrice, 1e-9)
	assert.Equal(t, 2, res.IncludedCount)
	assert.True(t, res.Degraded)

	for _, c := range res.Contributions {
		if c.Venue == trade.VenueOKX {
			assert.Equal(t, ExcludeOutlier, c.ExcludeReason)
		}
	}
}

// Scenario 4: gap when included count is below min quorum.
func TestFilter_GapWhenBelowMinQuorum(t *testing.T) {
	now := int64(2_000_000_000)
	inputs := []VenuePriceInput{
		{Venue: trade.VenueBinance, Price: ptrF(94100.0), LastUpdateMs: ptrI(now - 1000), IsConnected: false, StaleThresholdMs: 10000},
		{Venue: trade.VenueCoinbase, Price: ptrF(94100.0), LastUpdateMs: ptrI(now - 1000), IsConnected: false, StaleThresholdMs: 10000},
		freshInput(trade.VenueOKX, 94100.0, now),
	}

	res := Filter(inputs, now)
	assert.Nil(t, res.CompositePrice)
	assert.True(t, res.IsGap)
	assert.True(t, res.Degraded)
	assert.Equal(t, ReasonVenueDisconnected, res.DegradedReason)

	excludedCount := 0
	for _, c := range res.Contributions {
		if c.ExcludeReason == ExcludeDisconnected {
			excludedCount++
		}
	}
	assert.Equal(t, 2, excludedCount)
}

func TestFilter_TwoStaleOneFreshSingleSource(t *testing.T) {
	now := int64(2_000_000_000)
	staleLast := now - 20000
	inputs := []VenuePriceInput{
		{Venue: trade.VenueBinance, Price: ptrF(100), LastUpdateMs: ptrI(staleLast), IsConnected: true, StaleThresholdMs: 10000},
		{Venue: trade.VenueCoinbase, Price: ptrF(100), LastUpdateMs: ptrI(staleLast), IsConnected: true, StaleThresholdMs: 10000},
		freshInput(trade.VenueOKX, 101, now),
	}

	res := Filter(inputs, now)
	assert.True(t, res.IsGap)
	assert.Equal(t, ReasonVenueStale, res.DegradedReason)
}

func TestFilter_PermutationInvariant(t *testing.T) {
	now := int64(2_000_000_000)
	base := []VenuePriceInput{
		freshInput(trade.VenueBinance, 94100.0, now),
		freshInput(trade.VenueCoinbase, 94150.0, now),
		freshInput(trade.VenueOKX, 95100.0, now),
		freshInput(trade.VenueBybit, 94080.0, now),
	}

	original := Filter(base, now)

	shuffled := append([]VenuePriceInput(nil), base...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	permuted := Filter(shuffled, now)

	require.Equal(t, original.IsGap, permuted.IsGap)
	if original.CompositePrice != nil {
		require.NotNil(t, permuted.CompositePrice)
		assert.InDelta(t, *original.CompositePrice, *permuted.CompositePrice, 1e-9)
	}
	assert.Equal(t, original.IncludedCount, permuted.IncludedCount)
}

func TestFilter_InclusionMonotonicity(t *testing.T) {
	now := int64(2_000_000_000)
	withDisconnected := []VenuePriceInput{
		freshInput(trade.VenueBinance, 94100.0, now),
		freshInput(trade.VenueCoinbase, 94150.0, now),
		{Venue: trade.VenueOKX, Price: ptrF(94200.0), LastUpdateMs: ptrI(now - 1000), IsConnected: false, StaleThresholdMs: 10000},
	}
	withoutDisconnected := withDisconnected[:2]

	a := Filter(withDisconnected, now)
	b := Filter(withoutDisconnected, now)

	require.NotNil(t, a.CompositePrice)
	require.NotNil(t, b.CompositePrice)
	assert.InDelta(t, *a.CompositePrice, *b.CompositePrice, 1e-9)
	assert.Equal(t, a.IncludedCount, b.IncludedCount)
}
