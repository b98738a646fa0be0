package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// venueList/excludedList are the only pieces of this package testable
// without a live Postgres instance; Sink's methods need a real database
// and have no tests in this repository.

func TestVenueList(t *testing.T) {
	out := venueList([]trade.VenueID{trade.VenueBinance, trade.VenueKraken})
	assert.Equal(t, []string{"binance", "kraken"}, out)
}

func TestVenueList_Empty(t *testing.T) {
	out := venueList(nil)
	assert.Empty(t, out)
}

func TestExcludedList(t *testing.T) {
	out := excludedList([]bar.ExcludedVenue{
		{Venue: trade.VenueCoinbase, Reason: bar.ReasonBackfillUnavailable},
		{Venue: trade.VenueOKX, Reason: bar.ReasonStale},
	})
	assert.Equal(t, []string{"coinbase:BACKFILL_UNAVAILABLE", "okx:STALE"}, out)
}
