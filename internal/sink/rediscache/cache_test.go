package rediscache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/trade"
)

type stubBackingSink struct {
	bar   bar.CompositeBar
	calls int
}

func (s *stubBackingSink) UpsertCompositeBar(context.Context, bar.CompositeBar) error { return nil }
func (s *stubBackingSink) UpsertVenueBar(context.Context, trade.Asset, trade.MarketType, trade.VenueID, bar.Bar) error {
	return nil
}
func (s *stubBackingSink) LatestCompositeBar(context.Context, trade.Asset, trade.MarketType) (bar.CompositeBar, error) {
	s.calls++
	return s.bar, nil
}
func (s *stubBackingSink) RangeCompositeBars(context.Context, trade.Asset, trade.MarketType, int64, int64, int) ([]bar.CompositeBar, error) {
	return nil, nil
}
func (s *stubBackingSink) GapTimestamps(context.Context, trade.Asset, trade.MarketType, int64, int64) ([]int64, error) {
	return nil, nil
}
func (s *stubBackingSink) RetentionSweep(context.Context, int) (int, error) { return 0, nil }

func TestCache_LatestCompositeBar_HitServesWithoutBackingCall(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing := &stubBackingSink{}
	c := &Cache{client: db, backing: backing, ttl: time.Minute}

	want := bar.CompositeBar{Time: 1_700_000_100, Asset: "BTC", MarketType: trade.MarketSpot, Close: 45000}
	encoded, err := json.Marshal(want)
	require.NoError(t, err)

	key := cacheKey("BTC", trade.MarketSpot)
	mock.ExpectGet(key).SetVal(string(encoded))

	got, err := c.LatestCompositeBar(context.Background(), "BTC", trade.MarketSpot)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, backing.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_LatestCompositeBar_MissFallsThroughAndRepopulates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	want := bar.CompositeBar{Time: 1_700_000_100, Asset: "BTC", MarketType: trade.MarketSpot, Close: 45000}
	backing := &stubBackingSink{bar: want}
	c := &Cache{client: db, backing: backing, ttl: time.Minute}

	key := cacheKey("BTC", trade.MarketSpot)
	mock.ExpectGet(key).RedisNil()
	mock.Regexp().ExpectSet(key, `.*`, time.Minute).SetVal("OK")

	got, err := c.LatestCompositeBar(context.Background(), "BTC", trade.MarketSpot)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, backing.calls)
}

func TestCache_Invalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &Cache{client: db, backing: &stubBackingSink{}, ttl: time.Minute}

	key := cacheKey("ETH", trade.MarketPerp)
	mock.ExpectDel(key).SetVal(1)

	require.NoError(t, c.Invalidate(context.Background(), "ETH", trade.MarketPerp))
	assert.NoError(t, mock.ExpectationsWereMet())
}
