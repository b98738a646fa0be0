// Package postgres is the durable sink.PersistenceSink reference
// implementation, backed by a pgxpool.Pool. Grounded on the teacher's
// internal/database/db.go (pgxpool.ParseConfig + MaxConns +
// HealthCheckPeriod tuning) and data_integrity_service.go's
// insertKlines (ON CONFLICT idempotent upsert via pgx.Exec), adapted
// from insert-ignore to an upsert that preserves is_backfilled
// monotonicity.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/sink"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// Sink is a pgx/v5-backed sink.PersistenceSink.
type Sink struct {
	pool *pgxpool.Pool
}

var _ sink.PersistenceSink = (*Sink)(nil)

// Open parses dsn, configures the pool the way the teacher's InitDB
// does (bounded MaxConns, connect timeout, periodic health checks),
// and verifies connectivity with a Ping.
func Open(ctx context.Context, dsn string, maxConns int) (*Sink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// Close releases the pool.
func (s *Sink) Close() { s.pool.Close() }

// UpsertCompositeBar inserts or updates one composite row, keeping
// is_backfilled monotonic by OR-ing the stored flag with the incoming
// one, so a later realtime re-emission of an already-backfilled minute
// never flips it back to false.
func (s *Sink) UpsertCompositeBar(ctx context.Context, c bar.CompositeBar) error {
	const q = `
		INSERT INTO composite_bars (
			time, asset, market_type, open, high, low, close,
			volume, buy_volume, sell_volume, buy_count, sell_count, trade_count,
			included_venues, excluded_venues, is_gap, degraded, is_backfilled
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (time, asset, market_type) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close,
			volume = EXCLUDED.volume, buy_volume = EXCLUDED.buy_volume, sell_volume = EXCLUDED.sell_volume,
			buy_count = EXCLUDED.buy_count, sell_count = EXCLUDED.sell_count, trade_count = EXCLUDED.trade_count,
			included_venues = EXCLUDED.included_venues, excluded_venues = EXCLUDED.excluded_venues,
			is_gap = EXCLUDED.is_gap, degraded = EXCLUDED.degraded,
			is_backfilled = (composite_bars.is_backfilled OR EXCLUDED.is_backfilled)
	`
	_, err := s.pool.Exec(ctx, q,
		c.Time, string(c.Asset), string(c.MarketType), c.Open, c.High, c.Low, c.Close,
		c.Volume, c.BuyVolume, c.SellVolume, c.BuyCount, c.SellCount, c.TradeCount,
		venueList(c.IncludedVenues), excludedList(c.ExcludedVenues), c.IsGap, c.Degraded, c.IsBackfilled,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert composite bar: %w", err)
	}
	return nil
}

// UpsertVenueBar inserts or updates one per-venue row.
func (s *Sink) UpsertVenueBar(ctx context.Context, asset trade.Asset, market trade.MarketType, v trade.VenueID, b bar.Bar) error {
	const q = `
		INSERT INTO venue_bars (
			time, asset, market_type, venue, open, high, low, close,
			volume, buy_volume, sell_volume, buy_count, sell_count, trade_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (time, asset, market_type, venue) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close,
			volume = EXCLUDED.volume, buy_volume = EXCLUDED.buy_volume, sell_volume = EXCLUDED.sell_volume,
			buy_count = EXCLUDED.buy_count, sell_count = EXCLUDED.sell_count, trade_count = EXCLUDED.trade_count
	`
	_, err := s.pool.Exec(ctx, q,
		b.Time, string(asset), string(market), string(v), b.Open, b.High, b.Low, b.Close,
		b.Volume, b.BuyVolume, b.SellVolume, b.BuyCount, b.SellCount, b.TradeCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert venue bar: %w", err)
	}
	return nil
}

// LatestCompositeBar returns the newest composite row for (asset, market).
func (s *Sink) LatestCompositeBar(ctx context.Context, asset trade.Asset, market trade.MarketType) (bar.CompositeBar, error) {
	const q = `
		SELECT time, open, high, low, close, volume, buy_volume, sell_volume,
		       buy_count, sell_count, trade_count, is_gap, degraded, is_backfilled
		FROM composite_bars
		WHERE asset = $1 AND market_type = $2
		ORDER BY time DESC LIMIT 1
	`
	row := s.pool.QueryRow(ctx, q, string(asset), string(market))
	c := bar.CompositeBar{Asset: asset, MarketType: market}
	err := row.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.BuyVolume, &c.SellVolume,
		&c.BuyCount, &c.SellCount, &c.TradeCount, &c.IsGap, &c.Degraded, &c.IsBackfilled)
	if err != nil {
		return bar.CompositeBar{}, sink.ErrNotFound
	}
	return c, nil
}

// RangeCompositeBars returns composite rows in [start, end), newest
// first, capped at limit when limit > 0.
func (s *Sink) RangeCompositeBars(ctx context.Context, asset trade.Asset, market trade.MarketType, start, end int64, limit int) ([]bar.CompositeBar, error) {
	q := `
		SELECT time, open, high, low, close, volume, buy_volume, sell_volume,
		       buy_count, sell_count, trade_count, is_gap, degraded, is_backfilled
		FROM composite_bars
		WHERE asset = $1 AND market_type = $2 AND time >= $3 AND time < $4
		ORDER BY time DESC
	`
	args := []any{string(asset), string(market), start, end}
	if limit > 0 {
		q += " LIMIT $5"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: range composite bars: %w", err)
	}
	defer rows.Close()

	var out []bar.CompositeBar
	for rows.Next() {
		c := bar.CompositeBar{Asset: asset, MarketType: market}
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.BuyVolume, &c.SellVolume,
			&c.BuyCount, &c.SellCount, &c.TradeCount, &c.IsGap, &c.Degraded, &c.IsBackfilled); err != nil {
			return nil, fmt.Errorf("postgres: scan composite bar: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GapTimestamps reports every minute in [start, end) with either no
// stored row or a stored row with is_gap=true, via generate_series
// left-joined against composite_bars.
func (s *Sink) GapTimestamps(ctx context.Context, asset trade.Asset, market trade.MarketType, start, end int64) ([]int64, error) {
	const q = `
		SELECT t FROM generate_series($3::bigint, $4::bigint - 1, 60) AS t
		LEFT JOIN composite_bars cb
			ON cb.time = t AND cb.asset = $1 AND cb.market_type = $2
		WHERE cb.time IS NULL OR cb.is_gap
		ORDER BY t
	`
	rows, err := s.pool.Query(ctx, q, string(asset), string(market), start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: gap timestamps: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("postgres: scan gap timestamp: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RetentionSweep deletes composite and venue bars older than
// olderThanDays, returning the number of composite rows removed.
func (s *Sink) RetentionSweep(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays).Unix()

	tag, err := s.pool.Exec(ctx, `DELETE FROM composite_bars WHERE time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: sweep composite bars: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM venue_bars WHERE time < $1`, cutoff); err != nil {
		return int(tag.RowsAffected()), fmt.Errorf("postgres: sweep venue bars: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func venueList(venues []trade.VenueID) []string {
	out := make([]string, len(venues))
	for i, v := range venues {
		out[i] = string(v)
	}
	return out
}

func excludedList(excluded []bar.ExcludedVenue) []string {
	out := make([]string, len(excluded))
	for i, e := range excluded {
		out[i] = fmt.Sprintf("%s:%s", e.Venue, e.Reason)
	}
	return out
}
