// Package backfill implements the gap-repair service (C6): given a
// time range, it finds gap minutes via the persistence sink, pulls
// trades from venue REST APIs, rebuilds venue bars with the same
// bar-builder logic as the realtime path, and rebuilds the composite
// bar using the same outlier rules, marking every repaired bar
// is_backfilled=true. Grounded on the teacher's
// internal/providers/kraken/client.go (rate-limited, breaker-wrapped
// REST client shape) and chidi150c-coinbase/tools/backfill_bridge_paged.go
// (window-paging, dedupe-then-sort pattern) for the outer loop shape.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/breaker"
	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/clock"
	"github.com/sawpanic/compositefeed/internal/outlier"
	"github.com/sawpanic/compositefeed/internal/sink"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// ErrWindowTooLarge is returned when end-start exceeds the 24h cap.
var ErrWindowTooLarge = errors.New("backfill: window exceeds 24h")

// ErrInvalidWindow is returned when start >= end.
var ErrInvalidWindow = errors.New("backfill: start must precede end")

const maxWindow = 24 * time.Hour

// BackfillResult summarizes one backfill_gaps invocation, per spec.md
// §4.6.
type BackfillResult struct {
	RunID             string
	GapsFound         int
	BarsRepaired      int
	BarsFailed        int
	VenueBarsInserted int
	Errors            []string
	Duration          time.Duration
}

// Service orchestrates gap repair across every registered venue
// fetcher.
type Service struct {
	catalog   *catalog.Catalog
	sink      sink.PersistenceSink
	telemetry sink.TelemetrySink
	clock     clock.Clock

	fetchers map[trade.VenueID]VenueFetcher
	breakers map[trade.VenueID]*breaker.Breaker
}

// New constructs a Service. telemetry may be nil if traceability
// recording is not needed.
func New(cat *catalog.Catalog, persistence sink.PersistenceSink, telemetry sink.TelemetrySink, clk clock.Clock, fetchers ...VenueFetcher) *Service {
	return NewWithBreakerTripHook(cat, persistence, telemetry, clk, nil, fetchers...)
}

// NewWithBreakerTripHook is New plus an onBreakerTrip callback invoked
// with the venue ID whenever that venue's circuit breaker opens, so a
// caller can feed it into a metrics counter without this package
// importing internal/metrics.
func NewWithBreakerTripHook(cat *catalog.Catalog, persistence sink.PersistenceSink, telemetry sink.TelemetrySink, clk clock.Clock, onBreakerTrip func(trade.VenueID), fetchers ...VenueFetcher) *Service {
	fm := make(map[trade.VenueID]VenueFetcher, len(fetchers))
	bm := make(map[trade.VenueID]*breaker.Breaker, len(fetchers))
	for _, f := range fetchers {
		v := f.VenueID()
		fm[v] = f
		var onTrip func()
		if onBreakerTrip != nil {
			onTrip = func() { onBreakerTrip(v) }
		}
		bm[v] = breaker.New("backfill-"+string(v), onTrip)
	}
	return &Service{catalog: cat, sink: persistence, telemetry: telemetry, clock: clk, fetchers: fm, breakers: bm}
}

// BackfillGaps repairs every gap minute in [start, end) for
// (asset, market). venues, if non-empty, restricts which venues are
// actually queried; it still defaults to every enabled venue in
// BACKFILL_VENUES with a registered fetcher.
func (s *Service) BackfillGaps(ctx context.Context, asset trade.Asset, market trade.MarketType, start, end int64, venues []trade.VenueID) (BackfillResult, error) {
	begin := s.clock.Now()
	runID := uuid.NewString()

	if start >= end {
		return BackfillResult{}, ErrInvalidWindow
	}
	if time.Duration(end-start)*time.Second > maxWindow {
		return BackfillResult{}, ErrWindowTooLarge
	}

	enabled := s.catalog.EnabledVenuesFor(asset, market)
	if len(enabled) == 0 {
		return BackfillResult{}, fmt.Errorf("backfill: no enabled venues for %s/%s", asset, market)
	}

	queryVenues := s.resolveQueryVenues(enabled, venues)

	gaps, err := s.sink.GapTimestamps(ctx, asset, market, start, end)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("backfill: list gap timestamps: %w", err)
	}

	result := BackfillResult{RunID: runID, GapsFound: len(gaps)}
	log.Info().Str("run_id", runID).Str("asset", string(asset)).Str("market", string(market)).
		Int("gaps", len(gaps)).Msg("backfill run started")

	for _, t := range gaps {
		s.repairMinute(ctx, asset, market, t, enabled, queryVenues, &result)
	}

	result.Duration = s.clock.Now().Sub(begin)
	log.Info().Str("run_id", runID).Int("bars_repaired", result.BarsRepaired).
		Int("bars_failed", result.BarsFailed).Dur("duration", result.Duration).Msg("backfill run finished")
	return result, nil
}

// resolveQueryVenues restricts the caller's venue list to the subset
// that is both enabled for this market and backed by a REST fetcher;
// an empty venues argument defaults to every such venue.
func (s *Service) resolveQueryVenues(enabled []trade.VenueID, venues []trade.VenueID) map[trade.VenueID]bool {
	backfillCapable := make(map[trade.VenueID]bool)
	for _, v := range s.catalog.BackfillVenues() {
		if _, hasFetcher := s.fetchers[v]; hasFetcher {
			backfillCapable[v] = true
		}
	}

	out := make(map[trade.VenueID]bool)
	if len(venues) == 0 {
		for _, v := range enabled {
			if backfillCapable[v] {
				out[v] = true
			}
		}
		return out
	}
	for _, v := range venues {
		if backfillCapable[v] {
			out[v] = true
		}
	}
	return out
}

func (s *Service) repairMinute(ctx context.Context, asset trade.Asset, market trade.MarketType, barTime int64, enabled []trade.VenueID, queryVenues map[trade.VenueID]bool, result *BackfillResult) {
	venueBars := make(map[trade.VenueID]bar.Bar)
	var excluded []bar.ExcludedVenue

	startMs := barTime * 1000
	endMs := (barTime+60)*1000 - 1

	for _, v := range enabled {
		caps, _ := s.catalog.Caps(v)
		if !caps.SupportsBackfill {
			excluded = append(excluded, bar.ExcludedVenue{Venue: v, Reason: bar.ReasonBackfillUnavailable})
			continue
		}
		if !queryVenues[v] {
			excluded = append(excluded, bar.ExcludedVenue{Venue: v, Reason: bar.ReasonNoData})
			continue
		}

		b, err := s.fetchVenueBar(ctx, v, asset, market, startMs, endMs)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			excluded = append(excluded, bar.ExcludedVenue{Venue: v, Reason: bar.ReasonNoData})
			continue
		}
		if b == nil {
			excluded = append(excluded, bar.ExcludedVenue{Venue: v, Reason: bar.ReasonNoData})
			continue
		}
		venueBars[v] = *b
	}

	if len(venueBars) < outlier.MinQuorum {
		result.BarsFailed++
		return
	}

	composite := s.buildComposite(asset, market, barTime, venueBars, excluded)

	if err := s.sink.UpsertCompositeBar(ctx, composite); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("upsert composite %d: %w", barTime, err).Error())
		result.BarsFailed++
		return
	}
	for v, b := range venueBars {
		if err := s.sink.UpsertVenueBar(ctx, asset, market, v, b); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("upsert venue bar %s/%d: %w", v, barTime, err).Error())
			continue
		}
		result.VenueBarsInserted++
		if s.telemetry != nil {
			included := true
			for _, ev := range composite.ExcludedVenues {
				if ev.Venue == v {
					included = false
				}
			}
			_ = s.telemetry.RecordVenueBar(ctx, asset, market, b, included, bar.ReasonNone)
		}
	}

	result.BarsRepaired++
}

// fetchVenueBar fetches one venue's trades for the minute through its
// circuit breaker and folds them through the bar builder (C2). Returns
// nil, nil if the venue produced no trades for the window.
func (s *Service) fetchVenueBar(ctx context.Context, v trade.VenueID, asset trade.Asset, market trade.MarketType, startMs, endMs int64) (*bar.Bar, error) {
	fetcher := s.fetchers[v]
	br := s.breakers[v]

	raw, err := br.Execute(func() (any, error) {
		return fetcher.FetchTrades(ctx, asset, market, startMs, endMs)
	})
	if err != nil {
		if errors.Is(err, ErrBackfillUnsupported) {
			return nil, nil
		}
		var fetchErr *VenueFetcherError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr
		}
		return nil, &VenueFetcherError{Venue: v, Err: err}
	}

	trades, _ := raw.([]trade.Trade)
	if len(trades) == 0 {
		return nil, nil
	}

	builder := bar.NewBuilder(v, asset, market)
	for _, t := range trades {
		if !t.Valid() {
			continue
		}
		builder.AddTrade(t)
	}

	built, ok := builder.PartialBar()
	if !ok {
		return nil, nil
	}
	built.IsPartial = false
	return &built, nil
}

// buildComposite runs the C4 outlier rules over already-fresh venue
// bars: STALE never applies (spec.md §4.6), so every venue bar input
// is marked connected with a last-update time equal to its own bar
// time. Once min_quorum has produced bars, the minute is always
// marked repaired: is_backfilled=true, is_gap=false.
func (s *Service) buildComposite(asset trade.Asset, market trade.MarketType, barTime int64, venueBars map[trade.VenueID]bar.Bar, preExcluded []bar.ExcludedVenue) bar.CompositeBar {
	nowMs := barTime * 1000

	buildInputs := func(component func(bar.Bar) float64) []outlier.VenuePriceInput {
		inputs := make([]outlier.VenuePriceInput, 0, len(venueBars))
		for v, b := range venueBars {
			price := component(b)
			lastUpdate := b.Time * 1000
			inputs = append(inputs, outlier.VenuePriceInput{
				Venue: v, Price: &price, LastUpdateMs: &lastUpdate,
				IsConnected: true, StaleThresholdMs: maxWindow.Milliseconds(),
			})
		}
		return inputs
	}

	openResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.Open }), nowMs)
	highResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.High }), nowMs)
	lowResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.Low }), nowMs)
	closeResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.Close }), nowMs)

	composite := bar.CompositeBar{
		Time: barTime, Asset: asset, MarketType: market,
		IsGap: false, IsBackfilled: true,
		Degraded:       openResult.Degraded || highResult.Degraded || lowResult.Degraded || closeResult.Degraded,
		ExcludedVenues: append([]bar.ExcludedVenue(nil), preExcluded...),
	}

	if openResult.CompositePrice != nil {
		composite.Open = *openResult.CompositePrice
	}
	if highResult.CompositePrice != nil {
		composite.High = *highResult.CompositePrice
	}
	if lowResult.CompositePrice != nil {
		composite.Low = *lowResult.CompositePrice
	}
	if closeResult.CompositePrice != nil {
		composite.Close = *closeResult.CompositePrice
	}

	includedSet := make(map[trade.VenueID]bool)
	for _, c := range closeResult.Contributions {
		if c.Included {
			includedSet[c.Venue] = true
			composite.IncludedVenues = append(composite.IncludedVenues, c.Venue)
		} else if c.ExcludeReason != outlier.ExcludeNone {
			composite.ExcludedVenues = append(composite.ExcludedVenues, bar.ExcludedVenue{
				Venue: c.Venue, Reason: bar.ExcludeReason(c.ExcludeReason),
			})
		}
	}

	for v, b := range venueBars {
		if !includedSet[v] {
			continue
		}
		composite.Volume += b.Volume
		composite.BuyVolume += b.BuyVolume
		composite.SellVolume += b.SellVolume
		composite.BuyCount += b.BuyCount
		composite.SellCount += b.SellCount
		composite.TradeCount += b.TradeCount
	}

	log.Debug().Str("asset", string(asset)).Str("market", string(market)).
		Int64("bar_time", barTime).Int("venues", len(venueBars)).Msg("backfilled composite bar")

	return composite
}
