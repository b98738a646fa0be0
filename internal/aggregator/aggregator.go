// Package aggregator implements the composite aggregator (C5): it owns
// one connector per enabled (venue, asset, market), collects per-venue
// bars on each minute boundary, runs the outlier filter per OHLC
// component, and emits composite bars with explicit gap/degraded
// semantics. Grounded on spec.md §4.5 and the teacher's per-key mutex
// ownership convention (internal/metrics/collector.go) and supervisor
// ticker loop (internal/providers/kraken/websocket.go's pingLoop).
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/clock"
	"github.com/sawpanic/compositefeed/internal/outlier"
	"github.com/sawpanic/compositefeed/internal/trade"
	"github.com/sawpanic/compositefeed/internal/venue"
)

// minuteGrace is the post-rollover sleep that lets in-flight venue bars
// finalize before the tick computes a composite (spec.md §4.5).
const minuteGrace = 2 * time.Second

// AssetMarket identifies one composite series.
type AssetMarket struct {
	Asset      trade.Asset
	MarketType trade.MarketType
}

// VenueBarRecord pairs a venue bar with its inclusion outcome in the
// close composite, for the on_venue_bars sink (spec.md §6).
type VenueBarRecord struct {
	Bar           bar.Bar
	Included      bool
	ExcludeReason bar.ExcludeReason
}

// OnCompositeBar is invoked once per (asset, market, bar_time), in
// strictly increasing bar_time order.
type OnCompositeBar func(bar.CompositeBar)

// OnVenueBars is invoked alongside OnCompositeBar with every venue's bar
// for that minute and its inclusion status.
type OnVenueBars func(asset trade.Asset, market trade.MarketType, barTime int64, records []VenueBarRecord)

// connectorHandle bundles a running connector with its builder and the
// venue's static stale threshold.
type connectorHandle struct {
	connector      *venue.Connector
	builder        *bar.Builder
	staleThreshold time.Duration
}

// seriesState is the mutable per-(asset,market) state the minute tick
// and venue callbacks both touch; access is always through the
// aggregator's methods, which take Aggregator.mu, per spec.md §5's "route
// updates through the owner" guidance.
type seriesState struct {
	connectors       map[trade.VenueID]*connectorHandle
	latestVenueBars  map[trade.VenueID]bar.Bar
	ring             ring
	lastComputedTime int64
}

// Aggregator is the composite aggregator (C5).
type Aggregator struct {
	catalog *catalog.Catalog
	clock   clock.Clock
	dialer  venue.Dialer

	onComposite OnCompositeBar
	onVenueBars OnVenueBars

	mu     sync.Mutex
	series map[AssetMarket]*seriesState

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs an Aggregator. dialer is typically venue.GorillaDialer{}
// in production and a fake in tests; clk is clock.Real{} in production.
func New(cat *catalog.Catalog, dialer venue.Dialer, clk clock.Clock, onComposite OnCompositeBar, onVenueBars OnVenueBars) *Aggregator {
	return &Aggregator{
		catalog:     cat,
		clock:       clk,
		dialer:      dialer,
		onComposite: onComposite,
		onVenueBars: onVenueBars,
		series:      make(map[AssetMarket]*seriesState),
	}
}

// driverFor constructs the venue-specific Driver for one catalog entry.
func driverFor(entry catalog.Entry) venue.Driver {
	switch entry.Venue {
	case trade.VenueBinance:
		return venue.NewBinanceDriver(entry)
	case trade.VenueCoinbase:
		return venue.NewCoinbaseDriver(entry)
	case trade.VenueKraken:
		return venue.NewKrakenDriver(entry)
	case trade.VenueOKX:
		return venue.NewOKXDriver(entry)
	case trade.VenueBybit:
		return venue.NewBybitDriver(entry)
	default:
		return nil
	}
}

// AddSeries instantiates one connector per enabled venue for
// (asset, market), skipping venues that don't support the market
// (spec.md §4.5: "skip unsupported combinations silently").
func (a *Aggregator) AddSeries(ctx context.Context, am AssetMarket) {
	a.mu.Lock()
	if _, exists := a.series[am]; exists {
		a.mu.Unlock()
		return
	}
	st := &seriesState{
		connectors:      make(map[trade.VenueID]*connectorHandle),
		latestVenueBars: make(map[trade.VenueID]bar.Bar),
	}
	a.series[am] = st
	a.mu.Unlock()

	for _, v := range a.catalog.EnabledVenuesFor(am.Asset, am.MarketType) {
		entry, err := a.catalog.Lookup(v, am.Asset, am.MarketType)
		if err != nil {
			continue
		}
		driver := driverFor(entry)
		if driver == nil {
			continue
		}

		builder := bar.NewBuilder(v, am.Asset, am.MarketType)
		builder.SetOnComplete(func(b bar.Bar) {
			a.recordVenueBar(am, b)
		})

		conn := venue.NewConnector(driver, builder, a.dialer, a.clock)

		a.mu.Lock()
		st.connectors[v] = &connectorHandle{connector: conn, builder: builder, staleThreshold: entry.StaleThreshold}
		a.mu.Unlock()

		go conn.Run(ctx)
	}
}

func (a *Aggregator) recordVenueBar(am AssetMarket, b bar.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.series[am]
	if !ok {
		return
	}
	st.latestVenueBars[b.Venue] = b
}

// Run starts the minute-tick supervisor: wait for the next second
// boundary, and on each :00 sleep the grace period before computing
// composites for bar_time = now-60 across every registered series.
func (a *Aggregator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	defer close(a.done)

	for {
		now := a.clock.Now()
		untilNextSecond := now.Truncate(time.Second).Add(time.Second).Sub(now)
		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(untilNextSecond):
		}

		now = a.clock.Now()
		if now.Unix()%60 != 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(minuteGrace):
		}

		barTime := now.Unix() - 60
		a.computeAllAt(barTime)
	}
}

// Stop cancels the minute-tick supervisor and every owned connector.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	var conns []*venue.Connector
	for _, st := range a.series {
		for _, h := range st.connectors {
			conns = append(conns, h.connector)
		}
	}
	a.mu.Unlock()

	for _, c := range conns {
		c.Stop()
	}
	if a.done != nil {
		<-a.done
	}
}

func (a *Aggregator) computeAllAt(barTime int64) {
	a.mu.Lock()
	keys := make([]AssetMarket, 0, len(a.series))
	for k := range a.series {
		keys = append(keys, k)
	}
	a.mu.Unlock()

	for _, am := range keys {
		a.computeOneAt(am, barTime)
	}
}

// computeOneAt builds and emits the composite for one series at
// barTime, deduplicating by last-computed bar_time (spec.md §4.5/§5:
// at most once per bar_time, in strictly increasing order).
func (a *Aggregator) computeOneAt(am AssetMarket, barTime int64) {
	a.mu.Lock()
	st, ok := a.series[am]
	if !ok {
		a.mu.Unlock()
		return
	}
	if barTime <= st.lastComputedTime && st.lastComputedTime != 0 {
		a.mu.Unlock()
		return
	}

	type venueSnapshot struct {
		venue          trade.VenueID
		bar            bar.Bar
		hasBar         bool
		connected      bool
		lastMessageMs  int64
		staleThreshold time.Duration
	}
	snapshots := make([]venueSnapshot, 0, len(st.connectors))
	for v, h := range st.connectors {
		telemetry := h.connector.Telemetry()
		b, hasBar := st.latestVenueBars[v]
		snapshots = append(snapshots, venueSnapshot{
			venue: v, bar: b, hasBar: hasBar && b.Time == barTime,
			connected: telemetry.IsConnected, lastMessageMs: telemetry.LastMessageTime,
			staleThreshold: h.staleThreshold,
		})
	}
	a.mu.Unlock()

	nowMs := a.clock.Now().UnixMilli()

	buildInputs := func(component func(bar.Bar) float64) []outlier.VenuePriceInput {
		inputs := make([]outlier.VenuePriceInput, 0, len(snapshots))
		for _, s := range snapshots {
			in := outlier.VenuePriceInput{
				Venue:            s.venue,
				IsConnected:      s.connected,
				StaleThresholdMs: s.staleThreshold.Milliseconds(),
			}
			if s.hasBar {
				price := component(s.bar)
				in.Price = &price
			}
			if s.lastMessageMs != 0 {
				lastMs := s.lastMessageMs
				in.LastUpdateMs = &lastMs
			}
			inputs = append(inputs, in)
		}
		return inputs
	}

	openResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.Open }), nowMs)
	highResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.High }), nowMs)
	lowResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.Low }), nowMs)
	closeResult := outlier.Filter(buildInputs(func(b bar.Bar) float64 { return b.Close }), nowMs)

	composite := bar.CompositeBar{
		Time:       barTime,
		Asset:      am.Asset,
		MarketType: am.MarketType,
		IsGap:      closeResult.IsGap,
		Degraded:   openResult.Degraded || highResult.Degraded || lowResult.Degraded || closeResult.Degraded,
	}

	includedSet := make(map[trade.VenueID]bool)
	for _, c := range closeResult.Contributions {
		if c.Included {
			includedSet[c.Venue] = true
			composite.IncludedVenues = append(composite.IncludedVenues, c.Venue)
		} else {
			composite.ExcludedVenues = append(composite.ExcludedVenues, bar.ExcludedVenue{
				Venue: c.Venue, Reason: bar.ExcludeReason(c.ExcludeReason),
			})
		}
	}

	if !closeResult.IsGap {
		composite.Open = *openResult.CompositePrice
		composite.High = *highResult.CompositePrice
		composite.Low = *lowResult.CompositePrice
		composite.Close = *closeResult.CompositePrice

		for _, s := range snapshots {
			if !s.hasBar || !includedSet[s.venue] {
				continue
			}
			composite.Volume += s.bar.Volume
			composite.BuyVolume += s.bar.BuyVolume
			composite.SellVolume += s.bar.SellVolume
			composite.BuyCount += s.bar.BuyCount
			composite.SellCount += s.bar.SellCount
			composite.TradeCount += s.bar.TradeCount
		}
	}

	var records []VenueBarRecord
	for _, s := range snapshots {
		if !s.hasBar {
			continue
		}
		var reason bar.ExcludeReason
		for _, ev := range composite.ExcludedVenues {
			if ev.Venue == s.venue {
				reason = ev.Reason
			}
		}
		records = append(records, VenueBarRecord{Bar: s.bar, Included: includedSet[s.venue], ExcludeReason: reason})
	}

	a.mu.Lock()
	st.lastComputedTime = barTime
	st.ring.push(composite)
	a.mu.Unlock()

	log.Debug().Str("asset", string(am.Asset)).Str("market", string(am.MarketType)).
		Int64("bar_time", barTime).Bool("is_gap", composite.IsGap).Bool("degraded", composite.Degraded).
		Msg("composite bar computed")

	if a.onComposite != nil {
		a.onComposite(composite)
	}
	if a.onVenueBars != nil {
		a.onVenueBars(am.Asset, am.MarketType, barTime, records)
	}
}

// LatestBar returns the most recent composite for (asset, market).
func (a *Aggregator) LatestBar(am AssetMarket) (bar.CompositeBar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.series[am]
	if !ok {
		return bar.CompositeBar{}, false
	}
	return st.ring.latest()
}

// GetBars returns composite bars in [start, end) for (asset, market),
// newest-first, truncated to limit (0 = unlimited).
func (a *Aggregator) GetBars(am AssetMarket, start, end int64, limit int) []bar.CompositeBar {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.series[am]
	if !ok {
		return nil
	}
	return st.ring.rangeQuery(start, end, limit)
}

// CurrentPrices returns each venue's in-progress bar close for
// (asset, market). Venues with no open bar are omitted; connection
// state is not checked.
func (a *Aggregator) CurrentPrices(am AssetMarket) map[trade.VenueID]float64 {
	a.mu.Lock()
	st, ok := a.series[am]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	handles := make(map[trade.VenueID]*connectorHandle, len(st.connectors))
	for v, h := range st.connectors {
		handles[v] = h
	}
	a.mu.Unlock()

	out := make(map[trade.VenueID]float64, len(handles))
	for v, h := range handles {
		if price, ok := h.builder.CurrentPrice(); ok {
			out[v] = price
		}
	}
	return out
}

// ConnectionStatus returns per-venue telemetry for (asset, market).
func (a *Aggregator) ConnectionStatus(am AssetMarket) map[trade.VenueID]venue.Telemetry {
	a.mu.Lock()
	st, ok := a.series[am]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	handles := make(map[trade.VenueID]*connectorHandle, len(st.connectors))
	for v, h := range st.connectors {
		handles[v] = h
	}
	a.mu.Unlock()

	out := make(map[trade.VenueID]venue.Telemetry, len(handles))
	for v, h := range handles {
		out[v] = h.connector.Telemetry()
	}
	return out
}
