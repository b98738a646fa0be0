package sink

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// Memory is the default in-process PersistenceSink and TelemetrySink:
// a mutex-guarded map keyed the same way a durable store would be.
// Grounded on the teacher's FileBasedPITStore (mutex + map[string]*T,
// context-threaded methods, age-based Cleanup), minus the filesystem
// persistence — this is the in-memory reference, not the durable one.
type Memory struct {
	mu sync.RWMutex

	composite map[compositeKey]bar.CompositeBar
	venueBars map[venueKey]bar.Bar

	connStates []connEvent
	venueBarLog []venueBarEvent
}

type compositeKey struct {
	asset  trade.Asset
	market trade.MarketType
	time   int64
}

type venueKey struct {
	asset  trade.Asset
	market trade.MarketType
	venue  trade.VenueID
	time   int64
}

type connEvent struct {
	venue     trade.VenueID
	asset     trade.Asset
	market    trade.MarketType
	connected bool
	at        time.Time
}

type venueBarEvent struct {
	asset    trade.Asset
	market   trade.MarketType
	bar      bar.Bar
	included bool
	reason   bar.ExcludeReason
}

// NewMemory constructs an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		composite: make(map[compositeKey]bar.CompositeBar),
		venueBars: make(map[venueKey]bar.Bar),
	}
}

// UpsertCompositeBar stores c, preserving is_backfilled monotonicity:
// if an existing row already has IsBackfilled=true, the stored flag
// stays true regardless of c's value.
func (m *Memory) UpsertCompositeBar(_ context.Context, c bar.CompositeBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := compositeKey{asset: c.Asset, market: c.MarketType, time: c.Time}
	if existing, ok := m.composite[k]; ok && existing.IsBackfilled {
		c.IsBackfilled = true
	}
	m.composite[k] = c
	return nil
}

func (m *Memory) UpsertVenueBar(_ context.Context, asset trade.Asset, market trade.MarketType, v trade.VenueID, b bar.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venueBars[venueKey{asset: asset, market: market, venue: v, time: b.Time}] = b
	return nil
}

func (m *Memory) LatestCompositeBar(_ context.Context, asset trade.Asset, market trade.MarketType) (bar.CompositeBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest bar.CompositeBar
	found := false
	for k, c := range m.composite {
		if k.asset != asset || k.market != market {
			continue
		}
		if !found || c.Time > latest.Time {
			latest = c
			found = true
		}
	}
	if !found {
		return bar.CompositeBar{}, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) RangeCompositeBars(_ context.Context, asset trade.Asset, market trade.MarketType, start, end int64, limit int) ([]bar.CompositeBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []bar.CompositeBar
	for k, c := range m.composite {
		if k.asset != asset || k.market != market {
			continue
		}
		if c.Time < start || c.Time >= end {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GapTimestamps reports every minute in [start, end) with either no
// stored composite row or a stored row with is_gap=true.
func (m *Memory) GapTimestamps(_ context.Context, asset trade.Asset, market trade.MarketType, start, end int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var gaps []int64
	for t := start; t < end; t += 60 {
		k := compositeKey{asset: asset, market: market, time: t}
		c, ok := m.composite[k]
		if !ok || c.IsGap {
			gaps = append(gaps, t)
		}
	}
	return gaps, nil
}

func (m *Memory) RetentionSweep(_ context.Context, olderThanDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -olderThanDays).Unix()
	removed := 0
	for k, c := range m.composite {
		if c.Time < cutoff {
			delete(m.composite, k)
			removed++
		}
	}
	for k, b := range m.venueBars {
		if b.Time < cutoff {
			delete(m.venueBars, k)
		}
	}
	return removed, nil
}

// RecordVenueBar implements TelemetrySink by appending to a bounded
// in-memory log, purely for local diagnostics/tests.
func (m *Memory) RecordVenueBar(_ context.Context, asset trade.Asset, market trade.MarketType, b bar.Bar, included bool, reason bar.ExcludeReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venueBarLog = append(m.venueBarLog, venueBarEvent{asset: asset, market: market, bar: b, included: included, reason: reason})
	if len(m.venueBarLog) > 10000 {
		m.venueBarLog = m.venueBarLog[len(m.venueBarLog)-10000:]
	}
	return nil
}

func (m *Memory) RecordConnectionState(_ context.Context, v trade.VenueID, asset trade.Asset, market trade.MarketType, connected bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connStates = append(m.connStates, connEvent{venue: v, asset: asset, market: market, connected: connected, at: at})
	if len(m.connStates) > 10000 {
		m.connStates = m.connStates[len(m.connStates)-10000:]
	}
	return nil
}
