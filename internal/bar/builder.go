package bar

import (
	"sync"

	"github.com/sawpanic/compositefeed/internal/trade"
)

// maxTradesPerMinute is the per-minute safety cap: once reached, further
// trades for the current bar are dropped without blocking bar-time
// advance.
const maxTradesPerMinute = 5000

// OnComplete is invoked once a bar closes, with IsPartial=false.
type OnComplete func(Bar)

// Builder accumulates trades for a single (venue, asset, market) into
// minute-aligned bars. A Builder is owned by exactly one connector; all
// methods must be called from that owner's goroutine (spec.md §5 routes
// state changes through the owner rather than ad-hoc locking), except
// the read paths which take a read lock for cross-goroutine snapshot
// reads from the aggregator's minute tick.
type Builder struct {
	mu sync.RWMutex

	venue      trade.VenueID
	asset      trade.Asset
	marketType trade.MarketType

	current      *Bar
	currentCount int // trades applied to current bar, for the safety cap

	completed []Bar // bounded small deque of recently completed bars

	onComplete OnComplete
}

// maxCompletedRetained bounds the completed-bar deque; the aggregator
// only ever needs the latest closed bar, but a short history is kept for
// diagnostics.
const maxCompletedRetained = 4

// NewBuilder constructs a Builder for one (venue, asset, market) key.
func NewBuilder(venue trade.VenueID, asset trade.Asset, marketType trade.MarketType) *Builder {
	return &Builder{venue: venue, asset: asset, marketType: marketType}
}

// SetOnComplete wires the bar-completion callback. Must be called before
// AddTrade is used concurrently with reads.
func (b *Builder) SetOnComplete(fn OnComplete) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onComplete = fn
}

// AddTrade applies a single validated trade to the accumulator per the
// C2 state machine in spec.md §4.2.
func (b *Builder) AddTrade(t trade.Trade) {
	barTime := t.BarTime()

	b.mu.Lock()

	if b.current == nil {
		b.openBar(barTime, t)
		b.mu.Unlock()
		return
	}

	switch {
	case barTime == b.current.Time:
		if b.currentCount >= maxTradesPerMinute {
			b.mu.Unlock()
			return
		}
		b.applyTrade(t)
	case barTime > b.current.Time:
		finished := *b.current
		finished.IsPartial = false
		b.pushCompleted(finished)
		cb := b.onComplete
		b.mu.Unlock()
		if cb != nil {
			cb(finished)
		}
		b.mu.Lock()
		b.openBar(barTime, t)
		b.mu.Unlock()
		return
	default:
		// bar_time < current.Time: out-of-order past trade, dropped.
	}

	b.mu.Unlock()
}

// openBar starts a fresh bar at barTime from the given trade. Caller
// must hold b.mu.
func (b *Builder) openBar(barTime int64, t trade.Trade) {
	b.current = &Bar{
		Time:       barTime,
		Open:       t.Price,
		High:       t.Price,
		Low:        t.Price,
		Close:      t.Price,
		Venue:      b.venue,
		Asset:      b.asset,
		MarketType: b.marketType,
		IsPartial:  true,
	}
	b.currentCount = 0
	b.applyTrade(t)
}

// applyTrade folds one trade into the open bar. Caller must hold b.mu.
func (b *Builder) applyTrade(t trade.Trade) {
	c := b.current
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += t.Quantity
	c.TradeCount++
	if t.TakerSide == trade.Buy {
		c.BuyVolume += t.Quantity
		c.BuyCount++
	} else {
		c.SellVolume += t.Quantity
		c.SellCount++
	}
	b.currentCount++
}

func (b *Builder) pushCompleted(bar Bar) {
	b.completed = append(b.completed, bar)
	if len(b.completed) > maxCompletedRetained {
		b.completed = b.completed[len(b.completed)-maxCompletedRetained:]
	}
}

// PartialBar returns a copy of the in-progress bar, if any.
func (b *Builder) PartialBar() (Bar, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return Bar{}, false
	}
	return *b.current, true
}

// LatestBar returns the most recently completed bar, if any.
func (b *Builder) LatestBar() (Bar, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.completed) == 0 {
		return Bar{}, false
	}
	return b.completed[len(b.completed)-1], true
}

// CurrentPrice returns the close of the in-progress bar, if any.
func (b *Builder) CurrentPrice() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return 0, false
	}
	return b.current.Close, true
}
