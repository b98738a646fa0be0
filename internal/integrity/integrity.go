// Package integrity computes the downstream-gating quality report over
// a composite bar window (spec.md §6): expected/actual/gap counts plus
// a coarse tier and recommendation a caller can act on without
// re-deriving the thresholds itself.
package integrity

import (
	"context"
	"fmt"

	"github.com/sawpanic/compositefeed/internal/sink"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// Tier is a coarse data-quality bucket over a window, calibrated to a
// 24h/1440-bar window per spec.md §6.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "1"
	case Tier2:
		return "2"
	case Tier3:
		return "3"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Recommendation is the external-contract action derived from Tier.
type Recommendation string

const (
	RecommendProceed            Recommendation = "PROCEED"
	RecommendProceedWithCaution Recommendation = "PROCEED_WITH_CAUTION"
	RecommendBackfillRequired   Recommendation = "BACKFILL_REQUIRED"
)

// Report is the integrity/tiering stats for one (asset, market) window.
type Report struct {
	Start, End int64

	Expected int
	Actual   int
	Missing  int
	Gaps     int
	TotalGaps int

	Degraded        int
	QualityDegraded int
	Backfilled      int

	Tier           Tier
	Recommendation Recommendation
}

// Compute reads every composite bar in [start, end) from sink and
// derives the integrity report per spec.md §6.
func Compute(ctx context.Context, s sink.PersistenceSink, asset trade.Asset, market trade.MarketType, start, end int64) (Report, error) {
	if end <= start {
		return Report{}, fmt.Errorf("integrity: start must precede end")
	}

	bars, err := s.RangeCompositeBars(ctx, asset, market, start, end, 0)
	if err != nil {
		return Report{}, fmt.Errorf("integrity: range read: %w", err)
	}

	expected := int((end - start) / 60)

	r := Report{Start: start, End: end, Expected: expected, Actual: len(bars)}
	for _, b := range bars {
		if b.IsGap {
			r.Gaps++
		}
		if b.Degraded {
			r.Degraded++
		}
		if len(b.ExcludedVenues) > 0 {
			r.QualityDegraded++
		}
		if b.IsBackfilled {
			r.Backfilled++
		}
	}

	if r.Missing = expected - r.Actual; r.Missing < 0 {
		r.Missing = 0
	}
	r.TotalGaps = r.Gaps + r.Missing

	r.Tier, r.Recommendation = classify(r.TotalGaps, r.QualityDegraded)
	return r, nil
}

// classify applies the tier thresholds from spec.md §6, calibrated to a
// 24h/1440-bar window.
func classify(totalGaps, qualityDegraded int) (Tier, Recommendation) {
	switch {
	case totalGaps <= 5 && qualityDegraded <= 60:
		return Tier1, RecommendProceed
	case totalGaps <= 30 && qualityDegraded <= 180:
		return Tier2, RecommendProceedWithCaution
	default:
		return Tier3, RecommendBackfillRequired
	}
}
