// Package outlier implements the composite price filter (C4): a strict
// DISCONNECTED → STALE → OUTLIER exclusion order over one OHLC
// component's per-venue price inputs, followed by a median-based
// composite price and quorum/degraded classification. This algorithm is
// a frozen contract per spec.md §4.4 — every step and threshold below is
// load-bearing and must not be reordered or rebalanced.
package outlier

import (
	"math"
	"sort"

	"github.com/sawpanic/compositefeed/internal/trade"
)

const (
	// MinQuorum is the minimum number of surviving venues below which a
	// component is a gap.
	MinQuorum = 2
	// PreferredQuorum is the survivor count below which a component is
	// degraded but still valid.
	PreferredQuorum = 3
	// OutlierBandBps is the maximum allowed deviation from the median,
	// in basis points (100 bps = 1%).
	OutlierBandBps = 100.0
)

// DegradedReason explains why a component fell below preferred quorum,
// in the spec-mandated priority order.
type DegradedReason string

const (
	ReasonNone                   DegradedReason = "NONE"
	ReasonVenueDisconnected      DegradedReason = "VENUE_DISCONNECTED"
	ReasonVenueStale             DegradedReason = "VENUE_STALE"
	ReasonVenueOutlier           DegradedReason = "VENUE_OUTLIER"
	ReasonSingleSource           DegradedReason = "SINGLE_SOURCE"
	ReasonBelowPreferredQuorum   DegradedReason = "BELOW_PREFERRED_QUORUM"
)

// ExcludeReason is why a single venue's input was excluded from the
// median for this component.
type ExcludeReason string

const (
	ExcludeNone         ExcludeReason = ""
	ExcludeDisconnected ExcludeReason = "DISCONNECTED"
	ExcludeNoData       ExcludeReason = "NO_DATA"
	ExcludeStale        ExcludeReason = "STALE"
	ExcludeOutlier      ExcludeReason = "OUTLIER"
)

// VenuePriceInput is one venue's candidate price for a single OHLC
// component at a given evaluation instant.
type VenuePriceInput struct {
	Venue         trade.VenueID
	Price         *float64 // nil => NO_DATA
	LastUpdateMs  *int64   // nil => NO_DATA
	IsConnected   bool
	StaleThresholdMs int64 // per (venue, market) from the catalog
}

// Contribution is one venue's outcome for this component: whether it
// was included, its deviation from the pre-outlier median in bps (set
// for every venue that passed steps 1-3, including OUTLIER exclusions;
// zero otherwise), and why it was excluded otherwise.
type Contribution struct {
	Venue         trade.VenueID
	Price         *float64
	Included      bool
	DeviationBps  float64
	ExcludeReason ExcludeReason
}

// Result is the full outcome of filtering one OHLC component.
type Result struct {
	CompositePrice *float64 // nil iff IsGap
	Contributions  []Contribution
	IncludedCount  int
	IsGap          bool
	Degraded       bool
	DegradedReason DegradedReason
}

// Filter runs the C4 algorithm over one component's venue inputs at
// wall-clock instant nowMs.
func Filter(inputs []VenuePriceInput, nowMs int64) Result {
	contributions := make([]Contribution, len(inputs))
	var survivors []int // indices into inputs/contributions that passed steps 1-3

	var sawDisconnected, sawStale bool

	// Steps 1-3: DISCONNECTED, NO_DATA, STALE — in that order, before
	// any median computation.
	for i, in := range inputs {
		c := Contribution{Venue: in.Venue, Price: in.Price}

		switch {
		case !in.IsConnected:
			c.ExcludeReason = ExcludeDisconnected
			sawDisconnected = true
		case in.Price == nil || in.LastUpdateMs == nil:
			c.ExcludeReason = ExcludeNoData
		case nowMs-*in.LastUpdateMs > in.StaleThresholdMs:
			c.ExcludeReason = ExcludeStale
			sawStale = true
		default:
			survivors = append(survivors, i)
		}

		contributions[i] = c
	}

	// Step 4: median over post-(1-3) survivors.
	prices := make([]float64, len(survivors))
	for j, idx := range survivors {
		prices[j] = *inputs[idx].Price
	}
	medianPre := median(prices)

	// Step 5: OUTLIER — any survivor whose deviation from medianPre
	// exceeds the band is excluded. Deviation is recorded for every
	// survivor regardless of outcome.
	var sawOutlier bool
	var finalSurvivors []int
	for _, idx := range survivors {
		price := *inputs[idx].Price
		devBps := 0.0
		if medianPre != 0 {
			devBps = math.Abs(price-medianPre) / medianPre * 10000
		}
		contributions[idx].DeviationBps = devBps

		if devBps > OutlierBandBps {
			contributions[idx].ExcludeReason = ExcludeOutlier
			sawOutlier = true
			continue
		}
		contributions[idx].Included = true
		finalSurvivors = append(finalSurvivors, idx)
	}

	// Step 6: composite price is the median of post-outlier survivors.
	finalPrices := make([]float64, len(finalSurvivors))
	for j, idx := range finalSurvivors {
		finalPrices[j] = *inputs[idx].Price
	}

	included := len(finalSurvivors)
	isGap := included < MinQuorum
	degraded := included < PreferredQuorum

	res := Result{
		Contributions: contributions,
		IncludedCount: included,
		IsGap:         isGap,
		Degraded:      degraded,
	}

	if !isGap {
		m := median(finalPrices)
		res.CompositePrice = &m
	}

	if degraded {
		switch {
		case sawDisconnected:
			res.DegradedReason = ReasonVenueDisconnected
		case sawStale:
			res.DegradedReason = ReasonVenueStale
		case sawOutlier:
			res.DegradedReason = ReasonVenueOutlier
		case included == 1:
			res.DegradedReason = ReasonSingleSource
		default:
			res.DegradedReason = ReasonBelowPreferredQuorum
		}
	} else {
		res.DegradedReason = ReasonNone
	}

	return res
}

// median computes the standard odd/even median (average of the two
// middles for even-length slices). It does not mutate the input.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
