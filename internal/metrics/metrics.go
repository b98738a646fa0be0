// Package metrics registers the in-process Prometheus collectors for
// connector and backfill telemetry. Mirrors chidi150c-coinbase's
// metrics.go shape (CounterVec/GaugeVec package-level vars, a single
// registration point) but grouped behind a constructor and its own
// registry instead of package-level vars + init(), so tests can build
// an isolated Collectors value without colliding with
// prometheus.DefaultRegisterer across test runs. No HTTP exposition is
// wired here (spec.md §1/§6 defer the HTTP surface); these collectors
// exist to be scraped by whatever process embeds this module.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric this module emits.
type Collectors struct {
	Registry *prometheus.Registry

	VenueBarsTotal       *prometheus.CounterVec // labels: venue, asset, market
	VenueDisconnects     *prometheus.CounterVec // labels: venue, asset, market
	CompositeBarsTotal   *prometheus.CounterVec // labels: asset, market
	CompositeGapsTotal   *prometheus.CounterVec // labels: asset, market
	CompositeDegraded    *prometheus.CounterVec // labels: asset, market
	ConnectedVenues      *prometheus.GaugeVec   // labels: asset, market
	BackfillRunsTotal    *prometheus.CounterVec // labels: result
	BackfillBarsRepaired prometheus.Counter
	BackfillBarsFailed   prometheus.Counter
	BreakerTrips         *prometheus.CounterVec // labels: venue
}

// New builds a Collectors bundle registered on its own registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		Registry: reg,
		VenueBarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositefeed_venue_bars_total",
			Help: "Completed per-venue one-minute bars produced by the builder.",
		}, []string{"venue", "asset", "market"}),
		VenueDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositefeed_venue_disconnects_total",
			Help: "Venue websocket disconnects observed.",
		}, []string{"venue", "asset", "market"}),
		CompositeBarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositefeed_composite_bars_total",
			Help: "Composite bars emitted by the aggregator.",
		}, []string{"asset", "market"}),
		CompositeGapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositefeed_composite_gaps_total",
			Help: "Composite bars emitted with is_gap=true.",
		}, []string{"asset", "market"}),
		CompositeDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositefeed_composite_degraded_total",
			Help: "Composite bars emitted with degraded=true.",
		}, []string{"asset", "market"}),
		ConnectedVenues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compositefeed_connected_venues",
			Help: "Number of currently connected venue connectors.",
		}, []string{"asset", "market"}),
		BackfillRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositefeed_backfill_runs_total",
			Help: "Backfill runs by terminal result.",
		}, []string{"result"}),
		BackfillBarsRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compositefeed_backfill_bars_repaired_total",
			Help: "Composite bars successfully repaired by backfill runs.",
		}),
		BackfillBarsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compositefeed_backfill_bars_failed_total",
			Help: "Gap minutes that could not be repaired (below quorum or sink error).",
		}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositefeed_breaker_trips_total",
			Help: "Circuit breaker open-state transitions per venue.",
		}, []string{"venue"}),
	}

	reg.MustRegister(
		c.VenueBarsTotal, c.VenueDisconnects,
		c.CompositeBarsTotal, c.CompositeGapsTotal, c.CompositeDegraded, c.ConnectedVenues,
		c.BackfillRunsTotal, c.BackfillBarsRepaired, c.BackfillBarsFailed,
		c.BreakerTrips,
	)
	return c
}

// ObserveBackfillResult records one backfill run's terminal counters.
func (c *Collectors) ObserveBackfillResult(barsRepaired, barsFailed int) {
	c.BackfillBarsRepaired.Add(float64(barsRepaired))
	c.BackfillBarsFailed.Add(float64(barsFailed))
	result := "ok"
	if barsFailed > 0 {
		result = "partial"
	}
	c.BackfillRunsTotal.WithLabelValues(result).Inc()
}
