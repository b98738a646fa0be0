package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/compositefeed/internal/aggregator"
	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/catalog"
	applog "github.com/sawpanic/compositefeed/internal/log"
	"github.com/sawpanic/compositefeed/internal/metrics"
	"github.com/sawpanic/compositefeed/internal/sink"
	"github.com/sawpanic/compositefeed/internal/trade"
	"github.com/sawpanic/compositefeed/internal/venue"

	appconfig "github.com/sawpanic/compositefeed/internal/config"
	"github.com/sawpanic/compositefeed/internal/clock"
)

// monitorConnections polls each series' per-venue telemetry on a
// ticker and reflects it into the connected-venues gauge and the
// disconnect counter, the same ticker+select shape the teacher's
// websocket ping loop uses for its own periodic checks.
func monitorConnections(ctx context.Context, agg *aggregator.Aggregator, series []aggregator.AssetMarket, mcs *metrics.Collectors) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	wasConnected := make(map[trade.VenueID]bool)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sm := range series {
				status := agg.ConnectionStatus(sm)
				connected := 0
				for v, t := range status {
					if t.IsConnected {
						connected++
					} else if wasConnected[v] {
						mcs.VenueDisconnects.WithLabelValues(string(v), string(sm.Asset), string(sm.MarketType)).Inc()
					}
					wasConnected[v] = t.IsConnected
				}
				mcs.ConnectedVenues.WithLabelValues(string(sm.Asset), string(sm.MarketType)).Set(float64(connected))
			}
		}
	}
}

func runCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the realtime composite feed for every configured asset/market",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applog.Setup(cfg.Environment)

			cat := catalog.NewDefault()
			persistence := sink.PersistenceSink(sink.NewMemory())
			telemetry := sink.TelemetrySink(sink.NewMemory())
			mcs := metrics.New()

			onComposite := func(c bar.CompositeBar) {
				mcs.CompositeBarsTotal.WithLabelValues(string(c.Asset), string(c.MarketType)).Inc()
				if c.IsGap {
					mcs.CompositeGapsTotal.WithLabelValues(string(c.Asset), string(c.MarketType)).Inc()
				}
				if c.Degraded {
					mcs.CompositeDegraded.WithLabelValues(string(c.Asset), string(c.MarketType)).Inc()
				}
				if err := persistence.UpsertCompositeBar(cmd.Context(), c); err != nil {
					log.Error().Err(err).Int64("bar_time", c.Time).Msg("upsert composite bar failed")
				}
			}
			onVenueBars := func(asset trade.Asset, market trade.MarketType, barTime int64, records []aggregator.VenueBarRecord) {
				for _, r := range records {
					mcs.VenueBarsTotal.WithLabelValues(string(r.Bar.Venue), string(asset), string(market)).Inc()
					if err := persistence.UpsertVenueBar(cmd.Context(), asset, market, r.Bar.Venue, r.Bar); err != nil {
						log.Error().Err(err).Str("venue", string(r.Bar.Venue)).Msg("upsert venue bar failed")
					}
					if err := telemetry.RecordVenueBar(cmd.Context(), asset, market, r.Bar, r.Included, r.ExcludeReason); err != nil {
						log.Error().Err(err).Msg("record venue bar telemetry failed")
					}
				}
			}

			agg := aggregator.New(cat, venue.GorillaDialer{}, clock.Real{}, onComposite, onVenueBars)

			var series []aggregator.AssetMarket
			for _, am := range cfg.Assets {
				market := trade.MarketType(am.MarketType)
				sm := aggregator.AssetMarket{Asset: trade.Asset(am.Asset), MarketType: market}
				agg.AddSeries(cmd.Context(), sm)
				series = append(series, sm)
				mcs.ConnectedVenues.WithLabelValues(am.Asset, am.MarketType).Set(0)
				log.Info().Str("asset", am.Asset).Str("market", am.MarketType).Msg("series registered")
			}

			go monitorConnections(cmd.Context(), agg, series, mcs)

			log.Info().Msg("aggregator running")
			agg.Run(cmd.Context())
			return nil
		},
	}
	return cmd
}
