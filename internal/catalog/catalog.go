// Package catalog holds the frozen, static venue/asset/market mapping
// (C1 of the design): symbols, stream names, WS endpoints, subscription
// bodies, and stale thresholds. It is pure configuration data with no
// runtime mutation, the same shape as the teacher's
// internal/config/providers.go typed-struct-plus-Validate convention,
// minus the YAML overlay since these values are a closed, frozen set.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/compositefeed/internal/trade"
)

// ErrUnsupportedCombo is returned when a (venue, asset, market) triple
// has no catalog entry.
var ErrUnsupportedCombo = errors.New("catalog: unsupported venue/asset/market combination")

// Entry is one venue's static capability+subscription descriptor for a
// single (asset, market) pair.
type Entry struct {
	Venue          trade.VenueID
	Asset          trade.Asset
	MarketType     trade.MarketType
	Symbol         string        // venue-native symbol, e.g. "BTCUSDT", "XBT/USD"
	StreamName     string        // venue channel/stream identifier
	WSEndpoint     string
	SubscribeBody  string // JSON subscription message template
	StaleThreshold time.Duration
}

// VenueCaps describes a venue's cross-market capabilities.
type VenueCaps struct {
	SupportsSpot     bool
	SupportsPerp     bool
	SupportsBackfill bool
}

// Catalog is the frozen lookup table. Construct with NewDefault(); it is
// safe for concurrent read-only use after construction.
type Catalog struct {
	entries map[key]Entry
	caps    map[trade.VenueID]VenueCaps
}

type key struct {
	venue  trade.VenueID
	asset  trade.Asset
	market trade.MarketType
}

// NewDefault builds the catalog described in spec.md §4.1 for the five
// supported venues and the BTC/ETH asset set.
func NewDefault() *Catalog {
	c := &Catalog{
		entries: make(map[key]Entry),
		caps: map[trade.VenueID]VenueCaps{
			trade.VenueBinance:  {SupportsSpot: true, SupportsPerp: true, SupportsBackfill: true},
			trade.VenueCoinbase: {SupportsSpot: true, SupportsPerp: false, SupportsBackfill: false},
			trade.VenueKraken:   {SupportsSpot: true, SupportsPerp: false, SupportsBackfill: true},
			trade.VenueOKX:      {SupportsSpot: true, SupportsPerp: true, SupportsBackfill: true},
			trade.VenueBybit:    {SupportsSpot: false, SupportsPerp: true, SupportsBackfill: true},
		},
	}

	add := func(e Entry) { c.entries[key{e.Venue, e.Asset, e.MarketType}] = e }

	// Binance: lower-cased symbol stream name, spot+perp both supported.
	add(Entry{Venue: trade.VenueBinance, Asset: "BTC", MarketType: trade.MarketSpot,
		Symbol: "BTCUSDT", StreamName: "btcusdt@aggTrade",
		WSEndpoint:    "wss://stream.binance.com:9443/ws/btcusdt@aggTrade",
		SubscribeBody: `{"method":"SUBSCRIBE","params":["btcusdt@aggTrade"],"id":1}`,
		StaleThreshold: 10 * time.Second})
	add(Entry{Venue: trade.VenueBinance, Asset: "ETH", MarketType: trade.MarketSpot,
		Symbol: "ETHUSDT", StreamName: "ethusdt@aggTrade",
		WSEndpoint:    "wss://stream.binance.com:9443/ws/ethusdt@aggTrade",
		SubscribeBody: `{"method":"SUBSCRIBE","params":["ethusdt@aggTrade"],"id":1}`,
		StaleThreshold: 10 * time.Second})
	add(Entry{Venue: trade.VenueBinance, Asset: "BTC", MarketType: trade.MarketPerp,
		Symbol: "BTCUSDT", StreamName: "btcusdt@aggTrade",
		WSEndpoint:    "wss://fstream.binance.com/ws/btcusdt@aggTrade",
		SubscribeBody: `{"method":"SUBSCRIBE","params":["btcusdt@aggTrade"],"id":1}`,
		StaleThreshold: 10 * time.Second})
	add(Entry{Venue: trade.VenueBinance, Asset: "ETH", MarketType: trade.MarketPerp,
		Symbol: "ETHUSDT", StreamName: "ethusdt@aggTrade",
		WSEndpoint:    "wss://fstream.binance.com/ws/ethusdt@aggTrade",
		SubscribeBody: `{"method":"SUBSCRIBE","params":["ethusdt@aggTrade"],"id":1}`,
		StaleThreshold: 10 * time.Second})

	// Coinbase: spot only, ISO-time match channel.
	add(Entry{Venue: trade.VenueCoinbase, Asset: "BTC", MarketType: trade.MarketSpot,
		Symbol: "BTC-USD", StreamName: "matches",
		WSEndpoint:    "wss://ws-feed.exchange.coinbase.com",
		SubscribeBody: `{"type":"subscribe","product_ids":["BTC-USD"],"channels":["matches"]}`,
		StaleThreshold: 15 * time.Second})
	add(Entry{Venue: trade.VenueCoinbase, Asset: "ETH", MarketType: trade.MarketSpot,
		Symbol: "ETH-USD", StreamName: "matches",
		WSEndpoint:    "wss://ws-feed.exchange.coinbase.com",
		SubscribeBody: `{"type":"subscribe","product_ids":["ETH-USD"],"channels":["matches"]}`,
		StaleThreshold: 15 * time.Second})

	// Kraken: spot only, XBT not BTC in the wire symbol.
	add(Entry{Venue: trade.VenueKraken, Asset: "BTC", MarketType: trade.MarketSpot,
		Symbol: "XBT/USD", StreamName: "trade",
		WSEndpoint:    "wss://ws.kraken.com",
		SubscribeBody: `{"event":"subscribe","pair":["XBT/USD"],"subscription":{"name":"trade"}}`,
		StaleThreshold: 15 * time.Second})
	add(Entry{Venue: trade.VenueKraken, Asset: "ETH", MarketType: trade.MarketSpot,
		Symbol: "ETH/USD", StreamName: "trade",
		WSEndpoint:    "wss://ws.kraken.com",
		SubscribeBody: `{"event":"subscribe","pair":["ETH/USD"],"subscription":{"name":"trade"}}`,
		StaleThreshold: 15 * time.Second})

	// OKX: spot+perp, `trades` channel, instType differs.
	add(Entry{Venue: trade.VenueOKX, Asset: "BTC", MarketType: trade.MarketSpot,
		Symbol: "BTC-USDT", StreamName: "trades",
		WSEndpoint:    "wss://ws.okx.com:8443/ws/v5/public",
		SubscribeBody: `{"op":"subscribe","args":[{"channel":"trades","instId":"BTC-USDT"}]}`,
		StaleThreshold: 10 * time.Second})
	add(Entry{Venue: trade.VenueOKX, Asset: "ETH", MarketType: trade.MarketSpot,
		Symbol: "ETH-USDT", StreamName: "trades",
		WSEndpoint:    "wss://ws.okx.com:8443/ws/v5/public",
		SubscribeBody: `{"op":"subscribe","args":[{"channel":"trades","instId":"ETH-USDT"}]}`,
		StaleThreshold: 10 * time.Second})
	add(Entry{Venue: trade.VenueOKX, Asset: "BTC", MarketType: trade.MarketPerp,
		Symbol: "BTC-USDT-SWAP", StreamName: "trades",
		WSEndpoint:    "wss://ws.okx.com:8443/ws/v5/public",
		SubscribeBody: `{"op":"subscribe","args":[{"channel":"trades","instId":"BTC-USDT-SWAP"}]}`,
		StaleThreshold: 10 * time.Second})
	add(Entry{Venue: trade.VenueOKX, Asset: "ETH", MarketType: trade.MarketPerp,
		Symbol: "ETH-USDT-SWAP", StreamName: "trades",
		WSEndpoint:    "wss://ws.okx.com:8443/ws/v5/public",
		SubscribeBody: `{"op":"subscribe","args":[{"channel":"trades","instId":"ETH-USDT-SWAP"}]}`,
		StaleThreshold: 10 * time.Second})

	// Bybit: perp only, publicTrade channel.
	add(Entry{Venue: trade.VenueBybit, Asset: "BTC", MarketType: trade.MarketPerp,
		Symbol: "BTCUSDT", StreamName: "publicTrade.BTCUSDT",
		WSEndpoint:    "wss://stream.bybit.com/v5/public/linear",
		SubscribeBody: `{"op":"subscribe","args":["publicTrade.BTCUSDT"]}`,
		StaleThreshold: 10 * time.Second})
	add(Entry{Venue: trade.VenueBybit, Asset: "ETH", MarketType: trade.MarketPerp,
		Symbol: "ETHUSDT", StreamName: "publicTrade.ETHUSDT",
		WSEndpoint:    "wss://stream.bybit.com/v5/public/linear",
		SubscribeBody: `{"op":"subscribe","args":["publicTrade.ETHUSDT"]}`,
		StaleThreshold: 10 * time.Second})

	return c
}

// Lookup returns the catalog entry for a combination, or
// ErrUnsupportedCombo if the venue does not support that market or the
// combination is simply absent.
func (c *Catalog) Lookup(venue trade.VenueID, asset trade.Asset, market trade.MarketType) (Entry, error) {
	e, ok := c.entries[key{venue, asset, market}]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s/%s/%s", ErrUnsupportedCombo, venue, asset, market)
	}
	return e, nil
}

// Caps returns the venue's static capability flags.
func (c *Catalog) Caps(venue trade.VenueID) (VenueCaps, bool) {
	caps, ok := c.caps[venue]
	return caps, ok
}

// RealtimeVenues returns every venue id with any catalog entry at all.
func (c *Catalog) RealtimeVenues() []trade.VenueID {
	seen := map[trade.VenueID]bool{}
	var out []trade.VenueID
	for k := range c.entries {
		if !seen[k.venue] {
			seen[k.venue] = true
			out = append(out, k.venue)
		}
	}
	return out
}

// BackfillVenues returns the subset of venues whose capability set marks
// them as having a historical REST API (spec.md §4.1).
func (c *Catalog) BackfillVenues() []trade.VenueID {
	var out []trade.VenueID
	for _, v := range c.RealtimeVenues() {
		if caps, ok := c.caps[v]; ok && caps.SupportsBackfill {
			out = append(out, v)
		}
	}
	return out
}

// EnabledVenuesFor returns every venue in the catalog that supports the
// given market type, for connector-set instantiation (spec.md §4.5).
func (c *Catalog) EnabledVenuesFor(asset trade.Asset, market trade.MarketType) []trade.VenueID {
	var out []trade.VenueID
	for k := range c.entries {
		if k.asset == asset && k.market == market {
			out = append(out, k.venue)
		}
	}
	return out
}
