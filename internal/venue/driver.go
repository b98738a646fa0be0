// Package venue implements the per-venue connector supervisor (C3):
// one WS session per (venue, asset, market) parameterized by a Driver
// capability value, per spec.md §9's design note ("variants are values,
// not subclasses") rather than a base-class hierarchy. Grounded on the
// teacher's internal/providers/kraken/websocket.go connection/message
// loop, generalized across venues.
package venue

import "github.com/sawpanic/compositefeed/internal/trade"

// Driver bundles everything venue-specific about one (venue, asset,
// market) trade stream: where to connect, what to send, and how to
// translate inbound frames into normalized trades.
type Driver interface {
	VenueID() trade.VenueID
	Asset() trade.Asset
	MarketType() trade.MarketType
	Endpoint() string
	SubscribeMessage() []byte

	// ParseFrame turns one inbound WS text frame into zero or more
	// normalized trades. Administrative frames (subscribe acks,
	// heartbeats, pings) return (nil, nil). Malformed frames return a
	// non-nil error; the connector logs and drops them without
	// escalating (spec.md §7, venue protocol fault).
	//
	// receivedAtMs is the receipt wall-clock time used to stamp
	// Trade.LocalTimestamp.
	ParseFrame(data []byte, receivedAtMs int64) ([]trade.Trade, error)
}
