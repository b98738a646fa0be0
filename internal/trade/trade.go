// Package trade defines the canonical normalized trade shape every venue
// parser produces, independent of exchange-specific wire formats.
package trade

// Asset is one of the closed set of tracked assets (e.g. BTC, ETH).
type Asset string

// MarketType distinguishes spot order books from perpetual futures.
type MarketType string

const (
	MarketSpot MarketType = "SPOT"
	MarketPerp MarketType = "PERP"
)

// VenueID identifies a trading venue.
type VenueID string

const (
	VenueBinance  VenueID = "binance"
	VenueCoinbase VenueID = "coinbase"
	VenueKraken   VenueID = "kraken"
	VenueOKX      VenueID = "okx"
	VenueBybit    VenueID = "bybit"
)

// TakerSide is the normalized aggressor direction: BUY means the taker
// lifted the ask, SELL means the taker hit the bid. Every venue parser
// must translate its own maker/taker field into this convention.
type TakerSide string

const (
	Buy  TakerSide = "BUY"
	Sell TakerSide = "SELL"
)

// Trade is a single normalized execution from a venue's trade stream or
// historical REST endpoint.
type Trade struct {
	Timestamp      int64 // exchange event time, unix ms
	LocalTimestamp int64 // receipt wall-clock time, unix ms
	Price          float64
	Quantity       float64
	TakerSide      TakerSide
	Venue          VenueID
	Asset          Asset
	MarketType     MarketType
}

// Valid reports whether the trade passes the minimal data-validity
// checks every venue parser must apply before handing a trade onward:
// positive price and quantity.
func (t Trade) Valid() bool {
	return t.Price > 0 && t.Quantity > 0
}

// BarTime floors the exchange timestamp to the start of its one-minute
// bucket, in unix seconds.
func (t Trade) BarTime() int64 {
	return (t.Timestamp / 60000) * 60
}
