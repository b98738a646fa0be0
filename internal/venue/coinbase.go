package venue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// coinbaseMatch is the wire shape of a Coinbase "match" channel event.
type coinbaseMatch struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Time      string `json:"time"` // RFC3339 with nanoseconds
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"` // "buy" | "sell" — side of the taker per Coinbase's match event
}

// CoinbaseDriver parses Coinbase "match" frames per spec.md §4.3.
type CoinbaseDriver struct {
	entry catalog.Entry
}

func NewCoinbaseDriver(entry catalog.Entry) *CoinbaseDriver { return &CoinbaseDriver{entry: entry} }

func (d *CoinbaseDriver) VenueID() trade.VenueID       { return trade.VenueCoinbase }
func (d *CoinbaseDriver) Asset() trade.Asset           { return d.entry.Asset }
func (d *CoinbaseDriver) MarketType() trade.MarketType { return d.entry.MarketType }
func (d *CoinbaseDriver) Endpoint() string             { return d.entry.WSEndpoint }
func (d *CoinbaseDriver) SubscribeMessage() []byte     { return []byte(d.entry.SubscribeBody) }

func (d *CoinbaseDriver) ParseFrame(data []byte, receivedAtMs int64) ([]trade.Trade, error) {
	var evt coinbaseMatch
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("coinbase: malformed frame: %w", err)
	}

	switch evt.Type {
	case "match", "last_match":
	case "subscriptions", "heartbeat", "error", "":
		return nil, nil
	default:
		return nil, nil
	}

	if evt.ProductID != d.entry.Symbol {
		return nil, nil
	}

	price, qty, err := parseFloats(evt.Price, evt.Size)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, evt.Time)
	if err != nil {
		return nil, fmt.Errorf("coinbase: invalid time %q: %w", evt.Time, err)
	}

	side := trade.Buy
	if evt.Side == "sell" {
		side = trade.Sell
	}

	return []trade.Trade{{
		Timestamp:      ts.UnixMilli(),
		LocalTimestamp: receivedAtMs,
		Price:          price,
		Quantity:       qty,
		TakerSide:      side,
		Venue:          trade.VenueCoinbase,
		Asset:          d.entry.Asset,
		MarketType:     d.entry.MarketType,
	}}, nil
}
