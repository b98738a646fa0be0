package venue

import (
	"encoding/json"
	"fmt"

	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// binanceAggTrade is the wire shape of a Binance aggTrade stream event.
type binanceAggTrade struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
	IsMaker   bool   `json:"m"` // true => buyer is maker => taker is SELL
}

// BinanceDriver parses Binance aggTrade frames per spec.md §4.3.
type BinanceDriver struct {
	entry catalog.Entry
}

func NewBinanceDriver(entry catalog.Entry) *BinanceDriver { return &BinanceDriver{entry: entry} }

func (d *BinanceDriver) VenueID() trade.VenueID       { return trade.VenueBinance }
func (d *BinanceDriver) Asset() trade.Asset           { return d.entry.Asset }
func (d *BinanceDriver) MarketType() trade.MarketType { return d.entry.MarketType }
func (d *BinanceDriver) Endpoint() string             { return d.entry.WSEndpoint }
func (d *BinanceDriver) SubscribeMessage() []byte     { return []byte(d.entry.SubscribeBody) }

func (d *BinanceDriver) ParseFrame(data []byte, receivedAtMs int64) ([]trade.Trade, error) {
	// Subscription ack frames look like {"result":null,"id":1}; detect
	// and discard them before attempting the aggTrade shape.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("binance: malformed frame: %w", err)
	}
	if _, hasID := probe["id"]; hasID {
		return nil, nil
	}

	var evt binanceAggTrade
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("binance: malformed aggTrade: %w", err)
	}
	if evt.EventType != "aggTrade" {
		return nil, nil
	}
	if evt.Symbol != d.entry.Symbol {
		return nil, nil
	}

	price, qty, err := parseFloats(evt.Price, evt.Qty)
	if err != nil {
		return nil, fmt.Errorf("binance: %w", err)
	}

	side := trade.Buy
	if evt.IsMaker {
		side = trade.Sell
	}

	return []trade.Trade{{
		Timestamp:      evt.TradeTime,
		LocalTimestamp: receivedAtMs,
		Price:          price,
		Quantity:       qty,
		TakerSide:      side,
		Venue:          trade.VenueBinance,
		Asset:          d.entry.Asset,
		MarketType:     d.entry.MarketType,
	}}, nil
}
