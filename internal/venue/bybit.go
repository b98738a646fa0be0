package venue

import (
	"encoding/json"
	"fmt"

	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// bybitPublicTrade is the wire shape of a Bybit `publicTrade` push.
type bybitPublicTrade struct {
	Topic string `json:"topic"`
	Op    string `json:"op"` // present on subscribe ack frames
	Data  []struct {
		T int64  `json:"T"` // trade time, ms
		S string `json:"s"` // symbol
		Side string `json:"S"`
		V    string `json:"v"` // volume
		P    string `json:"p"` // price
	} `json:"data"`
}

// BybitDriver parses Bybit `publicTrade` frames per spec.md §4.3.
type BybitDriver struct {
	entry catalog.Entry
}

func NewBybitDriver(entry catalog.Entry) *BybitDriver { return &BybitDriver{entry: entry} }

func (d *BybitDriver) VenueID() trade.VenueID       { return trade.VenueBybit }
func (d *BybitDriver) Asset() trade.Asset           { return d.entry.Asset }
func (d *BybitDriver) MarketType() trade.MarketType { return d.entry.MarketType }
func (d *BybitDriver) Endpoint() string             { return d.entry.WSEndpoint }
func (d *BybitDriver) SubscribeMessage() []byte     { return []byte(d.entry.SubscribeBody) }

func (d *BybitDriver) ParseFrame(data []byte, receivedAtMs int64) ([]trade.Trade, error) {
	var frame bybitPublicTrade
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("bybit: malformed frame: %w", err)
	}

	if frame.Op != "" || frame.Topic == "" {
		return nil, nil // subscribe ack / ping-pong / admin frame
	}
	if frame.Topic != d.entry.StreamName {
		return nil, nil
	}

	trades := make([]trade.Trade, 0, len(frame.Data))
	for _, row := range frame.Data {
		if row.S != d.entry.Symbol {
			continue
		}
		price, qty, err := parseFloats(row.P, row.V)
		if err != nil {
			continue
		}

		side := trade.Buy
		if row.Side == "Sell" {
			side = trade.Sell
		}

		trades = append(trades, trade.Trade{
			Timestamp:      row.T,
			LocalTimestamp: receivedAtMs,
			Price:          price,
			Quantity:       qty,
			TakerSide:      side,
			Venue:          trade.VenueBybit,
			Asset:          d.entry.Asset,
			MarketType:     d.entry.MarketType,
		})
	}

	return trades, nil
}
