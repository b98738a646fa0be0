package venue

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// okxTradesFrame is the wire shape of an OKX `trades` channel push.
type okxTradesFrame struct {
	Event string `json:"event"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Px     string `json:"px"`
		Sz     string `json:"sz"`
		Side   string `json:"side"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

// OKXDriver parses OKX `trades` channel frames per spec.md §4.3.
type OKXDriver struct {
	entry catalog.Entry
}

func NewOKXDriver(entry catalog.Entry) *OKXDriver { return &OKXDriver{entry: entry} }

func (d *OKXDriver) VenueID() trade.VenueID       { return trade.VenueOKX }
func (d *OKXDriver) Asset() trade.Asset           { return d.entry.Asset }
func (d *OKXDriver) MarketType() trade.MarketType { return d.entry.MarketType }
func (d *OKXDriver) Endpoint() string             { return d.entry.WSEndpoint }
func (d *OKXDriver) SubscribeMessage() []byte     { return []byte(d.entry.SubscribeBody) }

func (d *OKXDriver) ParseFrame(data []byte, receivedAtMs int64) ([]trade.Trade, error) {
	var frame okxTradesFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("okx: malformed frame: %w", err)
	}

	if frame.Event != "" {
		return nil, nil // subscribe ack / error frame, administrative
	}
	if frame.Arg.Channel != "trades" || frame.Arg.InstID != d.entry.Symbol {
		return nil, nil
	}

	trades := make([]trade.Trade, 0, len(frame.Data))
	for _, row := range frame.Data {
		if row.InstID != d.entry.Symbol {
			continue
		}
		price, qty, err := parseFloats(row.Px, row.Sz)
		if err != nil {
			continue
		}
		tsMs, err := strconv.ParseInt(row.Ts, 10, 64)
		if err != nil {
			continue
		}

		side := trade.Buy
		if row.Side == "sell" {
			side = trade.Sell
		}

		trades = append(trades, trade.Trade{
			Timestamp:      tsMs,
			LocalTimestamp: receivedAtMs,
			Price:          price,
			Quantity:       qty,
			TakerSide:      side,
			Venue:          trade.VenueOKX,
			Asset:          d.entry.Asset,
			MarketType:     d.entry.MarketType,
		})
	}

	return trades, nil
}
