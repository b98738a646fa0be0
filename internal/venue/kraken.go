package venue

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// KrakenDriver parses Kraken's array-framed trade channel per spec.md
// §4.3: [channelID, [[price, vol, time, side, orderType, misc], ...],
// channelName, pair].
type KrakenDriver struct {
	entry catalog.Entry
}

func NewKrakenDriver(entry catalog.Entry) *KrakenDriver { return &KrakenDriver{entry: entry} }

func (d *KrakenDriver) VenueID() trade.VenueID       { return trade.VenueKraken }
func (d *KrakenDriver) Asset() trade.Asset           { return d.entry.Asset }
func (d *KrakenDriver) MarketType() trade.MarketType { return d.entry.MarketType }
func (d *KrakenDriver) Endpoint() string             { return d.entry.WSEndpoint }
func (d *KrakenDriver) SubscribeMessage() []byte     { return []byte(d.entry.SubscribeBody) }

func (d *KrakenDriver) ParseFrame(data []byte, receivedAtMs int64) ([]trade.Trade, error) {
	// Event-object frames (subscriptionStatus, heartbeat, systemStatus)
	// start with '{' — administrative, discarded.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		return nil, nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("kraken: malformed frame: %w", err)
	}
	if len(arr) < 4 {
		return nil, nil
	}

	var channelName, pair string
	if err := json.Unmarshal(arr[len(arr)-2], &channelName); err != nil {
		return nil, fmt.Errorf("kraken: malformed channel name: %w", err)
	}
	if err := json.Unmarshal(arr[len(arr)-1], &pair); err != nil {
		return nil, fmt.Errorf("kraken: malformed pair: %w", err)
	}
	if channelName != "trade" || pair != d.entry.Symbol {
		return nil, nil
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(arr[1], &rows); err != nil {
		return nil, fmt.Errorf("kraken: malformed trade rows: %w", err)
	}

	trades := make([]trade.Trade, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		var priceStr, volStr, timeStr, sideStr string
		if err := json.Unmarshal(row[0], &priceStr); err != nil {
			continue
		}
		if err := json.Unmarshal(row[1], &volStr); err != nil {
			continue
		}
		if err := json.Unmarshal(row[2], &timeStr); err != nil {
			continue
		}
		if err := json.Unmarshal(row[3], &sideStr); err != nil {
			continue
		}

		price, qty, err := parseFloats(priceStr, volStr)
		if err != nil {
			continue
		}
		timeSec, err := strconv.ParseFloat(timeStr, 64)
		if err != nil {
			continue
		}

		side := trade.Buy
		if sideStr == "s" {
			side = trade.Sell
		}

		trades = append(trades, trade.Trade{
			Timestamp:      int64(timeSec * 1000),
			LocalTimestamp: receivedAtMs,
			Price:          price,
			Quantity:       qty,
			TakerSide:      side,
			Venue:          trade.VenueKraken,
			Asset:          d.entry.Asset,
			MarketType:     d.entry.MarketType,
		})
	}

	return trades, nil
}
