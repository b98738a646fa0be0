package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sawpanic/compositefeed/internal/ratelimit"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// krakenRestSymbols maps the tracked assets to Kraken's REST-only
// symbol spelling, distinct from the WS pair in the catalog (e.g.
// "XBT/USD" on the socket vs "XXBTZUSD" on /0/public/Trades).
var krakenRestSymbols = map[trade.Asset]string{
	"BTC": "XXBTZUSD",
	"ETH": "XETHZUSD",
}

type krakenTradesResponse struct {
	Error  []string                     `json:"error"`
	Result map[string]json.RawMessage   `json:"result"`
}

// KrakenFetcher implements VenueFetcher via Kraken's /0/public/Trades
// endpoint, per spec.md §4.6: cursor by nanosecond `since`, stop when
// the returned `last` exceeds the window or a page is short. Perps are
// unsupported and always return an empty result, not an error.
type KrakenFetcher struct {
	limiter *ratelimit.Limiter
}

func NewKrakenFetcher() *KrakenFetcher {
	return &KrakenFetcher{limiter: ratelimit.New(300)}
}

func (f *KrakenFetcher) VenueID() trade.VenueID { return trade.VenueKraken }

func (f *KrakenFetcher) FetchTrades(ctx context.Context, asset trade.Asset, market trade.MarketType, startMs, endMs int64) ([]trade.Trade, error) {
	if market == trade.MarketPerp {
		return nil, nil
	}
	symbol, ok := krakenRestSymbols[asset]
	if !ok {
		return nil, &VenueFetcherError{Venue: trade.VenueKraken, Err: fmt.Errorf("unsupported asset %s", asset)}
	}

	endNanos := endMs * 1_000_000
	since := startMs * 1_000_000

	var out []trade.Trade

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueKraken, Err: err}
		}

		url := fmt.Sprintf("https://api.kraken.com/0/public/Trades?pair=%s&since=%d&count=1000", symbol, since)
		body, err := getJSON(ctx, url)
		if err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueKraken, Err: err}
		}

		var resp krakenTradesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueKraken, Err: err}
		}
		if len(resp.Error) > 0 {
			return nil, &VenueFetcherError{Venue: trade.VenueKraken, Err: fmt.Errorf("%v", resp.Error)}
		}

		var rows [][]any
		var lastStr string
		for key, raw := range resp.Result {
			if key == "last" {
				json.Unmarshal(raw, &lastStr)
				continue
			}
			json.Unmarshal(raw, &rows)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if len(row) < 4 {
				continue
			}
			priceStr, _ := row[0].(string)
			volStr, _ := row[1].(string)
			timeSec, _ := row[2].(float64)
			sideStr, _ := row[3].(string)

			price, perr := strconv.ParseFloat(priceStr, 64)
			qty, qerr := strconv.ParseFloat(volStr, 64)
			if perr != nil || qerr != nil {
				continue
			}

			tsMs := int64(timeSec * 1000)
			if tsMs < startMs || tsMs > endMs {
				continue
			}

			side := trade.Buy
			if sideStr == "s" {
				side = trade.Sell
			}

			out = append(out, trade.Trade{
				Timestamp: tsMs, Price: price, Quantity: qty, TakerSide: side,
				Venue: trade.VenueKraken, Asset: asset, MarketType: market,
			})
		}

		last, err := strconv.ParseInt(lastStr, 10, 64)
		if err != nil || last > endNanos || len(rows) < 1000 {
			break
		}
		since = last
	}

	return out, nil
}
