package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sawpanic/compositefeed/internal/catalog"
	"github.com/sawpanic/compositefeed/internal/ratelimit"
	"github.com/sawpanic/compositefeed/internal/trade"
)

type okxHistoryTradesResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID  string `json:"instId"`
		TradeID string `json:"tradeId"`
		Px      string `json:"px"`
		Sz      string `json:"sz"`
		Side    string `json:"side"`
		Ts      string `json:"ts"`
	} `json:"data"`
}

// OKXFetcher implements VenueFetcher via OKX's history-trades REST
// endpoint, per spec.md §4.6: cursor by after=last.tradeId, newest
// page first, stop once the oldest trade in a page precedes the
// window start.
type OKXFetcher struct {
	catalog *catalog.Catalog
	limiter *ratelimit.Limiter
}

func NewOKXFetcher(cat *catalog.Catalog) *OKXFetcher {
	return &OKXFetcher{catalog: cat, limiter: ratelimit.New(200)}
}

func (f *OKXFetcher) VenueID() trade.VenueID { return trade.VenueOKX }

func (f *OKXFetcher) FetchTrades(ctx context.Context, asset trade.Asset, market trade.MarketType, startMs, endMs int64) ([]trade.Trade, error) {
	entry, err := f.catalog.Lookup(trade.VenueOKX, asset, market)
	if err != nil {
		return nil, &VenueFetcherError{Venue: trade.VenueOKX, Err: err}
	}

	var out []trade.Trade
	after := ""

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueOKX, Err: err}
		}

		url := fmt.Sprintf("https://www.okx.com/api/v5/market/history-trades?instId=%s&limit=100", entry.Symbol)
		if after != "" {
			url += "&after=" + after
		}

		body, err := getJSON(ctx, url)
		if err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueOKX, Err: err}
		}

		var resp okxHistoryTradesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueOKX, Err: err}
		}
		if resp.Code != "0" {
			return nil, &VenueFetcherError{Venue: trade.VenueOKX, Err: fmt.Errorf("%s", resp.Msg)}
		}
		if len(resp.Data) == 0 {
			break
		}

		pastWindowStart := false
		for _, row := range resp.Data {
			ts, err := strconv.ParseInt(row.Ts, 10, 64)
			if err != nil {
				continue
			}
			if ts < startMs {
				pastWindowStart = true
				continue
			}
			if ts > endMs {
				continue
			}
			price, perr := strconv.ParseFloat(row.Px, 64)
			qty, qerr := strconv.ParseFloat(row.Sz, 64)
			if perr != nil || qerr != nil {
				continue
			}
			side := trade.Buy
			if row.Side == "sell" {
				side = trade.Sell
			}
			out = append(out, trade.Trade{
				Timestamp: ts, Price: price, Quantity: qty, TakerSide: side,
				Venue: trade.VenueOKX, Asset: asset, MarketType: market,
			})
		}

		last := resp.Data[len(resp.Data)-1]
		after = last.TradeID
		if pastWindowStart || len(resp.Data) < 100 {
			break
		}
	}

	return out, nil
}
