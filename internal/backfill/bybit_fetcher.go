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

type bybitRecentTradeResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol string `json:"symbol"`
			Price  string `json:"price"`
			Size   string `json:"size"`
			Side   string `json:"side"`
			Time   string `json:"time"`
		} `json:"list"`
	} `json:"result"`
}

// BybitFetcher implements VenueFetcher via Bybit's recent-trade
// endpoint, per spec.md §4.6: recent-only, a single page of up to 1000
// trades filtered client-side to the requested window. Only perp is
// supported; spot callers get ErrBackfillUnsupported.
type BybitFetcher struct {
	catalog *catalog.Catalog
	limiter *ratelimit.Limiter
}

func NewBybitFetcher(cat *catalog.Catalog) *BybitFetcher {
	return &BybitFetcher{catalog: cat, limiter: ratelimit.New(200)}
}

func (f *BybitFetcher) VenueID() trade.VenueID { return trade.VenueBybit }

func (f *BybitFetcher) FetchTrades(ctx context.Context, asset trade.Asset, market trade.MarketType, startMs, endMs int64) ([]trade.Trade, error) {
	if market != trade.MarketPerp {
		return nil, &VenueFetcherError{Venue: trade.VenueBybit, Err: ErrBackfillUnsupported}
	}
	entry, err := f.catalog.Lookup(trade.VenueBybit, asset, market)
	if err != nil {
		return nil, &VenueFetcherError{Venue: trade.VenueBybit, Err: err}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &VenueFetcherError{Venue: trade.VenueBybit, Err: err}
	}

	url := fmt.Sprintf("https://api.bybit.com/v5/market/recent-trade?category=linear&symbol=%s&limit=1000", entry.Symbol)
	body, err := getJSON(ctx, url)
	if err != nil {
		return nil, &VenueFetcherError{Venue: trade.VenueBybit, Err: err}
	}

	var resp bybitRecentTradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &VenueFetcherError{Venue: trade.VenueBybit, Err: err}
	}
	if resp.RetCode != 0 {
		return nil, &VenueFetcherError{Venue: trade.VenueBybit, Err: fmt.Errorf("%s", resp.RetMsg)}
	}

	var out []trade.Trade
	for _, row := range resp.Result.List {
		ts, err := strconv.ParseInt(row.Time, 10, 64)
		if err != nil || ts < startMs || ts > endMs {
			continue
		}
		price, perr := strconv.ParseFloat(row.Price, 64)
		qty, qerr := strconv.ParseFloat(row.Size, 64)
		if perr != nil || qerr != nil {
			continue
		}
		side := trade.Buy
		if row.Side == "Sell" {
			side = trade.Sell
		}
		out = append(out, trade.Trade{
			Timestamp: ts, Price: price, Quantity: qty, TakerSide: side,
			Venue: trade.VenueBybit, Asset: asset, MarketType: market,
		})
	}

	return out, nil
}
