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

const binancePageLimit = 1000

type binanceAggTrade struct {
	AggID int64  `json:"a"`
	Price string `json:"p"`
	Qty   string `json:"q"`
	Time  int64  `json:"T"`
	Maker bool   `json:"m"`
}

// BinanceFetcher implements VenueFetcher via Binance's aggTrades REST
// endpoint (spot and perp), per spec.md §4.6: paginate by
// fromId = last.aggId + 1, stop on a short page or once the cursor
// passes endTime.
type BinanceFetcher struct {
	catalog *catalog.Catalog
	limiter *ratelimit.Limiter
}

// NewBinanceFetcher constructs a fetcher paced at 200ms between pages.
func NewBinanceFetcher(cat *catalog.Catalog) *BinanceFetcher {
	return &BinanceFetcher{catalog: cat, limiter: ratelimit.New(200)}
}

func (f *BinanceFetcher) VenueID() trade.VenueID { return trade.VenueBinance }

func (f *BinanceFetcher) FetchTrades(ctx context.Context, asset trade.Asset, market trade.MarketType, startMs, endMs int64) ([]trade.Trade, error) {
	entry, err := f.catalog.Lookup(trade.VenueBinance, asset, market)
	if err != nil {
		return nil, &VenueFetcherError{Venue: trade.VenueBinance, Err: err}
	}

	base := "https://api.binance.com/api/v3/aggTrades"
	if market == trade.MarketPerp {
		base = "https://fapi.binance.com/fapi/v1/aggTrades"
	}

	var out []trade.Trade
	fromID := int64(-1)

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueBinance, Err: err}
		}

		var url string
		if fromID < 0 {
			url = fmt.Sprintf("%s?symbol=%s&startTime=%d&endTime=%d&limit=%d", base, entry.Symbol, startMs, endMs, binancePageLimit)
		} else {
			url = fmt.Sprintf("%s?symbol=%s&fromId=%d&limit=%d", base, entry.Symbol, fromID, binancePageLimit)
		}

		body, err := getJSON(ctx, url)
		if err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueBinance, Err: err}
		}

		var page []binanceAggTrade
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &VenueFetcherError{Venue: trade.VenueBinance, Err: err}
		}
		if len(page) == 0 {
			break
		}

		for _, row := range page {
			if row.Time < startMs || row.Time > endMs {
				continue
			}
			price, perr := strconv.ParseFloat(row.Price, 64)
			qty, qerr := strconv.ParseFloat(row.Qty, 64)
			if perr != nil || qerr != nil {
				continue
			}
			side := trade.Buy
			if row.Maker {
				side = trade.Sell
			}
			out = append(out, trade.Trade{
				Timestamp: row.Time, Price: price, Quantity: qty, TakerSide: side,
				Venue: trade.VenueBinance, Asset: asset, MarketType: market,
			})
		}

		last := page[len(page)-1]
		if last.Time >= endMs || len(page) < binancePageLimit {
			break
		}
		fromID = last.AggID + 1
	}

	return out, nil
}
