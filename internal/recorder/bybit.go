package recorder

import (
	"context"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/lobsim/internal/domain"
)

// orderbookDepth is the number of levels requested per side.
const orderbookDepth = 50

// BybitFetcher fetches order book snapshots from Bybit spot market.
type BybitFetcher struct {
	client *bybit.Client
	symbol string
}

// NewBybitFetcher creates a fetcher for the given symbol, e.g. "BTCUSDT".
func NewBybitFetcher(client *bybit.Client, symbol string) *BybitFetcher {
	return &BybitFetcher{client: client, symbol: symbol}
}

// Fetch retrieves one snapshot.
func (f *BybitFetcher) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	limit := orderbookDepth
	param := bybit.V5GetOrderbookParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(f.symbol),
		Limit:    &limit,
	}

	result, err := f.client.V5().Market().GetOrderbook(param)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch orderbook from Bybit for %s", f.symbol)
	}
	if result == nil {
		return nil, errors.Errorf("empty result from Bybit API for %s", f.symbol)
	}

	return snapshotFromBybitOrderbook(f.symbol, result.Result, time.Now().UnixMilli())
}

func snapshotFromBybitOrderbook(symbol string, res bybit.V5GetOrderbookResult, fetchTime int64) (*domain.Snapshot, error) {
	bids, err := convertBybitLevels(res.Bids)
	if err != nil {
		return nil, errors.Wrap(err, "parse bids")
	}
	asks, err := convertBybitLevels(res.Asks)
	if err != nil {
		return nil, errors.Wrap(err, "parse asks")
	}

	return &domain.Snapshot{
		Symbol:    symbol,
		Timestamp: res.Timestamp,
		FetchTime: fetchTime,
		UpdateID:  int64(res.UpdateID),
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func convertBybitLevels(items bybit.V5GetOrderbookBidAsks) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, len(items))
	for i, item := range items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse price at level %d", i)
		}
		qty, err := decimal.NewFromString(item.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse quantity at level %d", i)
		}
		levels[i] = domain.PriceLevel{Price: price, Quantity: qty}
	}
	return levels, nil
}
