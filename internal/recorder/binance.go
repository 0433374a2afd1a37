package recorder

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/lobsim/internal/domain"
)

// BinanceFetcher fetches order book snapshots from Binance spot market.
type BinanceFetcher struct {
	client *binance.Client
	symbol string
}

// NewBinanceFetcher creates a fetcher for the given symbol, e.g. "BTCUSDT".
func NewBinanceFetcher(client *binance.Client, symbol string) *BinanceFetcher {
	return &BinanceFetcher{client: client, symbol: symbol}
}

// Fetch retrieves one snapshot.
func (f *BinanceFetcher) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	res, err := f.client.NewDepthService().
		Symbol(f.symbol).
		Limit(orderbookDepth).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch depth from Binance for %s", f.symbol)
	}

	now := time.Now().UnixMilli()

	bids := make([]domain.PriceLevel, len(res.Bids))
	for i, b := range res.Bids {
		lvl, err := parseBinanceLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse bid at level %d", i)
		}
		bids[i] = lvl
	}

	asks := make([]domain.PriceLevel, len(res.Asks))
	for i, a := range res.Asks {
		lvl, err := parseBinanceLevel(a.Price, a.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse ask at level %d", i)
		}
		asks[i] = lvl
	}

	// Binance depth has no server timestamp, use fetch time for both.
	return &domain.Snapshot{
		Symbol:    f.symbol,
		Timestamp: now,
		FetchTime: now,
		UpdateID:  res.LastUpdateID,
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func parseBinanceLevel(priceStr, qtyStr string) (domain.PriceLevel, error) {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.PriceLevel{}, errors.Wrapf(err, "bad price %q", priceStr)
	}
	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		return domain.PriceLevel{}, errors.Wrapf(err, "bad quantity %q", qtyStr)
	}
	return domain.PriceLevel{Price: price, Quantity: qty}, nil
}
