// Package strategy defines the decision unit replayed by the backtest
// driver, and the reference market-maker implementation.
package strategy

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/domain"
)

// AccountView is the read-only window a strategy gets into the account.
// Strategies never mutate the ledger directly.
type AccountView interface {
	Cash() decimal.Decimal
	Position() decimal.Decimal
	AvgEntryPrice() decimal.Decimal
	Equity() decimal.Decimal
	Frozen() bool
}

// Strategy emits order intents per tick and tracks only its own private
// scratch state. Decide must not perform blocking I/O; the driver calls it
// once per snapshot, then reports every outcome through OnOutcome.
type Strategy interface {
	// Name identifies the strategy variant.
	Name() string
	// Decide returns zero or more intents for the snapshot, in the order
	// they should be executed.
	Decide(snap *domain.Snapshot, acct AccountView) []domain.OrderIntent
	// OnOutcome notifies the strategy of the result of one of its intents,
	// including fills of resting orders placed on earlier ticks.
	OnOutcome(orderID string, out domain.Outcome)
	// Reset clears scratch state so the instance can be reused for a new run.
	Reset()
}

// New selects a strategy variant by name.
func New(name, symbol string, cfg config.StrategyConfig, lg *zap.Logger) (Strategy, error) {
	switch name {
	case "marketmaker":
		return NewMarketMaker(symbol, cfg.MarketMaker, lg)
	default:
		return nil, errors.Errorf("unknown strategy %q", name)
	}
}
