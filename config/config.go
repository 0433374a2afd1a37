// Package config holds run-wide configuration for backtests and the
// snapshot recorder, loaded from YAML or command-line flags.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidConfig wraps every construction-time validation failure. A run
// never starts with an invalid config.
var ErrInvalidConfig = errors.New("invalid config")

// DataErrorPolicy controls how the driver reacts to malformed snapshots.
type DataErrorPolicy string

const (
	// DataErrorSkip logs the tick and carries state forward unchanged.
	DataErrorSkip DataErrorPolicy = "skip"
	// DataErrorAbort aborts the run.
	DataErrorAbort DataErrorPolicy = "abort"
)

// FeeSchedule holds fee rates as fractions of the traded notional.
type FeeSchedule struct {
	// MakerRate fee fraction for passive (resting) fills.
	MakerRate decimal.Decimal `yaml:"maker_rate"`
	// TakerRate fee fraction for aggressive fills.
	TakerRate decimal.Decimal `yaml:"taker_rate"`
}

// BacktestConfig holds the friction and policy parameters of a single run.
// It is immutable for the run's duration.
type BacktestConfig struct {
	// FillRate probability a resting or marketable intent executes on a
	// given evaluation, in [0,1].
	FillRate float64 `yaml:"fill_rate"`
	// SlippageBps adverse price deviation applied to marketable fills,
	// in basis points.
	SlippageBps decimal.Decimal `yaml:"slippage_bps"`
	// RejectionRate probability an otherwise-eligible intent is discarded,
	// in [0,1].
	RejectionRate float64 `yaml:"rejection_rate"`
	// MarginRate maximum fraction of equity committable as exposure, (0,1].
	MarginRate decimal.Decimal `yaml:"margin_rate"`
	// MinSpreadPct minimum snapshot spread (fraction of mid) required to
	// admit new intents.
	MinSpreadPct decimal.Decimal `yaml:"min_spread_pct"`
	// CrossTolerancePct crossed-book tolerance as a fraction of mid before
	// a snapshot counts as malformed.
	CrossTolerancePct decimal.Decimal `yaml:"cross_tolerance_pct"`
	// Fees maker/taker fee schedule.
	Fees FeeSchedule `yaml:"fees"`
	// InitialCash starting quote balance of the simulated account.
	InitialCash decimal.Decimal `yaml:"initial_cash"`
	// Seed RNG seed; identical seeds reproduce runs byte-for-byte.
	Seed int64 `yaml:"seed"`
	// AnnualizationFactor multiplier under the square root in the Sharpe
	// ratio, e.g. 252 for daily-equivalent ticks.
	AnnualizationFactor float64 `yaml:"annualization_factor"`
	// OnDataError skip or abort on malformed snapshots.
	OnDataError DataErrorPolicy `yaml:"on_data_error"`
}

// DefaultBacktestConfig returns the friction defaults used when a field is
// left unset.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		FillRate:            0.95,
		SlippageBps:         decimal.NewFromFloat(0.5),
		RejectionRate:       0.02,
		MarginRate:          decimal.NewFromFloat(0.5),
		MinSpreadPct:        decimal.Zero,
		CrossTolerancePct:   decimal.NewFromFloat(0.001),
		Fees:                FeeSchedule{MakerRate: decimal.NewFromFloat(0.0001), TakerRate: decimal.NewFromFloat(0.0005)},
		InitialCash:         decimal.NewFromInt(10000),
		Seed:                1,
		AnnualizationFactor: 252,
		OnDataError:         DataErrorSkip,
	}
}

// Validate fails fast on out-of-range parameters, before any snapshot is
// consumed.
func (c BacktestConfig) Validate() error {
	if c.FillRate < 0 || c.FillRate > 1 {
		return errors.Wrapf(ErrInvalidConfig, "fill_rate must be in [0,1], got %v", c.FillRate)
	}
	if c.RejectionRate < 0 || c.RejectionRate > 1 {
		return errors.Wrapf(ErrInvalidConfig, "rejection_rate must be in [0,1], got %v", c.RejectionRate)
	}
	if c.MarginRate.LessThanOrEqual(decimal.Zero) || c.MarginRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.Wrapf(ErrInvalidConfig, "margin_rate must be in (0,1], got %s", c.MarginRate.String())
	}
	if c.SlippageBps.IsNegative() {
		return errors.Wrapf(ErrInvalidConfig, "slippage_bps must be non-negative, got %s", c.SlippageBps.String())
	}
	if c.MinSpreadPct.IsNegative() {
		return errors.Wrapf(ErrInvalidConfig, "min_spread_pct must be non-negative, got %s", c.MinSpreadPct.String())
	}
	if c.CrossTolerancePct.IsNegative() {
		return errors.Wrapf(ErrInvalidConfig, "cross_tolerance_pct must be non-negative, got %s", c.CrossTolerancePct.String())
	}
	if c.Fees.MakerRate.IsNegative() || c.Fees.TakerRate.IsNegative() {
		return errors.Wrap(ErrInvalidConfig, "fee rates must be non-negative")
	}
	if c.InitialCash.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInvalidConfig, "initial_cash must be positive, got %s", c.InitialCash.String())
	}
	if c.AnnualizationFactor <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "annualization_factor must be positive, got %v", c.AnnualizationFactor)
	}
	switch c.OnDataError {
	case DataErrorSkip, DataErrorAbort, "":
	default:
		return errors.Wrapf(ErrInvalidConfig, "on_data_error must be %q or %q, got %q", DataErrorSkip, DataErrorAbort, c.OnDataError)
	}

	return nil
}

// MarketMakerConfig parametrizes the reference market-maker strategy.
type MarketMakerConfig struct {
	// OrderSize fixed base quantity per quote.
	OrderSize decimal.Decimal `yaml:"order_size"`
	// SpreadPercent full quoted spread around mid as a fraction, e.g. 0.001.
	SpreadPercent decimal.Decimal `yaml:"spread_percent"`
	// TakeProfitBps exit offset above (long) or below (short) the entry
	// price, in basis points. Zero disables the take-profit exit.
	TakeProfitBps decimal.Decimal `yaml:"take_profit_bps"`
	// StopLossBps exit offset on the losing side of the entry price, in
	// basis points. Zero disables the stop-loss exit.
	StopLossBps decimal.Decimal `yaml:"stop_loss_bps"`
	// MaxInventory absolute position size above which quoting pauses.
	MaxInventory decimal.Decimal `yaml:"max_inventory"`
	// QuoteTTL how long a quote may rest before expiring. Zero means no
	// expiry.
	QuoteTTL time.Duration `yaml:"quote_ttl"`
	// VolatilityWindow rolling window (ticks) for the volatility gate.
	// Zero disables the gate.
	VolatilityWindow int `yaml:"volatility_window"`
	// MaxVolatility per-tick return stddev above which quoting pauses.
	MaxVolatility float64 `yaml:"max_volatility"`
	// VolatilityCooldown pause duration after a volatility spike.
	VolatilityCooldown time.Duration `yaml:"volatility_cooldown"`
	// MomentumWindow rolling window (ticks) for the momentum gate. Zero
	// disables the gate.
	MomentumWindow int `yaml:"momentum_window"`
	// MomentumThreshold absolute window return above which quoting pauses.
	MomentumThreshold float64 `yaml:"momentum_threshold"`
	// MomentumCooldown pause duration after a momentum burst.
	MomentumCooldown time.Duration `yaml:"momentum_cooldown"`
	// TrendWindow EMA period (ticks) for the trend gate: quoting pauses
	// while the mark price drifts away from its EMA. Zero disables the
	// gate.
	TrendWindow int `yaml:"trend_window"`
	// TrendThreshold absolute fractional distance between price and its
	// EMA above which quoting pauses.
	TrendThreshold float64 `yaml:"trend_threshold"`
}

// DefaultMarketMakerConfig returns the reference market-maker defaults.
func DefaultMarketMakerConfig() MarketMakerConfig {
	return MarketMakerConfig{
		OrderSize:          decimal.NewFromFloat(0.005),
		SpreadPercent:      decimal.NewFromFloat(0.001),
		TakeProfitBps:      decimal.NewFromInt(20),
		StopLossBps:        decimal.NewFromInt(50),
		MaxInventory:       decimal.NewFromInt(10),
		QuoteTTL:           5 * time.Minute,
		VolatilityWindow:   30,
		MaxVolatility:      0.000005,
		VolatilityCooldown: 5 * time.Second,
		MomentumWindow:     10,
		MomentumThreshold:  0.0015,
		MomentumCooldown:   3 * time.Second,
		TrendWindow:        20,
		TrendThreshold:     0.002,
	}
}

// Validate checks strategy parameters.
func (c MarketMakerConfig) Validate() error {
	if c.OrderSize.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInvalidConfig, "order_size must be positive, got %s", c.OrderSize.String())
	}
	if c.SpreadPercent.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInvalidConfig, "spread_percent must be positive, got %s", c.SpreadPercent.String())
	}
	if c.TakeProfitBps.IsNegative() || c.StopLossBps.IsNegative() {
		return errors.Wrap(ErrInvalidConfig, "take_profit_bps and stop_loss_bps must be non-negative")
	}
	if c.MaxInventory.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInvalidConfig, "max_inventory must be positive, got %s", c.MaxInventory.String())
	}
	return nil
}

// StrategyConfig selects and parametrizes the strategy for a run.
type StrategyConfig struct {
	// Name strategy variant, currently "marketmaker".
	Name string `yaml:"name"`
	// MarketMaker parameters for the market-maker variant.
	MarketMaker MarketMakerConfig `yaml:"marketmaker"`
}

// AppConfig is the full configuration of one backtest invocation.
type AppConfig struct {
	// Symbol trading symbol the run simulates.
	Symbol string `yaml:"symbol"`
	// DataFile path to the JSONL snapshot file to replay.
	DataFile string `yaml:"data_file"`
	// JournalDir optional WAL directory for the fill journal. Empty
	// disables journaling.
	JournalDir string `yaml:"journal_dir"`
	// Backtest friction and policy parameters.
	Backtest BacktestConfig `yaml:"backtest"`
	// Strategy strategy selection and parameters.
	Strategy StrategyConfig `yaml:"strategy"`
}

// Validate checks the whole configuration tree.
func (c AppConfig) Validate() error {
	if c.Symbol == "" {
		return errors.Wrap(ErrInvalidConfig, "symbol is required")
	}
	if c.DataFile == "" {
		return errors.Wrap(ErrInvalidConfig, "data_file is required")
	}
	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	switch c.Strategy.Name {
	case "marketmaker":
		return c.Strategy.MarketMaker.Validate()
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown strategy %q", c.Strategy.Name)
	}
}
