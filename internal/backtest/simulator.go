// Package backtest contains the execution simulator, the metrics collector
// and the tick-loop driver that replays order book snapshots through a
// strategy.
package backtest

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/domain"
)

var bpsDivisor = decimal.NewFromInt(10000)

// ExecutionStats counts simulator decisions for a run.
type ExecutionStats struct {
	TotalIntents  int
	Filled        int
	Rejected      int
	Resting       int
	Expired       int
	TotalSlippage decimal.Decimal
}

// Simulator applies order intents against snapshots under the configured
// friction model. Given identical inputs and RNG stream position it is
// deterministic: the rejection draw always precedes the fill draw and no
// other code consumes the run's RNG.
type Simulator struct {
	cfg   config.BacktestConfig
	rng   *rand.Rand
	lg    *zap.Logger
	stats ExecutionStats
}

// NewSimulator creates a simulator bound to the run's RNG stream.
func NewSimulator(cfg config.BacktestConfig, rng *rand.Rand, lg *zap.Logger) *Simulator {
	return &Simulator{cfg: cfg, rng: rng, lg: lg, stats: ExecutionStats{TotalSlippage: decimal.Zero}}
}

// Stats returns the execution counters accumulated so far.
func (s *Simulator) Stats() ExecutionStats {
	return s.stats
}

// Execute simulates one new intent against the snapshot. Checks run in a
// fixed order and each failure is terminal: spread gate (no randomness
// consumed), rejection draw, margin pre-check, price resolution, fill draw.
// Fills are folded into the account before returning.
func (s *Simulator) Execute(intent domain.OrderIntent, snap *domain.Snapshot, acct *domain.AccountState) (domain.Outcome, domain.FillResult, error) {
	s.stats.TotalIntents++

	if acct.Frozen() {
		s.stats.Rejected++
		return domain.RejectedOutcome(intent.ID, domain.RejectAccountFrozen), domain.FillResult{}, nil
	}

	bid, okBid := snap.BestBid()
	ask, okAsk := snap.BestAsk()
	if !okBid || !okAsk {
		return domain.Outcome{}, domain.FillResult{}, domain.NewDataError("snapshot %s@%d: cannot execute against one-sided book", snap.Symbol, snap.Timestamp)
	}

	// 1. spread gate, terminal before any randomness
	if snap.SpreadPct().LessThan(s.cfg.MinSpreadPct) {
		s.stats.Rejected++
		return domain.RejectedOutcome(intent.ID, domain.RejectSpreadTooTight), domain.FillResult{}, nil
	}

	// 2. rejection draw
	if s.rng.Float64() < s.cfg.RejectionRate {
		s.stats.Rejected++
		return domain.RejectedOutcome(intent.ID, domain.RejectRandom), domain.FillResult{}, nil
	}

	// 3. margin pre-check against a hypothetical full fill
	refPrice := s.aggressivePrice(intent.Side, bid.Price, ask.Price)
	if !intent.Marketable {
		refPrice = intent.LimitPrice
	}
	if !s.marginAllows(acct, intent.Side, intent.Quantity, refPrice) {
		s.stats.Rejected++
		return domain.RejectedOutcome(intent.ID, domain.RejectInsufficientMargin), domain.FillResult{}, nil
	}

	// 4. price resolution
	var fillPrice decimal.Decimal
	var taker bool
	switch {
	case intent.Marketable:
		fillPrice = s.aggressivePrice(intent.Side, bid.Price, ask.Price)
		taker = true

	default:
		adjusted := s.aggressivePrice(intent.Side, bid.Price, ask.Price)
		if marketable(intent.Side, adjusted, intent.LimitPrice) {
			fillPrice = adjusted
			taker = true
		} else if intent.TIF == domain.TimeInForceGTC {
			acct.AddResting(intent, snap.Timestamp)
			s.stats.Resting++
			return domain.PendingOutcome(intent.ID), domain.FillResult{}, nil
		} else {
			s.stats.Rejected++
			return domain.RejectedOutcome(intent.ID, domain.RejectNotMarketable), domain.FillResult{}, nil
		}
	}

	// 5. fill draw
	if s.rng.Float64() >= s.cfg.FillRate {
		if intent.TIF == domain.TimeInForceGTC {
			acct.AddResting(intent, snap.Timestamp)
			s.stats.Resting++
			return domain.PendingOutcome(intent.ID), domain.FillResult{}, nil
		}
		s.stats.Rejected++
		return domain.RejectedOutcome(intent.ID, domain.RejectNoFill), domain.FillResult{}, nil
	}

	return s.fill(intent, fillPrice, taker, bid.Price, ask.Price, acct)
}

// EvaluateResting re-evaluates one resting order against a new snapshot.
// Resting orders fill passively at their limit price with probability
// fill_rate (no slippage, maker fee); at most one random draw is consumed,
// and none when the order expires or fails the margin check.
func (s *Simulator) EvaluateResting(ro *domain.RestingOrder, snap *domain.Snapshot, acct *domain.AccountState) (domain.Outcome, domain.FillResult, error) {
	intent := ro.Intent

	if ro.Expired(snap.Timestamp) {
		acct.SettleResting(intent.ID, domain.OrderExpired)
		s.stats.Expired++
		return domain.Outcome{OrderID: intent.ID, Kind: domain.OutcomeExpired}, domain.FillResult{}, nil
	}

	if !s.marginAllows(acct, intent.Side, intent.Quantity, intent.LimitPrice) {
		acct.SettleResting(intent.ID, domain.OrderRejected)
		s.stats.Rejected++
		return domain.RejectedOutcome(intent.ID, domain.RejectInsufficientMargin), domain.FillResult{}, nil
	}

	if s.rng.Float64() >= s.cfg.FillRate {
		return domain.PendingOutcome(intent.ID), domain.FillResult{}, nil
	}

	acct.SettleResting(intent.ID, domain.OrderFilled)
	fee := intent.Quantity.Mul(intent.LimitPrice).Mul(s.cfg.Fees.MakerRate)
	res, err := acct.ApplyFill(intent.Side, intent.Quantity, intent.LimitPrice, fee)
	if err != nil {
		return domain.Outcome{}, domain.FillResult{}, errors.Wrap(err, "apply resting fill")
	}
	s.stats.Filled++

	return domain.FilledOutcome(intent.ID, intent.LimitPrice, intent.Quantity, fee), res, nil
}

// Liquidate force-closes the whole position at the current best opposite
// price, ignoring fill_rate and slippage, and freezes the account. All
// resting orders are cancelled; their ids are returned for notification.
func (s *Simulator) Liquidate(snap *domain.Snapshot, acct *domain.AccountState) (domain.Outcome, domain.FillResult, []string, error) {
	pos := acct.Position()
	if pos.IsZero() {
		acct.Freeze()
		return domain.Outcome{}, domain.FillResult{}, acct.CancelAllResting(), nil
	}

	side := domain.SideSell
	price := decimal.Zero
	if pos.IsPositive() {
		bid, ok := snap.BestBid()
		if !ok {
			return domain.Outcome{}, domain.FillResult{}, nil, domain.NewDataError("liquidation with empty bid side")
		}
		price = bid.Price
	} else {
		side = domain.SideBuy
		ask, ok := snap.BestAsk()
		if !ok {
			return domain.Outcome{}, domain.FillResult{}, nil, domain.NewDataError("liquidation with empty ask side")
		}
		price = ask.Price
	}

	qty := pos.Abs()
	fee := qty.Mul(price).Mul(s.cfg.Fees.TakerRate)
	res, err := acct.ApplyFill(side, qty, price, fee)
	if err != nil {
		return domain.Outcome{}, domain.FillResult{}, nil, errors.Wrap(err, "apply liquidation fill")
	}
	s.stats.Filled++

	cancelled := acct.CancelAllResting()
	acct.Freeze()
	acct.MarkToMarket(snap.Mid())

	s.lg.Warn("forced liquidation",
		zap.String("side", side.String()),
		zap.String("quantity", qty.String()),
		zap.String("price", price.String()),
		zap.String("equity", acct.Equity().String()))

	out := domain.FilledOutcome("liquidation", price, qty, fee)
	out.Liquidation = true
	return out, res, cancelled, nil
}

func (s *Simulator) fill(intent domain.OrderIntent, price decimal.Decimal, taker bool, bid, ask decimal.Decimal, acct *domain.AccountState) (domain.Outcome, domain.FillResult, error) {
	feeRate := s.cfg.Fees.MakerRate
	if taker {
		feeRate = s.cfg.Fees.TakerRate
	}
	fee := intent.Quantity.Mul(price).Mul(feeRate)

	res, err := acct.ApplyFill(intent.Side, intent.Quantity, price, fee)
	if err != nil {
		return domain.Outcome{}, domain.FillResult{}, errors.Wrap(err, "apply fill")
	}
	s.stats.Filled++

	if taker {
		quoted := ask
		if intent.Side == domain.SideSell {
			quoted = bid
		}
		s.stats.TotalSlippage = s.stats.TotalSlippage.Add(price.Sub(quoted).Abs())
	}

	return domain.FilledOutcome(intent.ID, price, intent.Quantity, fee), res, nil
}

// aggressivePrice is the opposite-side best price adjusted by slippage
// against the trader: buys pay more, sells receive less.
func (s *Simulator) aggressivePrice(side domain.Side, bid, ask decimal.Decimal) decimal.Decimal {
	slip := s.cfg.SlippageBps.Div(bpsDivisor)
	if side == domain.SideBuy {
		return ask.Mul(decimal.NewFromInt(1).Add(slip))
	}
	return bid.Mul(decimal.NewFromInt(1).Sub(slip))
}

// marginAllows checks the exposure after a hypothetical full fill against
// margin_rate * equity. There is no partial admission.
func (s *Simulator) marginAllows(acct *domain.AccountState, side domain.Side, qty, price decimal.Decimal) bool {
	newPos := acct.Position().Add(side.Sign().Mul(qty))
	exposure := newPos.Abs().Mul(price)
	return exposure.LessThanOrEqual(s.cfg.MarginRate.Mul(acct.Equity()))
}

func marketable(side domain.Side, adjusted, limit decimal.Decimal) bool {
	if side == domain.SideBuy {
		return adjusted.LessThanOrEqual(limit)
	}
	return adjusted.GreaterThanOrEqual(limit)
}
