package strategy

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/domain"
	"github.com/vadiminshakov/lobsim/pkg/indicators"
)

// Phase is the market maker's position in its trading cycle.
type Phase int

const (
	// PhaseFlat no position and no outstanding quotes.
	PhaseFlat Phase = iota
	// PhaseQuoting both quotes posted, waiting for fills.
	PhaseQuoting
	// PhasePositionOpen one side filled, holding inventory.
	PhasePositionOpen
	// PhaseTakeProfitPending exit intent emitted at the profit threshold.
	PhaseTakeProfitPending
	// PhaseStopLossPending exit intent emitted at the loss threshold.
	PhaseStopLossPending
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseFlat:
		return "flat"
	case PhaseQuoting:
		return "quoting"
	case PhasePositionOpen:
		return "position_open"
	case PhaseTakeProfitPending:
		return "take_profit_pending"
	case PhaseStopLossPending:
		return "stop_loss_pending"
	default:
		return "unknown"
	}
}

var (
	two = decimal.NewFromInt(2)
	bps = decimal.NewFromInt(10000)
)

// MarketMaker quotes both sides of the book at a fixed spread around mid
// with a fixed order size. Once a position is open, take-profit/stop-loss
// offsets from the entry price generate exit intents. Quoting pauses under
// high volatility, strong momentum or a price trending away from its EMA,
// and while inventory is at its cap.
type MarketMaker struct {
	symbol string
	cfg    config.MarketMakerConfig
	lg     *zap.Logger

	phase  Phase
	quotes map[string]domain.Side
	exitID string

	prices        []float64
	volPauseUntil int64
	momPauseUntil int64
}

// NewMarketMaker creates the reference market-maker strategy.
func NewMarketMaker(symbol string, cfg config.MarketMakerConfig, lg *zap.Logger) (*MarketMaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, errors.New("market maker requires a symbol")
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	return &MarketMaker{
		symbol: symbol,
		cfg:    cfg,
		lg:     lg,
		quotes: make(map[string]domain.Side),
	}, nil
}

// Name implements Strategy.
func (m *MarketMaker) Name() string {
	return "marketmaker"
}

// Phase returns the current cycle phase, for observability and tests.
func (m *MarketMaker) Phase() Phase {
	return m.phase
}

// Decide implements Strategy.
func (m *MarketMaker) Decide(snap *domain.Snapshot, acct AccountView) []domain.OrderIntent {
	if acct.Frozen() {
		return nil
	}
	if _, ok := snap.BestBid(); !ok {
		return nil
	}
	if _, ok := snap.BestAsk(); !ok {
		return nil
	}

	mid := snap.Mid()
	m.pushPrice(mid)

	pos := acct.Position()
	if !pos.IsZero() {
		if intent, ok := m.exitIntent(mid, pos, acct.AvgEntryPrice()); ok {
			return []domain.OrderIntent{intent}
		}
		if m.exitID != "" {
			// waiting for the exit to settle, do not stack quotes on top
			return nil
		}
		m.phase = PhasePositionOpen
		if pos.Abs().GreaterThanOrEqual(m.cfg.MaxInventory) {
			m.lg.Debug("inventory cap reached, quoting paused",
				zap.String("position", pos.String()))
			return nil
		}
	}

	if !m.marketCalm(snap.Timestamp) {
		return nil
	}

	if len(m.quotes) > 0 {
		return nil
	}

	return m.quote(snap, mid)
}

// OnOutcome implements Strategy.
func (m *MarketMaker) OnOutcome(orderID string, out domain.Outcome) {
	if orderID == m.exitID {
		switch out.Kind {
		case domain.OutcomeFilled:
			m.exitID = ""
			m.phase = PhaseFlat
		case domain.OutcomeRejected, domain.OutcomeExpired, domain.OutcomeCancelled:
			// retry on a later tick
			m.exitID = ""
			m.phase = PhasePositionOpen
		}
		return
	}

	if _, ok := m.quotes[orderID]; !ok {
		return
	}

	switch out.Kind {
	case domain.OutcomeFilled:
		delete(m.quotes, orderID)
		m.phase = PhasePositionOpen
	case domain.OutcomeRejected, domain.OutcomeExpired, domain.OutcomeCancelled:
		delete(m.quotes, orderID)
		if len(m.quotes) == 0 && m.phase == PhaseQuoting {
			m.phase = PhaseFlat
		}
	}
}

// Reset implements Strategy.
func (m *MarketMaker) Reset() {
	m.phase = PhaseFlat
	m.quotes = make(map[string]domain.Side)
	m.exitID = ""
	m.prices = nil
	m.volPauseUntil = 0
	m.momPauseUntil = 0
}

func (m *MarketMaker) quote(snap *domain.Snapshot, mid decimal.Decimal) []domain.OrderIntent {
	half := m.cfg.SpreadPercent.Div(two)
	one := decimal.NewFromInt(1)
	buyPrice := mid.Mul(one.Sub(half))
	sellPrice := mid.Mul(one.Add(half))

	buy, err := domain.NewLimitIntent(m.symbol, domain.SideBuy, m.cfg.OrderSize, buyPrice, domain.TimeInForceGTC)
	if err != nil {
		m.lg.Error("build buy quote", zap.Error(err))
		return nil
	}
	sell, err := domain.NewLimitIntent(m.symbol, domain.SideSell, m.cfg.OrderSize, sellPrice, domain.TimeInForceGTC)
	if err != nil {
		m.lg.Error("build sell quote", zap.Error(err))
		return nil
	}

	if m.cfg.QuoteTTL > 0 {
		expiry := snap.Timestamp + m.cfg.QuoteTTL.Milliseconds()
		buy.ExpiresAt = expiry
		sell.ExpiresAt = expiry
	}

	m.quotes[buy.ID] = domain.SideBuy
	m.quotes[sell.ID] = domain.SideSell
	m.phase = PhaseQuoting

	m.lg.Debug("quoting both sides",
		zap.String("bid", buyPrice.String()),
		zap.String("ask", sellPrice.String()),
		zap.String("size", m.cfg.OrderSize.String()))

	return []domain.OrderIntent{buy, sell}
}

// exitIntent emits a marketable close when the mark price crosses the
// take-profit or stop-loss threshold computed from the entry price.
func (m *MarketMaker) exitIntent(mid, pos, entry decimal.Decimal) (domain.OrderIntent, bool) {
	if m.exitID != "" || entry.IsZero() {
		return domain.OrderIntent{}, false
	}

	long := pos.IsPositive()
	one := decimal.NewFromInt(1)

	var takeProfit, stopLoss bool
	if m.cfg.TakeProfitBps.GreaterThan(decimal.Zero) {
		offset := m.cfg.TakeProfitBps.Div(bps)
		if long {
			takeProfit = mid.GreaterThanOrEqual(entry.Mul(one.Add(offset)))
		} else {
			takeProfit = mid.LessThanOrEqual(entry.Mul(one.Sub(offset)))
		}
	}
	if m.cfg.StopLossBps.GreaterThan(decimal.Zero) {
		offset := m.cfg.StopLossBps.Div(bps)
		if long {
			stopLoss = mid.LessThanOrEqual(entry.Mul(one.Sub(offset)))
		} else {
			stopLoss = mid.GreaterThanOrEqual(entry.Mul(one.Add(offset)))
		}
	}
	if !takeProfit && !stopLoss {
		return domain.OrderIntent{}, false
	}

	side := domain.SideSell
	if !long {
		side = domain.SideBuy
	}
	intent, err := domain.NewMarketIntent(m.symbol, side, pos.Abs())
	if err != nil {
		m.lg.Error("build exit intent", zap.Error(err))
		return domain.OrderIntent{}, false
	}

	m.exitID = intent.ID
	if takeProfit {
		m.phase = PhaseTakeProfitPending
	} else {
		m.phase = PhaseStopLossPending
	}

	m.lg.Debug("closing position",
		zap.String("phase", m.phase.String()),
		zap.String("entry", entry.String()),
		zap.String("mid", mid.String()))

	return intent, true
}

// marketCalm applies the volatility and momentum gates with cooldowns.
// Windows of zero disable the corresponding gate.
func (m *MarketMaker) marketCalm(now int64) bool {
	if now < m.volPauseUntil || now < m.momPauseUntil {
		return false
	}

	if m.cfg.VolatilityWindow > 1 && len(m.prices) >= m.cfg.VolatilityWindow+1 {
		vol, err := indicators.ReturnVolatility(m.prices, m.cfg.VolatilityWindow)
		if err == nil && vol > m.cfg.MaxVolatility {
			m.volPauseUntil = now + m.cfg.VolatilityCooldown.Milliseconds()
			m.lg.Debug("volatility gate tripped", zap.Float64("volatility", vol))
			return false
		}
	}

	if m.cfg.MomentumWindow > 1 && len(m.prices) >= m.cfg.MomentumWindow {
		window := m.prices[len(m.prices)-m.cfg.MomentumWindow:]
		mom := indicators.Momentum(window)
		if mom > m.cfg.MomentumThreshold || mom < -m.cfg.MomentumThreshold {
			m.momPauseUntil = now + m.cfg.MomentumCooldown.Milliseconds()
			m.lg.Debug("momentum gate tripped", zap.Float64("momentum", mom))
			return false
		}
	}

	if m.cfg.TrendWindow > 1 && len(m.prices) >= m.cfg.TrendWindow {
		window := m.prices[len(m.prices)-m.cfg.TrendWindow:]
		drift, err := m.trendDrift(window)
		if err == nil && (drift > m.cfg.TrendThreshold || drift < -m.cfg.TrendThreshold) {
			m.lg.Debug("trend gate tripped", zap.Float64("drift", drift))
			return false
		}
	}

	return true
}

// trendDrift returns the fractional distance of the latest price from the
// EMA of the window. Stateless, re-checked every tick: quoting resumes as
// soon as price converges back to its average.
func (m *MarketMaker) trendDrift(window []float64) (float64, error) {
	closes := make([]decimal.Decimal, len(window))
	for i, p := range window {
		closes[i] = decimal.NewFromFloat(p)
	}

	ema, err := indicators.CalculateEMA(closes, m.cfg.TrendWindow)
	if err != nil || len(ema) == 0 {
		return 0, err
	}

	anchor, _ := ema[len(ema)-1].Float64()
	if anchor == 0 {
		return 0, nil
	}
	return (window[len(window)-1] - anchor) / anchor, nil
}

func (m *MarketMaker) pushPrice(mid decimal.Decimal) {
	keep := m.cfg.VolatilityWindow + 1
	if m.cfg.MomentumWindow > keep {
		keep = m.cfg.MomentumWindow
	}
	if m.cfg.TrendWindow > keep {
		keep = m.cfg.TrendWindow
	}
	if keep < 2 {
		return
	}

	f, _ := mid.Float64()
	m.prices = append(m.prices, f)
	if len(m.prices) > keep {
		m.prices = m.prices[len(m.prices)-keep:]
	}
}
