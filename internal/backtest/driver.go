package backtest

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/domain"
	"github.com/vadiminshakov/lobsim/internal/strategy"
)

// ErrEndOfStream signals normal exhaustion of a snapshot source. It is a
// terminal transition to Completed, not an error of the run.
var ErrEndOfStream = errors.New("end of stream")

// SnapshotSource is the pull interface the driver consumes snapshots
// through. Next blocks until a snapshot is available, returns ErrEndOfStream
// when the source is exhausted, or a DataError for records it already knows
// to be malformed.
type SnapshotSource interface {
	Next() (*domain.Snapshot, error)
}

// FillSink receives every executed fill, e.g. for WAL journaling. Optional.
type FillSink interface {
	Append(ev domain.FillEvent) error
}

// State is the driver lifecycle state.
type State int

const (
	// StateIdle before Run is called.
	StateIdle State = iota
	// StateRunning inside the tick loop.
	StateRunning
	// StateCompleted normal termination, report available.
	StateCompleted
	// StateAborted terminated by config or data error policy.
	StateAborted
)

// String returns the string representation of the driver state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Driver owns the tick loop of one backtest run: it pulls snapshots in
// order, invokes the strategy, the simulator and the metrics collector until
// the source is exhausted. A run is single-threaded and strictly ordered;
// snapshot order is the sole source of time. Independent runs share nothing
// and may execute in parallel.
type Driver struct {
	cfg   config.BacktestConfig
	strat strategy.Strategy
	src   SnapshotSource
	sim   *Simulator
	acct  *domain.AccountState
	col   *Collector
	sink  FillSink
	lg    *zap.Logger

	state  State
	lastTs int64
}

// NewDriver validates the config and assembles a run. A validation failure
// surfaces before any snapshot is consumed and is never retried.
func NewDriver(cfg config.BacktestConfig, strat strategy.Strategy, src SnapshotSource, lg *zap.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, "strategy is required")
	}
	if src == nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, "snapshot source is required")
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	acct, err := domain.NewAccountState(cfg.InitialCash)
	if err != nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, err.Error())
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	return &Driver{
		cfg:   cfg,
		strat: strat,
		src:   src,
		sim:   NewSimulator(cfg, rng, lg),
		acct:  acct,
		col:   NewCollector(),
		lg:    lg,
	}, nil
}

// WithFillSink attaches an optional journal for executed fills.
func (d *Driver) WithFillSink(sink FillSink) *Driver {
	d.sink = sink
	return d
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// Account returns the run's ledger.
func (d *Driver) Account() *domain.AccountState {
	return d.acct
}

// EquityCurve returns the recorded equity series in tick order.
func (d *Driver) EquityCurve() []EquityPoint {
	return d.col.Points()
}

// Stats returns the simulator's execution counters.
func (d *Driver) Stats() ExecutionStats {
	return d.sim.Stats()
}

// Run executes the tick loop until the source is exhausted or ctx is
// cancelled. Cancellation is checked only between ticks and yields a
// graceful partial report. The returned report is valid whenever err is nil.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	d.state = StateRunning

	for {
		select {
		case <-ctx.Done():
			d.lg.Info("run cancelled between ticks", zap.Int("ticks", len(d.col.Points())))
			d.state = StateCompleted
			return d.col.Finalize(d.acct, d.cfg.AnnualizationFactor), nil
		default:
		}

		snap, err := d.src.Next()
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				d.state = StateCompleted
				return d.col.Finalize(d.acct, d.cfg.AnnualizationFactor), nil
			}
			if domain.IsDataError(err) {
				if abortErr := d.onDataError(err); abortErr != nil {
					return Report{}, abortErr
				}
				continue
			}
			d.state = StateAborted
			return Report{}, errors.Wrap(err, "snapshot source failed")
		}

		if err := d.tick(snap); err != nil {
			d.state = StateAborted
			return Report{}, err
		}
	}
}

func (d *Driver) tick(snap *domain.Snapshot) error {
	if err := d.validateSnapshot(snap); err != nil {
		// resting orders and account state carry forward unchanged
		return d.onDataError(err)
	}
	d.lastTs = snap.Timestamp

	if err := d.evaluateResting(snap); err != nil {
		return err
	}

	if !d.acct.Frozen() {
		intents := d.strat.Decide(snap, d.acct)
		for _, intent := range intents {
			out, res, err := d.sim.Execute(intent, snap, d.acct)
			if err != nil {
				return errors.Wrap(err, "execute intent")
			}
			d.dispatch(snap, intent.Side, out, res)
		}
	}

	d.acct.MarkToMarket(snap.Mid())

	if err := d.enforceMargin(snap); err != nil {
		return err
	}

	d.col.Record(snap.Timestamp, d.acct.Equity(), d.acct.RealizedPnL(), d.acct.UnrealizedPnL())
	return nil
}

// evaluateResting re-evaluates outstanding orders oldest-first, before new
// intents are admitted, so the strategy decides against a settled account.
func (d *Driver) evaluateResting(snap *domain.Snapshot) error {
	for _, ro := range d.acct.RestingOrders() {
		out, res, err := d.sim.EvaluateResting(ro, snap, d.acct)
		if err != nil {
			return errors.Wrap(err, "evaluate resting order")
		}
		d.dispatch(snap, ro.Intent.Side, out, res)
	}
	return nil
}

func (d *Driver) dispatch(snap *domain.Snapshot, side domain.Side, out domain.Outcome, res domain.FillResult) {
	if out.Kind == domain.OutcomeFilled {
		d.col.RecordFill(res)
		d.journal(snap, side, out, res)
	}
	d.strat.OnOutcome(out.OrderID, out)
}

func (d *Driver) journal(snap *domain.Snapshot, side domain.Side, out domain.Outcome, res domain.FillResult) {
	if d.sink == nil {
		return
	}
	ev := domain.NewFillEvent(snap.Symbol, snap.Timestamp, side, out, res.RealizedDelta)
	if err := d.sink.Append(ev); err != nil {
		d.lg.Error("journal fill", zap.Error(err))
	}
}

// enforceMargin triggers forced liquidation when an adverse move pushed the
// marked exposure past the margin limit. The account ends frozen; the run
// continues and the report is flagged blown up.
func (d *Driver) enforceMargin(snap *domain.Snapshot) error {
	if d.acct.Frozen() || d.acct.Position().IsZero() {
		return nil
	}
	if d.acct.MarginUsed().LessThanOrEqual(d.cfg.MarginRate.Mul(d.acct.Equity())) {
		return nil
	}

	side := domain.SideSell
	if d.acct.Position().IsNegative() {
		side = domain.SideBuy
	}

	out, res, cancelled, err := d.sim.Liquidate(snap, d.acct)
	if err != nil {
		return errors.Wrap(err, "forced liquidation")
	}

	d.col.SetBlownUp()
	if out.Kind == domain.OutcomeFilled {
		d.col.RecordFill(res)
		d.journal(snap, side, out, res)
	}
	for _, id := range cancelled {
		d.strat.OnOutcome(id, domain.Outcome{OrderID: id, Kind: domain.OutcomeCancelled})
	}

	return nil
}

func (d *Driver) validateSnapshot(snap *domain.Snapshot) error {
	if d.lastTs > 0 && snap.Timestamp < d.lastTs {
		return domain.NewDataError("snapshot %s@%d: timestamp went backwards (last %d)",
			snap.Symbol, snap.Timestamp, d.lastTs)
	}
	return snap.Validate(d.cfg.CrossTolerancePct)
}

func (d *Driver) onDataError(err error) error {
	d.col.RecordDataError()
	if d.cfg.OnDataError == config.DataErrorAbort {
		d.state = StateAborted
		return errors.Wrap(err, "aborted on data error")
	}
	d.lg.Warn("skipping malformed snapshot", zap.Error(err))
	return nil
}
