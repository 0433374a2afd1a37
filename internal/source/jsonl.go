// Package source provides snapshot sources feeding the backtest driver:
// line-delimited JSON files, in-memory slices and channel bridges.
package source

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/backtest"
	"github.com/vadiminshakov/lobsim/internal/domain"
)

// maxLineBytes caps a single JSONL record; deep books stay well under this.
const maxLineBytes = 4 * 1024 * 1024

// Record is the on-disk form of one order book snapshot: price/quantity
// pairs as decimal strings, timestamps in epoch milliseconds.
type Record struct {
	Symbol    string      `json:"symbol"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
	Timestamp int64       `json:"timestamp"`
	UpdateID  int64       `json:"update_id"`
	FetchTime int64       `json:"fetch_time"`
}

// Snapshot converts the record into the domain value type.
func (r *Record) Snapshot() (*domain.Snapshot, error) {
	bids, err := parseLevels(r.Bids)
	if err != nil {
		return nil, errors.Wrapf(err, "record %s@%d: bad bid level", r.Symbol, r.Timestamp)
	}
	asks, err := parseLevels(r.Asks)
	if err != nil {
		return nil, errors.Wrapf(err, "record %s@%d: bad ask level", r.Symbol, r.Timestamp)
	}

	return &domain.Snapshot{
		Symbol:    r.Symbol,
		Timestamp: r.Timestamp,
		FetchTime: r.FetchTime,
		UpdateID:  r.UpdateID,
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func parseLevels(raw [][2]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, errors.Wrapf(err, "price %q", pair[0])
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, errors.Wrapf(err, "quantity %q", pair[1])
		}
		if qty.IsNegative() {
			return nil, errors.Errorf("negative quantity %q", pair[1])
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// JSONLSource streams snapshots from a line-delimited JSON file. It enforces
// time-ascending delivery before data reaches the driver: out-of-order or
// unparseable records are skipped (logged) or surfaced as a DataError,
// depending on the policy.
type JSONLSource struct {
	f      *os.File
	sc     *bufio.Scanner
	policy config.DataErrorPolicy
	lg     *zap.Logger
	lastTs int64
	line   int
}

// NewJSONLSource opens the file for streaming.
func NewJSONLSource(path string, policy config.DataErrorPolicy, lg *zap.Logger) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot file %s", path)
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &JSONLSource{f: f, sc: sc, policy: policy, lg: lg}, nil
}

// Next returns the next in-order snapshot, backtest.ErrEndOfStream when the
// file is exhausted.
func (s *JSONLSource) Next() (*domain.Snapshot, error) {
	for s.sc.Scan() {
		s.line++
		raw := s.sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			if fail := s.bad(errors.Wrapf(err, "line %d: malformed record", s.line)); fail != nil {
				return nil, fail
			}
			continue
		}

		snap, err := rec.Snapshot()
		if err != nil {
			if fail := s.bad(errors.Wrapf(err, "line %d", s.line)); fail != nil {
				return nil, fail
			}
			continue
		}

		if snap.Timestamp < s.lastTs {
			if fail := s.bad(errors.Errorf("line %d: timestamp %d behind %d", s.line, snap.Timestamp, s.lastTs)); fail != nil {
				return nil, fail
			}
			continue
		}
		s.lastTs = snap.Timestamp

		return snap, nil
	}

	if err := s.sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read snapshot file")
	}
	return nil, backtest.ErrEndOfStream
}

// Close releases the underlying file.
func (s *JSONLSource) Close() error {
	return s.f.Close()
}

func (s *JSONLSource) bad(err error) error {
	if s.policy == config.DataErrorAbort {
		return domain.NewDataError("%s", err.Error())
	}
	s.lg.Warn("skipping bad snapshot record", zap.Error(err))
	return nil
}
