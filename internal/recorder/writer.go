// Package recorder captures live order book snapshots from an exchange and
// appends them to a JSONL file replayable by the backtest driver.
package recorder

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/lobsim/internal/domain"
	"github.com/vadiminshakov/lobsim/internal/source"
)

// flushEvery bounds data loss on crash to this many buffered records.
const flushEvery = 50

// JSONLWriter appends snapshot records to a file, one JSON object per line.
type JSONLWriter struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	pending int
}

// NewJSONLWriter opens (or creates) the file for appending.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot file %s", path)
	}
	return &JSONLWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Write appends one snapshot record.
func (w *JSONLWriter) Write(snap *domain.Snapshot) error {
	rec := source.Record{
		Symbol:    snap.Symbol,
		Bids:      encodeLevels(snap.Bids),
		Asks:      encodeLevels(snap.Asks),
		Timestamp: snap.Timestamp,
		UpdateID:  snap.UpdateID,
		FetchTime: snap.FetchTime,
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot record")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(append(raw, '\n')); err != nil {
		return errors.Wrap(err, "write snapshot record")
	}
	w.pending++
	if w.pending >= flushEvery {
		w.pending = 0
		return errors.Wrap(w.w.Flush(), "flush snapshot file")
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "flush snapshot file")
	}
	return errors.Wrap(w.f.Close(), "close snapshot file")
}

func encodeLevels(levels []domain.PriceLevel) [][2]string {
	out := make([][2]string, len(levels))
	for i, lvl := range levels {
		out[i] = [2]string{lvl.Price.String(), lvl.Quantity.String()}
	}
	return out
}
