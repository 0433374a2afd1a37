// Package journal persists fill events in a write-ahead log so a finished
// run can be audited or re-rendered without replaying the data file.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/lobsim/internal/domain"
)

const (
	defaultJournalDir = "./wal/fills"
	segmentLimit      = 1000
	maxSegments       = 100
	fillKeyPrefix     = "fill_"
)

// FillRecord pairs a fill event with its WAL index.
type FillRecord struct {
	Index uint64
	Event domain.FillEvent
}

// WALStore persists fill events in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed fill journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "fills_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init fill journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes one fill event to the journal.
func (s *WALStore) Append(event domain.FillEvent) error {
	if s == nil || s.wal == nil {
		return errors.New("fill journal is not initialized")
	}
	if event.OrderID == "" {
		return fmt.Errorf("fill event order id is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal fill event")
	}

	key := fmt.Sprintf("%s%s", fillKeyPrefix, event.OrderID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// FillsAfter returns all fill events written after the provided WAL index.
func (s *WALStore) FillsAfter(index uint64) ([]FillRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("fill journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]FillRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, fillKeyPrefix) {
			continue
		}
		var event domain.FillEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrap(err, "decode fill event")
		}
		records = append(records, FillRecord{Index: idx, Event: event})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("fill journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
