package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/logger"
)

const (
	snapshotsDir = "daily_options_snapshots"
	unusualDir   = "unusual_activity"
)

// FileStore keeps one JSON file per (symbol, date):
//
//	<root>/daily_options_snapshots/<SYMBOL>/<YYYY-MM-DD>.json
//	<root>/unusual_activity/<SYMBOL>/<YYYY-MM-DD>.json
type FileStore struct {
	root   string
	logger *logger.Logger
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string, log *logger.Logger) *FileStore {
	return &FileStore{
		root:   dir,
		logger: log.Module("snapshot_file"),
	}
}

func (s *FileStore) snapshotPath(symbol string, date time.Time) string {
	return filepath.Join(s.root, snapshotsDir, symbol, date.Format(contracts.DateLayout)+".json")
}

func (s *FileStore) unusualPath(symbol string, date time.Time) string {
	return filepath.Join(s.root, unusualDir, symbol, date.Format(contracts.DateLayout)+".json")
}

// GetSnapshot loads and validates one snapshot file
func (s *FileStore) GetSnapshot(ctx context.Context, symbol string, date time.Time) (*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(sym, contracts.Day(date))
}

func (s *FileStore) load(symbol string, date time.Time) (*contracts.Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(symbol, date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s %s", contracts.ErrSnapshotNotFound, symbol, date.Format(contracts.DateLayout))
		}
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var snap contracts.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode %s %s: %v", contracts.ErrStoreCorrupt, symbol, date.Format(contracts.DateLayout), err)
	}
	if err := Validate(&snap); err != nil {
		return nil, err
	}
	if err := checkKey(&snap, symbol, date); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LatestSnapshot returns the newest snapshot that passes validation
func (s *FileStore) LatestSnapshot(ctx context.Context, symbol string) (*contracts.Snapshot, error) {
	dates, err := s.AvailableDates(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sym, _ := NormalizeSymbol(symbol)

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.load(sym, date)
		if err == nil {
			return snap, nil
		}
		s.logger.WithFields(map[string]interface{}{
			"symbol": sym,
			"date":   date.Format(contracts.DateLayout),
			"error":  err.Error(),
		}).Warn("Skipping unusable snapshot")
	}

	return nil, fmt.Errorf("%w: no snapshots for %s", contracts.ErrSnapshotNotFound, sym)
}

// Range returns snapshots in [start, end], oldest first
func (s *FileStore) Range(ctx context.Context, symbol string, start, end time.Time) ([]*contracts.Snapshot, error) {
	dates, err := s.AvailableDates(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sym, _ := NormalizeSymbol(symbol)

	var out []*contracts.Snapshot
	for i := len(dates) - 1; i >= 0; i-- {
		date := dates[i]
		if !inRange(date, start, end) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap, err := s.load(sym, date)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"symbol": sym,
				"date":   date.Format(contracts.DateLayout),
				"error":  err.Error(),
			}).Warn("Skipping snapshot in range")
			continue
		}
		out = append(out, snap)
	}

	return out, nil
}

// UnusualActivity returns the records saved alongside a snapshot
func (s *FileStore) UnusualActivity(ctx context.Context, symbol string, date time.Time) ([]contracts.UnusualActivityRecord, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.unusualPath(sym, contracts.Day(date)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []contracts.UnusualActivityRecord{}, nil
		}
		return nil, fmt.Errorf("read unusual activity file: %w", err)
	}

	var records []contracts.UnusualActivityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode unusual activity %s: %v", contracts.ErrStoreCorrupt, sym, err)
	}
	if err := ValidateUnusual(records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []contracts.UnusualActivityRecord{}
	}
	return records, nil
}

// AvailableDates lists archived dates, newest first
func (s *FileStore) AvailableDates(ctx context.Context, symbol string) ([]time.Time, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, snapshotsDir, sym))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []time.Time{}, nil
		}
		return nil, fmt.Errorf("list snapshot dir: %w", err)
	}

	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		date, err := time.Parse(contracts.DateLayout, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// SaveSnapshot writes snap and its unusual records without ever replacing an existing file
func (s *FileStore) SaveSnapshot(ctx context.Context, snap *contracts.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	if err := ValidateUnusual(snap.Unusual); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sym, err := NormalizeSymbol(snap.Symbol)
	if err != nil {
		return err
	}
	date := contracts.Day(snap.Date)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeExclusive(s.snapshotPath(sym, date), data); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s %s", contracts.ErrSnapshotExists, sym, date.Format(contracts.DateLayout))
		}
		return fmt.Errorf("write snapshot: %w", err)
	}

	unusual := snap.Unusual
	if unusual == nil {
		unusual = []contracts.UnusualActivityRecord{}
	}
	data, err = json.MarshalIndent(unusual, "", "  ")
	if err != nil {
		return fmt.Errorf("encode unusual activity: %w", err)
	}
	if err := writeExclusive(s.unusualPath(sym, date), data); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("write unusual activity: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol":  sym,
		"date":    date.Format(contracts.DateLayout),
		"chains":  len(snap.Chains),
		"unusual": len(snap.Unusual),
	}).Info("Snapshot saved")

	return nil
}

// writeExclusive writes via a temp file and hard-links it into place,
// so readers never observe a partial file and an existing file is never replaced.
func writeExclusive(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Link(tmpName, path)
}
