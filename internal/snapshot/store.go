package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/optionsdash/internal/contracts"
)

// Store is the read side of the snapshot archive.
// ⭐ SSOT: 라우터와 분석기는 이 인터페이스로만 스냅샷을 읽음
type Store interface {
	// GetSnapshot returns the snapshot for (symbol, date) or ErrSnapshotNotFound
	GetSnapshot(ctx context.Context, symbol string, date time.Time) (*contracts.Snapshot, error)

	// LatestSnapshot returns the most recent usable snapshot
	LatestSnapshot(ctx context.Context, symbol string) (*contracts.Snapshot, error)

	// Range returns snapshots in [start, end] ascending by date; corrupt entries are skipped
	Range(ctx context.Context, symbol string, start, end time.Time) ([]*contracts.Snapshot, error)

	// UnusualActivity returns the unusual-activity records for (symbol, date); none is an empty list
	UnusualActivity(ctx context.Context, symbol string, date time.Time) ([]contracts.UnusualActivityRecord, error)

	// AvailableDates returns archived session dates, newest first
	AvailableDates(ctx context.Context, symbol string) ([]time.Time, error)
}

// Writer is the append-only write side, used by the collection job only
type Writer interface {
	// SaveSnapshot persists snap and its Unusual records. An existing (symbol, date) is ErrSnapshotExists.
	SaveSnapshot(ctx context.Context, snap *contracts.Snapshot) error
}

// ReadWriter is a store the collector can both read and append to
type ReadWriter interface {
	Store
	Writer
}

var validate = validator.New()

// Validate checks a snapshot against the archive schema. Failures wrap ErrStoreCorrupt.
func Validate(snap *contracts.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", contracts.ErrStoreCorrupt)
	}
	if err := validate.Struct(snap); err != nil {
		return fmt.Errorf("%w: %s %s: %v", contracts.ErrStoreCorrupt, snap.Symbol, snap.Date.Format(contracts.DateLayout), err)
	}
	for _, rec := range snap.Chains {
		if rec.Symbol != snap.Symbol {
			return fmt.Errorf("%w: %s chain record carries symbol %s", contracts.ErrStoreCorrupt, snap.Symbol, rec.Symbol)
		}
	}
	return nil
}

// ValidateUnusual checks unusual-activity records
func ValidateUnusual(records []contracts.UnusualActivityRecord) error {
	for i := range records {
		if err := validate.Struct(&records[i]); err != nil {
			return fmt.Errorf("%w: unusual activity record %d: %v", contracts.ErrStoreCorrupt, i, err)
		}
	}
	return nil
}

// NormalizeSymbol trims and upper-cases a ticker, rejecting anything that could escape a path
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" || len(s) > 16 || strings.ContainsAny(s, `/\ `) || strings.Contains(s, "..") {
		return "", fmt.Errorf("%w: %q", contracts.ErrInvalidSymbol, symbol)
	}
	return s, nil
}

// checkKey ensures a loaded snapshot matches the key it was stored under
func checkKey(snap *contracts.Snapshot, symbol string, date time.Time) error {
	if snap.Symbol != symbol || !contracts.Day(snap.Date).Equal(contracts.Day(date)) {
		return fmt.Errorf("%w: stored under %s %s but contains %s %s", contracts.ErrStoreCorrupt,
			symbol, date.Format(contracts.DateLayout), snap.Symbol, snap.Date.Format(contracts.DateLayout))
	}
	return nil
}

func inRange(date, start, end time.Time) bool {
	d := contracts.Day(date)
	return !d.Before(contracts.Day(start)) && !d.After(contracts.Day(end))
}
