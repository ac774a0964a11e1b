package contracts

import "errors"

// Sentinel errors. Callers match with errors.Is; producers wrap with %w.
var (
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrSnapshotNotFound    = errors.New("snapshot not found")
	ErrSnapshotExists      = errors.New("snapshot already exists")
	ErrStoreCorrupt        = errors.New("snapshot store entry corrupt")
	ErrInvalidAnalysisType = errors.New("invalid analysis type")
	ErrInvalidMode         = errors.New("invalid mode")
	ErrInvalidTargetDate   = errors.New("invalid target date")
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrInvalidEnvelope     = errors.New("invalid envelope")
)
