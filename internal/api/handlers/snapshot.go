package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/optionsdash/internal/collector"
	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/internal/historical"
	"github.com/wonny/optionsdash/internal/snapshot"
	"github.com/wonny/optionsdash/pkg/logger"
)

const (
	defaultWindowDays = 10
	maxWindowDays     = 365
)

// SnapshotHandler exposes the snapshot archive and its derivations
// ⭐ SSOT: 스냅샷 API 핸들러는 이 구조체에서만
type SnapshotHandler struct {
	store     snapshot.Store
	analyzer  *historical.Analyzer
	collector *collector.Collector
	symbols   []string
	logger    *logger.Logger
}

// NewSnapshotHandler creates a new snapshot handler.
// col may be nil, in which case collection requests answer 503.
func NewSnapshotHandler(store snapshot.Store, analyzer *historical.Analyzer, col *collector.Collector, symbols []string, log *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		store:     store,
		analyzer:  analyzer,
		collector: col,
		symbols:   symbols,
		logger:    log.Module("snapshot_api"),
	}
}

// GetDates lists archived session dates, newest first
// GET /api/snapshots/{symbol}/dates
func (h *SnapshotHandler) GetDates(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	dates, err := h.store.AvailableDates(r.Context(), symbol)
	if err != nil {
		h.fail(w, err, "Failed to list snapshot dates")
		return
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(contracts.DateLayout))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"dates":  out,
	})
}

// GetSnapshot returns one archived session
// GET /api/snapshots/{symbol}/{date}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	date, err := time.Parse(contracts.DateLayout, mux.Vars(r)["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD)")
		return
	}

	snap, err := h.store.GetSnapshot(r.Context(), symbol, date)
	if err != nil {
		h.fail(w, err, "Failed to load snapshot")
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// GetEvolution returns a contract's position evolution
// GET /api/snapshots/{symbol}/evolution?strike=&expiry=&type=&window=
func (h *SnapshotHandler) GetEvolution(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	strike, err := strconv.ParseFloat(q.Get("strike"), 64)
	if err != nil || strike <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid 'strike' (expected a positive number)")
		return
	}

	expiry, err := time.Parse(contracts.DateLayout, q.Get("expiry"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'expiry' date format (expected YYYY-MM-DD)")
		return
	}

	var optType contracts.OptionType
	if raw := q.Get("type"); raw != "" {
		optType, err = contracts.ParseOptionType(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	window, err := windowDays(q.Get("window"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, err := h.analyzer.Evolve(r.Context(), symbol, strike, expiry, optType, window)
	if err != nil {
		h.fail(w, err, "Failed to build position evolution")
		return
	}

	respondJSON(w, http.StatusOK, series)
}

// GetPatterns returns recurring unusual activity
// GET /api/snapshots/{symbol}/patterns?window=
func (h *SnapshotHandler) GetPatterns(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	window, err := windowDays(r.URL.Query().Get("window"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	patterns, warnings, err := h.analyzer.DetectPatterns(r.Context(), symbol, window)
	if err != nil {
		h.fail(w, err, "Failed to detect patterns")
		return
	}
	if warnings == nil {
		warnings = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":      symbol,
		"window_days": window,
		"patterns":    patterns,
		"warnings":    warnings,
	})
}

// GetContext returns the enriched historical context
// GET /api/snapshots/{symbol}/context?window=
func (h *SnapshotHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	window, err := windowDays(r.URL.Query().Get("window"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hc, err := h.analyzer.Context(r.Context(), symbol, window)
	if err != nil {
		h.fail(w, err, "Failed to build historical context")
		return
	}

	respondJSON(w, http.StatusOK, hc)
}

// CollectRequest represents a snapshot collection request
type CollectRequest struct {
	Symbols []string `json:"symbols"` // Optional: defaults to the configured list
}

// Collect triggers snapshot collection
// POST /api/snapshots/collect
func (h *SnapshotHandler) Collect(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		respondError(w, http.StatusServiceUnavailable, "Snapshot collection is not configured")
		return
	}

	var req CollectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = h.symbols
	}

	h.logger.WithField("symbols", len(symbols)).Info("Snapshot collection triggered")

	results, err := h.collector.CollectAll(context.WithoutCancel(r.Context()), symbols)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	type resultView struct {
		Symbol    string `json:"symbol"`
		Date      string `json:"date,omitempty"`
		Contracts int    `json:"contracts"`
		Unusual   int    `json:"unusual"`
		Skipped   bool   `json:"skipped"`
		Error     string `json:"error,omitempty"`
	}

	views := make([]resultView, 0, len(results))
	for _, res := range results {
		v := resultView{Symbol: res.Symbol, Contracts: res.Contracts, Unusual: res.Unusual, Skipped: res.Skipped}
		if !res.Date.IsZero() {
			v.Date = res.Date.Format(contracts.DateLayout)
		}
		if res.Error != nil {
			v.Error = res.Error.Error()
		}
		views = append(views, v)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "completed",
		"results": views,
	})
}

func (h *SnapshotHandler) symbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol, err := snapshot.NormalizeSymbol(mux.Vars(r)["symbol"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return symbol, true
}

func (h *SnapshotHandler) fail(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error(message)
		respondError(w, status, message)
		return
	}
	respondError(w, status, err.Error())
}

func windowDays(raw string) (int, error) {
	if raw == "" {
		return defaultWindowDays, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxWindowDays {
		return 0, fmt.Errorf("invalid 'window' (expected 1-%d days)", maxWindowDays)
	}
	return n, nil
}
