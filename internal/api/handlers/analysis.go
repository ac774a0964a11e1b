package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/optionsdash/internal/adapter"
	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/logger"
)

// AnalysisService produces module-ready analysis results
type AnalysisService interface {
	GetAnalysis(ctx context.Context, symbol, analysisType, mode, targetDate string) (*adapter.AnalysisResult, error)
}

// AnalysisHandler serves dashboard analysis modules
// ⭐ SSOT: 분석 API 핸들러는 이 구조체에서만
type AnalysisHandler struct {
	service AnalysisService
	logger  *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service AnalysisService, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
		logger:  log.Module("analysis_api"),
	}
}

// GetAnalysis returns one analysis module for a symbol.
// Missing data still answers 200 with a fallback envelope; only bad input is an error.
// GET /api/analysis/{type}/{symbol}?mode=auto|live|historical&date=YYYY-MM-DD
func (h *AnalysisHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	result, err := h.service.GetAnalysis(r.Context(), vars["symbol"], vars["type"], q.Get("mode"), q.Get("date"))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).Error("Failed to build analysis")
			respondError(w, status, "Failed to build analysis")
			return
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ListTypes returns the supported analysis types
// GET /api/analysis/types
func (h *AnalysisHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"analysis_types": contracts.AllAnalysisTypes(),
	})
}
