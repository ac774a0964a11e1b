package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/optionsdash/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidAnalysisType),
		errors.Is(err, contracts.ErrInvalidMode),
		errors.Is(err, contracts.ErrInvalidTargetDate),
		errors.Is(err, contracts.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
