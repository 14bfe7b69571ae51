package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/agentguard-core/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeApprovalError транслирует доменные ошибки workflow в HTTP-коды.
func writeApprovalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrApprovalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrApprovalExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotApproved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
