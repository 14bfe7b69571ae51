package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/agentguard-core/internal/domain"
)

// OverviewProvider — сводка для главного экрана консоли.
type OverviewProvider interface {
	GetOverview(ctx context.Context) (*domain.Overview, error)
}

type OverviewHandler struct {
	provider OverviewProvider
}

func NewOverviewHandler(p OverviewProvider) *OverviewHandler {
	return &OverviewHandler{provider: p}
}

func (h *OverviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.provider.GetOverview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}
