package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/agentguard-core/internal/engine"
	"github.com/xela07ax/agentguard-core/internal/server/service"
)

// Decider — что нужно хендлеру от сервиса решений.
type Decider interface {
	Decide(ctx context.Context, req engine.EvalRequest) (*service.DecisionOutcome, error)
}

type EvaluateHandler struct {
	decider Decider
}

func NewEvaluateHandler(d Decider) *EvaluateHandler {
	return &EvaluateHandler{decider: d}
}

type evaluateRequest struct {
	URL     string                 `json:"url"`
	Method  string                 `json:"method"`
	Headers map[string]string      `json:"headers,omitempty"`
	Body    map[string]interface{} `json:"body,omitempty"`
}

// Evaluate — Hot Path ядра: PEP присылает намерение агента, получает
// решение. Agent ID берется из аутентифицированного контекста, а не из
// тела: агент не может оценивать запросы от чужого имени.
func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || req.Method == "" {
		writeError(w, http.StatusBadRequest, "url and method are required")
		return
	}

	agentID, _ := r.Context().Value(ctxAgentID).(string)

	outcome, err := h.decider.Decide(r.Context(), engine.EvalRequest{
		URL:      req.URL,
		Method:   req.Method,
		Headers:  req.Headers,
		Body:     req.Body,
		AgentID:  agentID,
		ClientIP: clientIP(r),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}
