package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentguard-core/internal/approval"
	"github.com/xela07ax/agentguard-core/internal/domain"
)

type ApprovalHandler struct {
	svc *approval.Service
}

func NewApprovalHandler(svc *approval.Service) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// List — очередь решений для консоли оператора.
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	if status == "" {
		status = "PENDING" // Дефолт для удобства админки
	}

	items, err := h.svc.List(r.Context(), approval.ListFilter{
		Status:  domain.ApprovalStatus(status),
		AgentID: q.Get("agent_id"),
		IDLike:  q.Get("id"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type decideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Decide — approve/reject одной ручкой. Кто решал — берем из токена.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	approverID, _ := r.Context().Value("user_id").(string)
	if approverID == "" {
		writeError(w, http.StatusBadRequest, "approver identity is required")
		return
	}

	var result *domain.ApprovalRequest
	var err error
	if req.Approved {
		result, err = h.svc.Approve(r.Context(), id, approverID, req.Comment)
	} else {
		result, err = h.svc.Reject(r.Context(), id, approverID, req.Comment)
	}
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetStatus — агентская ручка поллинга: ждущий PEP опрашивает ее, пока
// оператор думает.
func (h *ApprovalHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.svc.GetStatus(r.Context(), id)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PendingCount — бейдж очереди в консоли.
func (h *ApprovalHandler) PendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pending": n})
}
