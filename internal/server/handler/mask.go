package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/agentguard-core/internal/domain"
	"github.com/xela07ax/agentguard-core/internal/mask"
)

type MaskHandler struct {
	masker *mask.Masker
}

func NewMaskHandler(m *mask.Masker) *MaskHandler {
	return &MaskHandler{masker: m}
}

type maskRequest struct {
	Content    interface{}        `json:"content"`
	MaskConfig *domain.MaskConfig `json:"mask_config"`
}

// Apply — утилитарная ручка PEP: получив решение MASK, шлюз присылает
// сюда ответ апстрима вместе с mask_config из решения и получает
// очищенную версию. Операция идемпотентна и не возвращает ошибок
// содержимого: что не удалось разобрать, проходит как есть.
func (h *MaskHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req maskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaskConfig.IsEmpty() {
		writeError(w, http.StatusBadRequest, "mask_config is required")
		return
	}

	masked := h.masker.MaskContent(req.Content, req.MaskConfig)
	writeJSON(w, http.StatusOK, map[string]interface{}{"content": masked})
}
