package audit

import "time"

// DecisionEvent — одна запись следа решений: что агент хотел сделать
// и чем ответило ядро.
type DecisionEvent struct {
	ID      string `json:"id"`       // UUID события
	AgentID string `json:"agent_id"` // Кто делал
	URL     string `json:"url"`      // Куда шел запрос
	Method  string `json:"method"`

	// Результат оценки
	Action   string `json:"action"`    // ALLOW, DENY, DEFER, RATE_LIMITED, MASK
	PolicyID string `json:"policy_id"` // Какая политика перехватила (пусто для ALLOW без совпадений)
	Reason   string `json:"reason"`
	Blocked  bool   `json:"blocked"`

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"` // Время оценки
}
