package domain

import "time"

// DecisionAction — исход оценки запроса. Явный sum-type вместо набора
// булевых флагов: вызывающий код обязан обработать каждый вариант.
type DecisionAction string

const (
	DecisionAllow       DecisionAction = "ALLOW"
	DecisionDeny        DecisionAction = "DENY"
	DecisionDefer       DecisionAction = "DEFER"        // Ожидает решения оператора (HITL)
	DecisionRateLimited DecisionAction = "RATE_LIMITED" // Превышен лимит частоты
	DecisionMask        DecisionAction = "MASK"         // Пропустить, но замаскировать ответ
)

// Decision — результат работы движка политик для одного запроса.
// Транзиентный объект: ядро его не персистит, только сводку в аудит.
type Decision struct {
	Action   DecisionAction `json:"action"`
	Blocked  bool           `json:"blocked"`
	PolicyID string         `json:"policy_id,omitempty"`
	Reason   string         `json:"reason,omitempty"`

	RequireApproval bool `json:"require_approval,omitempty"`

	// Заполняется только для Action=MASK
	MaskConfig *MaskConfig `json:"mask_config,omitempty"`

	// Заполняется только если сработала RATE_LIMIT политика
	RateLimit *RateLimitOutcome `json:"rate_limit,omitempty"`
}

// AllowDecision — пропуск без совпавшей блокирующей политики.
func AllowDecision() Decision {
	return Decision{Action: DecisionAllow}
}

// DenyDecision — жесткая блокировка запроса политикой.
func DenyDecision(policyID, reason string) Decision {
	return Decision{Action: DecisionDeny, Blocked: true, PolicyID: policyID, Reason: reason}
}

// DeferDecision — запрос приостановлен до решения человека.
func DeferDecision(policyID, reason string) Decision {
	return Decision{Action: DecisionDefer, Blocked: true, RequireApproval: true, PolicyID: policyID, Reason: reason}
}

// MaskDecision — запрос проходит, но ответ подлежит маскированию.
func MaskDecision(policyID string, cfg *MaskConfig, reason string) Decision {
	return Decision{Action: DecisionMask, PolicyID: policyID, MaskConfig: cfg, Reason: reason}
}

// RateLimitedDecision — исход RATE_LIMIT политики. Блокирует только
// при rl.Allowed == false.
func RateLimitedDecision(policyID string, rl *RateLimitOutcome, reason string) Decision {
	d := Decision{PolicyID: policyID, RateLimit: rl, Reason: reason}
	if rl != nil && !rl.Allowed {
		d.Action = DecisionRateLimited
		d.Blocked = true
	} else {
		d.Action = DecisionAllow
	}
	return d
}

// RateLimitOutcome — результат одной проверки лимитера.
// Персистентное состояние живет только в Redis (ZSET с TTL окна).
type RateLimitOutcome struct {
	Allowed      bool      `json:"allowed"`
	CurrentCount int64     `json:"current_count"`
	Remaining    int64     `json:"remaining"`
	ResetTime    time.Time `json:"reset_time"`
	Reason       string    `json:"reason,omitempty"`
}

// MaskRule — кастомное правило маскирования одного поля:
// сколько символов оставить в начале и в конце, чем закрывать середину.
type MaskRule struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	MaskChar string `json:"maskChar,omitempty"`
}

// MaskConfig — конфигурация маскирования ответа. Чистые данные без
// собственного жизненного цикла.
type MaskConfig struct {
	// Типы чувствительных полей: phone, idcard, bankcard, email, name, address
	SensitiveFields []string `json:"sensitiveFields,omitempty"`
	// Литеральные ключевые слова, заменяемые на ***
	SensitiveKeywords []string `json:"sensitiveKeywords,omitempty"`
	// Переопределения по имени поля
	MaskRules map[string]MaskRule `json:"maskRules,omitempty"`
	// Ограничение действия конфига по URL
	URLPattern string `json:"urlPattern,omitempty"`
}

// IsEmpty сообщает, что конфиг не несет ни одного правила.
func (c *MaskConfig) IsEmpty() bool {
	return c == nil || (len(c.SensitiveFields) == 0 && len(c.SensitiveKeywords) == 0 && len(c.MaskRules) == 0)
}
