package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrAgentScopeWithoutAgent — политика объявлена агентской, но агент
// не указан.
var ErrAgentScopeWithoutAgent = errors.New("agent-scoped policy requires agent_id")

// PolicyType определяет, какой механизм ядра обрабатывает совпавшую политику.
type PolicyType string

const (
	TypeAccessControl     PolicyType = "ACCESS_CONTROL"     // Разрешить / Заблокировать / Отправить на аппрув
	TypeRateLimit         PolicyType = "RATE_LIMIT"         // Частотное ограничение (скользящее окно)
	TypeApproval          PolicyType = "APPROVAL"           // Human-in-the-loop: всегда пауза до решения оператора
	TypeContentProtection PolicyType = "CONTENT_PROTECTION" // Маскирование чувствительных данных в ответе
)

// PolicyScope — область действия: один агент или весь трафик.
type PolicyScope string

const (
	ScopeGlobal PolicyScope = "GLOBAL"
	ScopeAgent  PolicyScope = "AGENT"
)

// PolicyAction — итоговое действие, в которое разрешается политика.
type PolicyAction string

const (
	ActionAllow     PolicyAction = "ALLOW"
	ActionDeny      PolicyAction = "DENY"
	ActionApproval  PolicyAction = "APPROVAL"
	ActionRateLimit PolicyAction = "RATE_LIMIT"
	ActionMask      PolicyAction = "MASK"
)

// Policy — правило безопасности для исходящих действий агента.
// После загрузки в кэш движка объект считается неизменяемым снапшотом:
// любая правка политики приводит к полной перезагрузке кэша, а не к мутации.
type Policy struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Type        PolicyType   `json:"type"`
	Scope       PolicyScope  `json:"scope"`
	AgentID     string       `json:"agent_id,omitempty"` // Обязателен при Scope=AGENT
	Priority    int          `json:"priority"`           // Больше — раньше в очереди оценки
	Enabled     bool         `json:"enabled"`
	Action      PolicyAction `json:"action"`

	// Условия срабатывания в свободной JSON-форме: urlPattern, method,
	// bodyConditions, headerConditions, а для RATE_LIMIT — windowSeconds,
	// maxRequests, keyExtractor. Позволяет ИБ-команде писать сложные правила,
	// не меняя структуру БД.
	Conditions json.RawMessage `json:"conditions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseAction приводит строку к PolicyAction. Возвращает пустое значение,
// если строка не является известным действием.
func ParseAction(s string) PolicyAction {
	switch PolicyAction(s) {
	case ActionAllow, ActionDeny, ActionApproval, ActionRateLimit, ActionMask:
		return PolicyAction(s)
	}
	return ""
}

// FieldCondition — один предикат над полем тела запроса или заголовком.
// Field поддерживает точечный путь для вложенных структур ("user.account.id").
type FieldCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// ConditionDoc — распарсенный документ условий политики.
// Отсутствующая секция трактуется как "всегда истинно".
type ConditionDoc struct {
	URLPattern       string           `json:"urlPattern,omitempty"`
	Method           string           `json:"method,omitempty"`
	BodyConditions   []FieldCondition `json:"bodyConditions,omitempty"`
	HeaderConditions []FieldCondition `json:"headerConditions,omitempty"`

	// Переопределение действия для ACCESS_CONTROL политик
	Action string `json:"action,omitempty"`

	// Секция RATE_LIMIT
	WindowSeconds int    `json:"windowSeconds,omitempty"`
	MaxRequests   int    `json:"maxRequests,omitempty"`
	KeyExtractor  string `json:"keyExtractor,omitempty"`

	// Секция CONTENT_PROTECTION
	SensitiveFields   []string            `json:"sensitiveFields,omitempty"`
	SensitiveKeywords []string            `json:"sensitiveKeywords,omitempty"`
	MaskRules         map[string]MaskRule `json:"maskRules,omitempty"`
}

// ParseConditions разбирает JSON-документ условий политики.
func (p *Policy) ParseConditions() (*ConditionDoc, error) {
	doc := &ConditionDoc{}
	if len(p.Conditions) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(p.Conditions, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
