package domain

import "time"

type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentDisabled AgentStatus = "disabled"
)

// Agent — запись справочника агентов. Ядро использует ее для скоупинга
// политик и аутентификации вызывающей стороны; CRUD агентов — вне ядра.
type Agent struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Status AgentStatus `json:"status"`

	// bcrypt-хэш API-ключа. Сам ключ нигде не хранится.
	APIKeyHash string `json:"-"`

	// Базовый адрес апстрима, куда форвардятся одобренные действия
	BaseURL string `json:"base_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
