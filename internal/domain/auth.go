package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// OperatorClaims — полезная нагрузка RS256-токена оператора консоли.
type OperatorClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "approvals.decide": true и т.п.
	jwt.RegisteredClaims
}
