package handler

import (
	"context"
	"net"
	"net/http"

	"github.com/xela07ax/agentguard-core/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const ctxAgentID ctxKey = "agent_id"

// AgentDirectory — доступ к реестру агентов для аутентификации.
type AgentDirectory interface {
	GetAgentByID(ctx context.Context, id string) (*domain.Agent, error)
}

// Blocklist — мгновенная проверка отключенных агентов (RAM).
type Blocklist interface {
	IsDisabled(agentID string) bool
}

// NewAgentAuthMiddleware аутентифицирует агента по паре
// X-Agent-ID / X-API-Key. Ключ сверяется с bcrypt-хэшем из реестра.
// Порядок проверок: сначала самый дешевый слой (RAM-блоклист), потом БД.
func NewAgentAuthMiddleware(dir AgentDirectory, blocklist Blocklist, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := r.Header.Get("X-Agent-ID")
			apiKey := r.Header.Get("X-API-Key")
			if agentID == "" || apiKey == "" {
				writeError(w, http.StatusUnauthorized, "agent credentials required")
				return
			}

			if blocklist.IsDisabled(agentID) {
				logger.Warn("blocked agent request intercepted", zap.String("agent_id", agentID))
				writeError(w, http.StatusForbidden, "agent is disabled")
				return
			}

			agent, err := dir.GetAgentByID(r.Context(), agentID)
			if err != nil {
				logger.Error("agent lookup failed", zap.String("agent_id", agentID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "agent lookup failed")
				return
			}
			if agent == nil || agent.Status != domain.AgentActive {
				writeError(w, http.StatusForbidden, "agent is not active")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(agent.APIKeyHash), []byte(apiKey)); err != nil {
				logger.Warn("agent api key mismatch", zap.String("agent_id", agentID))
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), ctxAgentID, agentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP достает адрес вызывающего; RealIP middleware уже подменил
// RemoteAddr при наличии доверенных заголовков.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
