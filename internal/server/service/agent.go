package service

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentguard-core/internal/domain"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"go.uber.org/zap"
)

// AgentStore — персистентность реестра агентов.
type AgentStore interface {
	GetAgentByID(ctx context.Context, id string) (*domain.Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status domain.AgentStatus) error
}

// AgentAdminService — управление статусом агентов. Отключение проходит
// три слоя: Postgres (истина), Redis-set (L2), pub/sub сигнал (L1 всех
// инстансов).
type AgentAdminService struct {
	store  AgentStore
	rdb    *redis.Client
	logger *zap.Logger
}

func NewAgentAdminService(store AgentStore, rdb *redis.Client, logger *zap.Logger) *AgentAdminService {
	return &AgentAdminService{store: store, rdb: rdb, logger: logger.Named("agent_admin")}
}

func (s *AgentAdminService) Get(ctx context.Context, id string) (*domain.Agent, error) {
	return s.store.GetAgentByID(ctx, id)
}

// Disable мгновенно выводит агента из строя на всех инстансах ядра.
func (s *AgentAdminService) Disable(ctx context.Context, id string) error {
	if err := s.store.UpdateAgentStatus(ctx, id, domain.AgentDisabled); err != nil {
		return err
	}

	// L2 и сигнал — best-effort: БД уже содержит истину
	if err := s.rdb.SAdd(ctx, infra.RedisKeyAgentsDisabledSet, id).Err(); err != nil {
		s.logger.Error("failed to update disabled set", zap.String("agent_id", id), zap.Error(err))
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanAgentStatus, id+":off").Err(); err != nil {
		s.logger.Error("failed to publish agent disable signal", zap.String("agent_id", id), zap.Error(err))
	}

	s.logger.Warn("agent disabled", zap.String("agent_id", id))
	return nil
}

// Enable возвращает агента в строй.
func (s *AgentAdminService) Enable(ctx context.Context, id string) error {
	if err := s.store.UpdateAgentStatus(ctx, id, domain.AgentActive); err != nil {
		return err
	}

	if err := s.rdb.SRem(ctx, infra.RedisKeyAgentsDisabledSet, id).Err(); err != nil {
		s.logger.Error("failed to update disabled set", zap.String("agent_id", id), zap.Error(err))
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanAgentStatus, id+":on").Err(); err != nil {
		s.logger.Error("failed to publish agent enable signal", zap.String("agent_id", id), zap.Error(err))
	}

	s.logger.Info("agent enabled", zap.String("agent_id", id))
	return nil
}
