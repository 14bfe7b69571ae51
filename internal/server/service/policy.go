package service

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentguard-core/internal/domain"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"go.uber.org/zap"
)

// PolicyStore — персистентность каталога политик.
type PolicyStore interface {
	GetPolicyByID(ctx context.Context, id string) (*domain.Policy, error)
	ListPolicies(ctx context.Context) ([]domain.Policy, error)
	CreatePolicy(ctx context.Context, p *domain.Policy) error
	UpdatePolicy(ctx context.Context, p *domain.Policy) error
	SetPolicyEnabled(ctx context.Context, id string, enabled bool) error
	DeletePolicy(ctx context.Context, id string) error
}

// PolicyAdminService — управление каталогом. Каждая мутация завершается
// широковещательным сигналом в Redis: все инстансы ядра перечитывают
// снапшот, изменение видно агентам через доли секунды.
type PolicyAdminService struct {
	store  PolicyStore
	rdb    *redis.Client
	logger *zap.Logger
}

func NewPolicyAdminService(store PolicyStore, rdb *redis.Client, logger *zap.Logger) *PolicyAdminService {
	return &PolicyAdminService{store: store, rdb: rdb, logger: logger.Named("policy_admin")}
}

func (s *PolicyAdminService) Get(ctx context.Context, id string) (*domain.Policy, error) {
	return s.store.GetPolicyByID(ctx, id)
}

func (s *PolicyAdminService) List(ctx context.Context) ([]domain.Policy, error) {
	return s.store.ListPolicies(ctx)
}

func (s *PolicyAdminService) Create(ctx context.Context, p *domain.Policy) error {
	if err := s.store.CreatePolicy(ctx, p); err != nil {
		return err
	}
	s.publishUpdate(ctx)
	return nil
}

func (s *PolicyAdminService) Update(ctx context.Context, p *domain.Policy) error {
	if err := s.store.UpdatePolicy(ctx, p); err != nil {
		return err
	}
	s.publishUpdate(ctx)
	return nil
}

func (s *PolicyAdminService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.store.SetPolicyEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.publishUpdate(ctx)
	return nil
}

func (s *PolicyAdminService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePolicy(ctx, id); err != nil {
		return err
	}
	s.publishUpdate(ctx)
	return nil
}

// publishUpdate шлет сигнал обновления. Сбой не откатывает мутацию:
// кэш догонит состояние при следующем сигнале или переподключении.
func (s *PolicyAdminService) publishUpdate(ctx context.Context) {
	if err := s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, "refresh").Err(); err != nil {
		s.logger.Error("failed to publish policy update signal", zap.Error(err))
	}
}
