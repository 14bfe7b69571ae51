package agents

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"go.uber.org/zap"
)

// Blocklist — L1 (RAM) кэш отключенных агентов. Проверка на каждый
// запрос идет по локальной мапе; Redis служит L2 и шиной синхронизации
// между инстансами ядра. Отключение агента вступает в силу мгновенно,
// без рестарта и без похода в Postgres на Hot Path.
type Blocklist struct {
	mu       sync.RWMutex
	disabled map[string]struct{}
	rdb      *redis.Client
	logger   *zap.Logger
}

func NewBlocklist(rdb *redis.Client, logger *zap.Logger) *Blocklist {
	return &Blocklist{
		disabled: make(map[string]struct{}),
		rdb:      rdb,
		logger:   logger.Named("blocklist"),
	}
}

// Init прогревает L1 и, при пустом Redis, L2 из состояния БД.
func (b *Blocklist) Init(ctx context.Context, idsFromDB []string) error {
	ids, err := b.rdb.SMembers(ctx, infra.RedisKeyAgentsDisabledSet).Result()
	if err != nil {
		return err
	}

	return warmupState(ctx, b.rdb, b.logger, append(ids, idsFromDB...),
		infra.RedisKeyAgentsDisabledSet, infra.RedisKeyAgentsWarmupLock,
		func(all []string) {
			b.mu.Lock()
			for _, id := range all {
				b.disabled[id] = struct{}{}
			}
			b.mu.Unlock()
		})
}

// IsDisabled — проверка на Hot Path, только RAM.
func (b *Blocklist) IsDisabled(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.disabled[agentID]
	return ok
}

func (b *Blocklist) markDisabled(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabled[agentID] = struct{}{}
}

func (b *Blocklist) markEnabled(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.disabled, agentID)
}

// StartListener подписывается на сигналы смены статуса и обновляет L1
// в реальном времени. Блокируется до отмены ctx.
func (b *Blocklist) StartListener(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, infra.RedisChanAgentStatus)
	defer pubsub.Close()

	ch := pubsub.Channel()
	b.logger.Info("agent status listener started")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("agent status channel closed")
				return
			}
			b.processSignal(msg.Payload)
		case <-ctx.Done():
			b.logger.Info("agent status listener stopping by context...")
			return
		}
	}
}

// processSignal разбирает сигнал формата "agentID:off" / "agentID:on".
func (b *Blocklist) processSignal(payload string) {
	id, state, ok := strings.Cut(payload, ":")
	if !ok || id == "" {
		b.logger.Error("invalid agent status signal", zap.String("payload", payload))
		return
	}

	switch state {
	case "off":
		b.logger.Warn("agent disabled by signal", zap.String("agent_id", id))
		b.markDisabled(id)
	case "on":
		b.logger.Info("agent re-enabled by signal", zap.String("agent_id", id))
		b.markEnabled(id)
	default:
		b.logger.Error("unknown agent status signal", zap.String("payload", payload))
	}
}
