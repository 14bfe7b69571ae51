package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"go.uber.org/zap"
)

// ListenPolicyUpdates — "живучая" подписка на сигнал обновления каталога.
// Обрабатывает переподключения: при каждом успешном коннекте кэш
// перечитывается принудительно, чтобы не пропустить сигналы, улетевшие
// за время разрыва.
func ListenPolicyUpdates(ctx context.Context, rdb *redis.Client, engine *Engine, logger *zap.Logger) {
	log := logger.Named("policy_listener")
	for {
		pubsub := rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to subscribe", zap.String("chan", infra.RedisChanPolicyUpdate), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if err := engine.Refresh(ctx); err != nil {
			log.Error("cache sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				log.Debug("policy update signal received", zap.String("payload", msg.Payload))
				if err := engine.Refresh(ctx); err != nil {
					log.Error("cache refresh failed", zap.Error(err))
				}
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
