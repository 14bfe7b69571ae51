package infra

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "agentguard"
)

// Ключи состояния
const (
	// RedisKeyRateLimitPrefix — префикс ZSET-ключей скользящего окна.
	// Полный ключ: agentguard:rate_limit:{policyId}:{extractedKey}
	RedisKeyRateLimitPrefix = RedisNamespace + ":rate_limit:"

	// RedisKeyAgentsDisabledSet — множество ID отключенных агентов (L2-кэш).
	RedisKeyAgentsDisabledSet = RedisNamespace + ":agents:disabled_set"

	// RedisKeyAgentsWarmupLock — распределенная блокировка прогрева L2.
	RedisKeyAgentsWarmupLock = RedisNamespace + ":agents:warmup_lock"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanPolicyUpdate — широковещательный сигнал "каталог политик
	// изменился": все инстансы ядра перечитывают кэш.
	RedisChanPolicyUpdate = RedisNamespace + ":policies:update"

	// RedisChanAgentStatus — сигнал смены статуса агента в формате
	// "agentID:off" (отключен) / "agentID:on" (возвращен в строй).
	RedisChanAgentStatus = RedisNamespace + ":agents:status"
)
