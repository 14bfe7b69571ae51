package ratelimit

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentguard-core/internal/domain"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"go.uber.org/zap"
)

// DefaultKey — общий бакет для запросов, из которых не удалось извлечь
// ключ лимитирования. Осознанное решение: ненастроенный трафик делит
// один глобальный лимит.
const DefaultKey = "default"

// slidingWindowScript — скользящее окно на ZSET. Вся последовательность
// "вычистить-посчитать-добавить" выполняется в Redis атомарно, одним
// round-trip: два конкурентных вызова не смогут одновременно увидеть
// count < limit и оба вставить запись.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local windowStart = now - window * 1000

redis.call('ZREMRANGEBYSCORE', key, 0, windowStart)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
    redis.call('EXPIRE', key, window)
    return {1, count + 1}
else
    return {0, count}
end
`)

// Limiter — фасад над внешним атомарным счетчиком в Redis.
// Сам по себе состояния не держит.
type Limiter struct {
	rdb      redis.Scripter
	logger   *zap.Logger
	failOpen prometheus.Counter
}

func NewLimiter(rdb redis.Scripter, logger *zap.Logger) *Limiter {
	return &Limiter{rdb: rdb, logger: logger.Named("ratelimit")}
}

// WithFailOpenCounter подключает счетчик деградаций в allow.
func (l *Limiter) WithFailOpenCounter(c prometheus.Counter) *Limiter {
	l.failOpen = c
	return l
}

// CheckLimit выполняет одну атомарную проверку скользящего окна.
// При любом сбое Redis деградирует в allow (fail-open): перекрыть весь
// продакшн-трафик из-за лежащего лимитера хуже, чем недолимитировать.
func (l *Limiter) CheckLimit(ctx context.Context, key string, windowSeconds, maxRequests int) domain.RateLimitOutcome {
	redisKey := infra.RedisKeyRateLimitPrefix + key
	now := time.Now()
	resetTime := now.Add(time.Duration(windowSeconds) * time.Second)

	res, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{redisKey},
		now.UnixMilli(), windowSeconds, maxRequests,
	).Slice()
	if err != nil {
		l.logger.Error("rate limit check degraded to allow",
			zap.String("key", key), zap.Error(err))
		if l.failOpen != nil {
			l.failOpen.Inc()
		}
		return domain.RateLimitOutcome{Allowed: true, CurrentCount: 0, Remaining: int64(maxRequests), ResetTime: resetTime}
	}

	if len(res) < 2 {
		l.logger.Warn("rate limit script returned malformed reply, allowing",
			zap.String("key", key), zap.Int("len", len(res)))
		return domain.RateLimitOutcome{Allowed: true, CurrentCount: 0, Remaining: int64(maxRequests), ResetTime: resetTime}
	}

	allowed := toInt64(res[0]) == 1
	currentCount := toInt64(res[1])
	remaining := int64(maxRequests) - currentCount
	if remaining < 0 {
		remaining = 0
	}

	out := domain.RateLimitOutcome{
		Allowed:      allowed,
		CurrentCount: currentCount,
		Remaining:    remaining,
		ResetTime:    resetTime,
	}
	if !allowed {
		out.Reason = fmt.Sprintf("request rate exceeded: %d requests already made within %ds window", currentCount, windowSeconds)
	}
	return out
}

// ExtractKey определяет измерение лимитирования для запроса:
//
//	"ip"                — сетевой адрес вызывающего
//	"header:<name>"     — значение заголовка (без учета регистра)
//	"body:<dotted.path>" — поле тела по точечному пути
//
// Нераспознанный экстрактор или отсутствующее значение дают DefaultKey.
func (l *Limiter) ExtractKey(keyExtractor string, headers map[string]string, body map[string]interface{}, clientIP string) string {
	extractor := strings.ToLower(strings.TrimSpace(keyExtractor))
	if extractor == "" {
		return DefaultKey
	}

	if extractor == "ip" {
		if clientIP != "" {
			return clientIP
		}
		return DefaultKey
	}

	if name, ok := strings.CutPrefix(extractor, "header:"); ok {
		name = strings.TrimSpace(name)
		for k, v := range headers {
			if strings.EqualFold(k, name) && v != "" {
				return v
			}
		}
		l.logger.Debug("header not found for rate limit key, using default", zap.String("header", name))
		return DefaultKey
	}

	if path, ok := strings.CutPrefix(extractor, "body:"); ok {
		path = strings.TrimSpace(path)
		if v := nestedValue(body, path); v != nil {
			return fmt.Sprintf("%v", v)
		}
		l.logger.Debug("body field not found for rate limit key, using default", zap.String("field", path))
		return DefaultKey
	}

	l.logger.Warn("unsupported key extractor, using default", zap.String("extractor", keyExtractor))
	return DefaultKey
}

// MatchURL — упрощенный glob-диалект для скоупинга лимитов:
// '.' литеральна, '**' матчит через сегменты пути, '*' — внутри сегмента.
// Пустой паттерн матчит всё; сам матч — по всей строке.
func (l *Limiter) MatchURL(url, pattern string) bool {
	if pattern == "" {
		return true
	}
	if url == "" {
		return false
	}

	regex := globToRegex(pattern)
	matched, err := regexp.MatchString("^"+regex+"$", url)
	if err != nil {
		l.logger.Warn("url pattern match failed",
			zap.String("pattern", pattern), zap.String("url", url), zap.Error(err))
		return false
	}
	return matched
}

// globToRegex переводит glob-паттерн в регулярку. '**' заменяется до '*',
// чтобы одиночная звездочка не съела двойную.
func globToRegex(pattern string) string {
	r := strings.ReplaceAll(pattern, ".", `\.`)
	r = strings.ReplaceAll(r, "**", "\x00")
	r = strings.ReplaceAll(r, "*", "[^/]*")
	r = strings.ReplaceAll(r, "\x00", ".*")
	return r
}

func nestedValue(m map[string]interface{}, path string) interface{} {
	if m == nil || path == "" {
		return nil
	}
	var current interface{} = m
	for _, part := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = asMap[part]
		if current == nil {
			return nil
		}
	}
	return current
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		var n int64
		fmt.Sscan(t, &n)
		return n
	default:
		return 0
	}
}
