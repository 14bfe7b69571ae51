package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"go.uber.org/zap"
)

// Тесты этого файла гоняют настоящий Lua-скрипт окна против miniredis:
// математика "вычистить-посчитать-добавить" живет внутри скрипта и
// фейковым Scripter-ом не покрывается.

func newWindowLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, zap.NewNop()), mr, client
}

func TestCheckLimit_WindowCounting(t *testing.T) {
	limiter, _, _ := newWindowLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		out := limiter.CheckLimit(ctx, "agent-1", 60, 3)
		require.True(t, out.Allowed, "request %d should pass", i)
		assert.Equal(t, int64(i), out.CurrentCount)
		assert.Equal(t, int64(3-i), out.Remaining)
	}

	out := limiter.CheckLimit(ctx, "agent-1", 60, 3)
	assert.False(t, out.Allowed)
	assert.Equal(t, int64(3), out.CurrentCount)
	assert.Equal(t, int64(0), out.Remaining)
	assert.Contains(t, out.Reason, "request rate exceeded")
}

func TestCheckLimit_EvictsEntriesOutsideWindow(t *testing.T) {
	limiter, _, client := newWindowLimiter(t)
	ctx := context.Background()
	redisKey := infra.RedisKeyRateLimitPrefix + "agent-2"

	// Запись двумя окнами раньше не должна занимать слот
	stale := time.Now().Add(-2 * time.Minute).UnixMilli()
	require.NoError(t, client.ZAdd(ctx, redisKey, redis.Z{Score: float64(stale), Member: "stale"}).Err())

	out := limiter.CheckLimit(ctx, "agent-2", 60, 1)
	require.True(t, out.Allowed)
	assert.Equal(t, int64(1), out.CurrentCount)

	// Старый элемент вычищен, в окне остался только свежий
	assert.Equal(t, int64(1), client.ZCard(ctx, redisKey).Val())
	assert.ErrorIs(t, client.ZScore(ctx, redisKey, "stale").Err(), redis.Nil)

	out = limiter.CheckLimit(ctx, "agent-2", 60, 1)
	assert.False(t, out.Allowed)
}

func TestCheckLimit_KeyCarriesWindowTTL(t *testing.T) {
	limiter, mr, _ := newWindowLimiter(t)

	out := limiter.CheckLimit(context.Background(), "agent-3", 60, 10)
	require.True(t, out.Allowed)

	assert.Equal(t, 60*time.Second, mr.TTL(infra.RedisKeyRateLimitPrefix+"agent-3"))
}

func TestCheckLimit_IsolatesKeys(t *testing.T) {
	limiter, _, _ := newWindowLimiter(t)
	ctx := context.Background()

	require.True(t, limiter.CheckLimit(ctx, "agent-4", 60, 1).Allowed)
	require.False(t, limiter.CheckLimit(ctx, "agent-4", 60, 1).Allowed)

	// Исчерпанный лимит соседа не трогает другой ключ
	assert.True(t, limiter.CheckLimit(ctx, "agent-5", 60, 1).Allowed)
}
