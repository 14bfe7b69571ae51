package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeScripter подменяет Redis заранее заданным ответом Lua-скрипта.
type fakeScripter struct {
	reply []interface{}
	err   error

	lastKeys []string
	lastArgs []interface{}
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.result(keys, args)
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.result(keys, args)
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.result(keys, args)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.result(keys, args)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func (f *fakeScripter) result(keys []string, args []interface{}) *redis.Cmd {
	f.lastKeys = keys
	f.lastArgs = args
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	return redis.NewCmdResult(f.reply, nil)
}

func TestLimiter_CheckLimit(t *testing.T) {
	t.Run("under limit allows", func(t *testing.T) {
		fake := &fakeScripter{reply: []interface{}{int64(1), int64(3)}}
		l := NewLimiter(fake, zap.NewNop())

		out := l.CheckLimit(context.Background(), "p1:10.0.0.1", 60, 100)
		assert.True(t, out.Allowed)
		assert.Equal(t, int64(3), out.CurrentCount)
		assert.Equal(t, int64(97), out.Remaining)
		assert.Empty(t, out.Reason)
		assert.False(t, out.ResetTime.IsZero())
	})

	t.Run("over limit denies with reason", func(t *testing.T) {
		fake := &fakeScripter{reply: []interface{}{int64(0), int64(100)}}
		l := NewLimiter(fake, zap.NewNop())

		out := l.CheckLimit(context.Background(), "p1:10.0.0.1", 60, 100)
		assert.False(t, out.Allowed)
		assert.Equal(t, int64(100), out.CurrentCount)
		assert.Equal(t, int64(0), out.Remaining)
		assert.Contains(t, out.Reason, "rate exceeded")
	})

	t.Run("redis failure degrades to allow", func(t *testing.T) {
		fake := &fakeScripter{err: errors.New("connection refused")}
		l := NewLimiter(fake, zap.NewNop())

		out := l.CheckLimit(context.Background(), "p1:x", 60, 50)
		assert.True(t, out.Allowed)
		assert.Equal(t, int64(50), out.Remaining)
	})

	t.Run("malformed reply degrades to allow", func(t *testing.T) {
		fake := &fakeScripter{reply: []interface{}{int64(1)}}
		l := NewLimiter(fake, zap.NewNop())

		out := l.CheckLimit(context.Background(), "p1:x", 60, 50)
		assert.True(t, out.Allowed)
	})

	t.Run("key gets namespaced prefix", func(t *testing.T) {
		fake := &fakeScripter{reply: []interface{}{int64(1), int64(1)}}
		l := NewLimiter(fake, zap.NewNop())

		l.CheckLimit(context.Background(), "p1:tenant-5", 60, 10)
		assert.Len(t, fake.lastKeys, 1)
		assert.Contains(t, fake.lastKeys[0], "p1:tenant-5")
	})
}

func TestLimiter_ExtractKey(t *testing.T) {
	l := NewLimiter(&fakeScripter{}, zap.NewNop())

	headers := map[string]string{"X-Tenant-Id": "tenant-5"}
	body := map[string]interface{}{
		"user": map[string]interface{}{"id": float64(42)},
	}

	t.Run("ip extractor", func(t *testing.T) {
		assert.Equal(t, "10.1.2.3", l.ExtractKey("ip", headers, body, "10.1.2.3"))
		assert.Equal(t, DefaultKey, l.ExtractKey("ip", headers, body, ""))
	})

	t.Run("header extractor is case insensitive", func(t *testing.T) {
		assert.Equal(t, "tenant-5", l.ExtractKey("header:x-tenant-id", headers, body, ""))
		assert.Equal(t, DefaultKey, l.ExtractKey("header:x-missing", headers, body, ""))
	})

	t.Run("body extractor walks dotted path", func(t *testing.T) {
		assert.Equal(t, "42", l.ExtractKey("body:user.id", headers, body, ""))
		assert.Equal(t, DefaultKey, l.ExtractKey("body:user.missing", headers, body, ""))
	})

	t.Run("empty and unknown extractors fall back to default", func(t *testing.T) {
		assert.Equal(t, DefaultKey, l.ExtractKey("", headers, body, "10.1.2.3"))
		assert.Equal(t, DefaultKey, l.ExtractKey("session", headers, body, ""))
	})
}

func TestLimiter_MatchURL(t *testing.T) {
	l := NewLimiter(&fakeScripter{}, zap.NewNop())

	t.Run("double star crosses path segments", func(t *testing.T) {
		assert.True(t, l.MatchURL("https://api.example.com/v1/users/42/orders", "https://api.example.com/**"))
		assert.True(t, l.MatchURL("/api/v1/users/42", "/api/**"))
	})

	t.Run("single star stays within segment", func(t *testing.T) {
		assert.True(t, l.MatchURL("/api/v1/users", "/api/*/users"))
		assert.False(t, l.MatchURL("/api/v1/internal/users", "/api/*/users"))
	})

	t.Run("dot is literal", func(t *testing.T) {
		assert.True(t, l.MatchURL("api.example.com", "api.example.com"))
		assert.False(t, l.MatchURL("apiXexample.com", "api.example.com"))
	})

	t.Run("empty pattern matches anything, empty url nothing", func(t *testing.T) {
		assert.True(t, l.MatchURL("/whatever", ""))
		assert.False(t, l.MatchURL("", "/api/**"))
	})
}
