package cache

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemory_Invalidate(t *testing.T) {
	m := NewMemory(discardLogger())
	assert.Equal(t, int64(0), m.Generation("notifications"))

	require.NoError(t, m.Invalidate(t.Context(), "notifications"))
	require.NoError(t, m.Invalidate(t.Context(), "notifications"))
	require.NoError(t, m.Invalidate(t.Context(), "profile"))

	assert.Equal(t, int64(2), m.Generation("notifications"))
	assert.Equal(t, int64(1), m.Generation("profile"))
	assert.Equal(t, []string{"notifications", "notifications", "profile"}, m.Invalidations())
}

func TestMemory_EmptyTag(t *testing.T) {
	m := NewMemory(nil)
	assert.ErrorIs(t, m.Invalidate(t.Context(), ""), ErrEmptyTag)
	assert.Empty(t, m.Invalidations())
}

func TestMemory_ConcurrentInvalidate(t *testing.T) {
	m := NewMemory(discardLogger())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Invalidate(t.Context(), "notifications")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Generation("notifications"))
}

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_Defaults(t *testing.T) {
	r := NewRedis(unreachableClient(t), RedisConfig{}, discardLogger())
	assert.Equal(t, DefaultKeyPrefix, r.cfg.KeyPrefix)
	assert.Equal(t, DefaultInvalidationChannel, r.cfg.InvalidationChannel)
	assert.Equal(t, "campusbell:cache:notifications:gen", r.GenerationKey("notifications"))

	custom := NewRedis(unreachableClient(t), RedisConfig{KeyPrefix: "q:"}, nil)
	assert.Equal(t, "q:notifications:gen", custom.GenerationKey("notifications"))
}

func TestRedis_ErrorsAreReturned(t *testing.T) {
	r := NewRedis(unreachableClient(t), RedisConfig{}, discardLogger())

	assert.ErrorIs(t, r.Invalidate(t.Context(), ""), ErrEmptyTag)
	assert.Error(t, r.Invalidate(t.Context(), "notifications"))

	_, err := r.Generation(t.Context(), "notifications")
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"url", "redis://127.0.0.1:1/0"},
		{"host port", "127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(t.Context(), tt.url, 2, 10*time.Millisecond)
			assert.ErrorIs(t, err, ErrRedisNotReady)
		})
	}

	_, err := Connect(t.Context(), "redis://[bad", 1, 0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRedisNotReady)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("redis://:secret@cache.campus:6380/3")
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	opts := client.Options()
	assert.Equal(t, "cache.campus:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	bare, err := NewClient("localhost:6379")
	require.NoError(t, err)
	defer func() { _ = bare.Close() }()
	assert.Equal(t, "localhost:6379", bare.Options().Addr)
}

func TestNewClient_DialTimeout(t *testing.T) {
	client, err := NewClient("localhost:6379", WithDialTimeout(750*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	assert.Equal(t, 750*time.Millisecond, client.Options().DialTimeout)

	unchanged, err := NewClient("localhost:6379", WithDialTimeout(0))
	require.NoError(t, err)
	defer func() { _ = unchanged.Close() }()
	assert.NotZero(t, unchanged.Options().DialTimeout)
}
