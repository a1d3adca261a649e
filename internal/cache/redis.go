package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Defaults for the shared cache.
const (
	DefaultKeyPrefix           = "campusbell:cache:"
	DefaultInvalidationChannel = "campusbell:cache:invalidate"
)

var (
	// ErrEmptyTag is returned when invalidating without a tag.
	ErrEmptyTag = errors.New("cache tag is empty")

	// ErrRedisNotReady is returned when the server cannot be reached.
	ErrRedisNotReady = errors.New("redis is not ready")
)

// RedisConfig configures the shared cache.
type RedisConfig struct {
	KeyPrefix           string
	InvalidationChannel string
}

// Redis bumps tag generations in Redis and broadcasts the invalidated tag.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
	logger *slog.Logger
}

// NewRedis creates a shared cache invalidator.
func NewRedis(client redis.UniversalClient, cfg RedisConfig, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.InvalidationChannel == "" {
		cfg.InvalidationChannel = DefaultInvalidationChannel
	}
	return &Redis{client: client, cfg: cfg, logger: logger}
}

// GenerationKey returns the key holding the generation counter of tag.
func (r *Redis) GenerationKey(tag string) string {
	return r.cfg.KeyPrefix + tag + ":gen"
}

// Invalidate increments the tag's generation and publishes the tag on the
// invalidation channel in a single round trip.
func (r *Redis) Invalidate(ctx context.Context, tag string) error {
	if tag == "" {
		return ErrEmptyTag
	}

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, r.GenerationKey(tag))
	pipe.Publish(ctx, r.cfg.InvalidationChannel, tag)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate cache tag %q: %w", tag, err)
	}

	r.logger.Debug("cache tag invalidated", "tag", tag, "generation", incr.Val())
	return nil
}

// Generation returns the current generation of tag; zero if never invalidated.
func (r *Redis) Generation(ctx context.Context, tag string) (int64, error) {
	gen, err := r.client.Get(ctx, r.GenerationKey(tag)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation %q: %w", tag, err)
	}
	return gen, nil
}

// NewClient creates a client from a redis:// URL or a bare host:port.
// No connection is made until the first command.
func NewClient(url string, opts ...ClientOption) (*redis.Client, error) {
	options := &redis.Options{Addr: url}
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		options = parsed
	}
	for _, opt := range opts {
		opt(options)
	}
	return redis.NewClient(options), nil
}

// ClientOption adjusts the options of a client built by NewClient.
type ClientOption func(*redis.Options)

// WithDialTimeout bounds how long opening a connection may take.
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(o *redis.Options) {
		if timeout > 0 {
			o.DialTimeout = timeout
		}
	}
}

// Connect creates a client with NewClient and pings it, retrying until
// attempts run out or ctx is done.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := range attempts {
		client, err := NewClient(url)
		if err != nil {
			return nil, err
		}

		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}
