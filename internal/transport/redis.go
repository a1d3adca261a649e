package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix prefixes the per-user notification channel.
const DefaultChannelPrefix = "notifications:"

// ErrConnect is returned when the transport cannot be opened.
var ErrConnect = errors.New("transport connect failed")

// ChannelFor returns the pub/sub channel carrying events for a user.
func ChannelFor(prefix, userID string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return prefix + userID
}

// Default resubscribe backoff after a failed Connect.
const (
	DefaultRetryInitial = 500 * time.Millisecond
	DefaultRetryMax     = 30 * time.Second
)

// Redis consumes event envelopes from a Redis pub/sub channel.
// A failed Connect keeps retrying in the background with exponential backoff
// until it succeeds, its context ends or the transport is closed. Once
// subscribed, reconnection is handled by go-redis.
type Redis struct {
	mu       sync.Mutex
	client   *redis.Client
	channel  string
	logger   *slog.Logger
	handlers *handlerSet

	retryInitial time.Duration
	retryMax     time.Duration

	pubsub     *redis.PubSub
	inflight   *redis.PubSub
	connecting bool
	// closed by Close to end an in-flight connect and its retries
	stop chan struct{}

	open     atomic.Bool
	attempts atomic.Int64
}

// RedisOption configures a Redis transport.
type RedisOption func(*Redis)

// WithRetry sets the resubscribe backoff. A non-positive initial delay
// disables background retries.
func WithRetry(initial, ceiling time.Duration) RedisOption {
	return func(r *Redis) {
		r.retryInitial = initial
		r.retryMax = ceiling
	}
}

// NewRedis creates a transport for one channel. Nothing is subscribed
// until Connect.
func NewRedis(client *redis.Client, channel string, logger *slog.Logger, opts ...RedisOption) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Redis{
		client:       client,
		channel:      channel,
		logger:       logger,
		handlers:     newHandlerSet(),
		retryInitial: DefaultRetryInitial,
		retryMax:     DefaultRetryMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retryMax < r.retryInitial {
		r.retryMax = r.retryInitial
	}
	return r
}

// Channel returns the subscribed channel name.
func (r *Redis) Channel() string {
	return r.channel
}

// Connect subscribes to the channel and starts the delivery loop.
// It returns nil at once while the subscription is open or another Connect
// is in progress. The network round trip runs without the transport lock,
// so IsConnectionOpen and Close never wait on it.
//
// When the first attempt fails its error is returned and, unless retries are
// disabled, further attempts continue in the background until ctx is done or
// Close is called.
func (r *Redis) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.open.Load() || r.connecting {
		r.mu.Unlock()
		return nil
	}
	r.connecting = true
	stop := make(chan struct{})
	r.stop = stop
	r.mu.Unlock()

	err := r.subscribe(ctx, stop)
	if err == nil {
		return nil
	}

	if r.retryInitial <= 0 || errors.Is(err, errStopped) {
		r.endConnecting(stop)
		return err
	}
	r.logger.Warn("redis subscribe failed, retrying in background",
		"channel", r.channel, "retry_in", r.retryInitial, "error", err)
	go r.retry(ctx, stop)
	return err
}

// Attempts returns how many subscribe attempts have been made.
func (r *Redis) Attempts() int64 {
	return r.attempts.Load()
}

// retry resubscribes with exponential backoff.
func (r *Redis) retry(ctx context.Context, stop chan struct{}) {
	delay := r.retryInitial
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.endConnecting(stop)
			r.logger.Debug("redis resubscribe abandoned", "channel", r.channel, "error", ctx.Err())
			return
		case <-stop:
			return
		case <-timer.C:
		}
		select {
		case <-stop:
			return
		default:
		}

		err := r.subscribe(ctx, stop)
		if err == nil {
			return
		}
		if errors.Is(err, errStopped) {
			return
		}

		delay = min(delay*2, r.retryMax)
		r.logger.Warn("redis subscribe failed",
			"channel", r.channel, "attempt", r.attempts.Load(), "retry_in", delay, "error", err)
		timer.Reset(delay)
	}
}

var errStopped = fmt.Errorf("%w: closed while subscribing", ErrConnect)

// subscribe makes one attempt. On success the subscription is installed
// unless Close ran meanwhile.
func (r *Redis) subscribe(ctx context.Context, stop chan struct{}) error {
	r.attempts.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	pubsub := r.client.Subscribe(ctx, r.channel)

	// Close interrupts the confirmation read by closing the in-flight pubsub
	r.mu.Lock()
	if r.stop != stop {
		r.mu.Unlock()
		_ = pubsub.Close()
		return errStopped
	}
	r.inflight = pubsub
	r.mu.Unlock()

	// Wait for the subscription confirmation before reporting success
	_, err := pubsub.Receive(ctx)

	r.mu.Lock()
	if r.inflight == pubsub {
		r.inflight = nil
	}
	if err == nil && r.stop != stop {
		err = errStopped
	}
	if err != nil {
		r.mu.Unlock()
		_ = pubsub.Close()
		if errors.Is(err, errStopped) {
			return err
		}
		return fmt.Errorf("%w: subscribe %s: %v", ErrConnect, r.channel, err)
	}
	r.pubsub = pubsub
	r.connecting = false
	r.stop = nil
	r.open.Store(true)
	r.mu.Unlock()

	go r.readLoop(pubsub)

	r.logger.Info("redis transport connected", "channel", r.channel, "attempt", r.attempts.Load())
	return nil
}

func (r *Redis) endConnecting(stop chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == stop {
		r.connecting = false
		r.stop = nil
	}
}

// IsConnectionOpen reports whether the subscription is live.
func (r *Redis) IsConnectionOpen() bool {
	return r.open.Load()
}

// isConnecting reports whether a Connect or its retries are in flight.
func (r *Redis) isConnecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connecting
}

// On registers handler for event.
func (r *Redis) On(event string, handler Handler) {
	r.handlers.on(event, handler)
}

// Off removes one registration of handler for event.
func (r *Redis) Off(event string, handler Handler) {
	r.handlers.off(event, handler)
}

// Publish sends an event to the channel. Used by tooling to inject events.
func (r *Redis) Publish(ctx context.Context, event string, data any) error {
	msg, err := EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}

// Close ends the subscription and any pending retries. Registered handlers
// are kept so a later Connect resumes delivery.
func (r *Redis) Close() error {
	r.mu.Lock()
	pubsub := r.pubsub
	inflight := r.inflight
	r.pubsub = nil
	r.inflight = nil
	r.open.Store(false)
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.connecting = false
	r.mu.Unlock()

	if inflight != nil {
		_ = inflight.Close()
	}

	if pubsub == nil {
		return nil
	}
	return pubsub.Close()
}

// readLoop delivers messages one at a time, in channel order.
func (r *Redis) readLoop(pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		r.handleMessage([]byte(msg.Payload))
	}

	r.mu.Lock()
	if r.pubsub == pubsub {
		r.pubsub = nil
		r.open.Store(false)
	}
	r.mu.Unlock()

	r.logger.Debug("redis transport delivery loop ended", "channel", r.channel)
}

func (r *Redis) handleMessage(message []byte) {
	env, err := DecodeEnvelope(message)
	if err != nil {
		r.logger.Warn("dropping channel message", "channel", r.channel, "error", err)
		return
	}

	n := r.handlers.dispatch(r.logger, env.Event, env.Data)
	r.logger.Debug("event delivered", "event", env.Event, "handlers", n)
}
