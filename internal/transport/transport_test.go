package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	received []string
}

func (h *recordingHandler) HandleEvent(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, string(data))
}

func (h *recordingHandler) Received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.received...)
}

type panickingHandler struct{}

func (panickingHandler) HandleEvent([]byte) { panic("boom") }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnvelope_RoundTrip(t *testing.T) {
	msg, err := EncodeEnvelope("notification.new", map[string]any{"id": "n-1", "type": "like"})
	require.NoError(t, err)

	env, err := DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, "notification.new", env.Event)
	assert.JSONEq(t, `{"id":"n-1","type":"like"}`, string(env.Data))
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	for _, msg := range []string{"", "plain text", `{"data": {}}`, `{"event": 3}`} {
		_, err := DecodeEnvelope([]byte(msg))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, msg)
	}
}

func TestMemory_ConnectIsIdempotent(t *testing.T) {
	m := NewMemory(discardLogger())
	assert.False(t, m.IsConnectionOpen())

	require.NoError(t, m.Connect(t.Context()))
	require.NoError(t, m.Connect(t.Context()))
	assert.True(t, m.IsConnectionOpen())
	assert.Equal(t, 2, m.ConnectCalls())

	require.NoError(t, m.Close())
	assert.False(t, m.IsConnectionOpen())
}

func TestMemory_ConnectFailure(t *testing.T) {
	m := NewMemory(discardLogger())
	m.FailConnect(errors.New("network down"))

	assert.Error(t, m.Connect(t.Context()))
	assert.False(t, m.IsConnectionOpen())

	m.FailConnect(nil)
	assert.NoError(t, m.Connect(t.Context()))
}

func TestMemory_OnOffByIdentity(t *testing.T) {
	m := NewMemory(discardLogger())
	require.NoError(t, m.Connect(t.Context()))

	a := &recordingHandler{}
	b := &recordingHandler{}
	m.On("notification.new", a)
	m.On("notification.new", b)
	m.On("notification.new", a) // no dedup at this layer
	assert.Equal(t, 3, m.HandlerCount("notification.new"))

	assert.Equal(t, 3, m.Emit("notification.new", []byte(`1`)))
	assert.Equal(t, []string{"1", "1"}, a.Received())
	assert.Equal(t, []string{"1"}, b.Received())

	m.Off("notification.new", a)
	assert.Equal(t, 2, m.HandlerCount("notification.new"))
	m.Off("notification.new", &recordingHandler{}) // unknown reference is a no-op
	assert.Equal(t, 2, m.HandlerCount("notification.new"))

	m.Off("notification.new", a)
	m.Off("notification.new", b)
	assert.Equal(t, 0, m.HandlerCount("notification.new"))
	assert.Equal(t, 0, m.Emit("notification.new", []byte(`2`)))
}

func TestMemory_DeliveryOrderAndIsolation(t *testing.T) {
	m := NewMemory(discardLogger())
	require.NoError(t, m.Connect(t.Context()))

	h := &recordingHandler{}
	m.On("notification.new", panickingHandler{})
	m.On("notification.new", h)
	m.On("other.event", &recordingHandler{})

	for _, payload := range []string{`"a"`, `"b"`, `"c"`} {
		assert.NotPanics(t, func() { m.Emit("notification.new", []byte(payload)) })
	}
	assert.Equal(t, []string{`"a"`, `"b"`, `"c"`}, h.Received())
}

func TestMemory_ClosedDropsEvents(t *testing.T) {
	m := NewMemory(discardLogger())
	h := &recordingHandler{}
	m.On("notification.new", h)

	assert.Equal(t, 0, m.Emit("notification.new", []byte(`{}`)))
	assert.Empty(t, h.Received())
}

func TestMemory_EmitEnvelope(t *testing.T) {
	m := NewMemory(discardLogger())
	require.NoError(t, m.Connect(t.Context()))
	h := &recordingHandler{}
	m.On("notification.new", h)

	msg, err := EncodeEnvelope("notification.new", map[string]string{"type": "reply"})
	require.NoError(t, err)

	n, err := m.EmitEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"type":"reply"}`, h.Received()[0])

	_, err = m.EmitEnvelope([]byte("junk"))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "notifications:42", ChannelFor("", "42"))
	assert.Equal(t, "campus:u:42", ChannelFor("campus:u:", "42"))
}

func TestRedis_HandleMessage(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer func() { _ = client.Close() }()

	r := NewRedis(client, ChannelFor("", "7"), discardLogger())
	h := &recordingHandler{}
	r.On("notification.new", h)

	msg, err := EncodeEnvelope("notification.new", map[string]string{"id": "1"})
	require.NoError(t, err)

	r.handleMessage(msg)
	r.handleMessage([]byte("not an envelope"))
	r.handleMessage([]byte(`{"event":"presence.update","data":{}}`))

	require.Len(t, h.Received(), 1)
	assert.JSONEq(t, `{"id":"1"}`, h.Received()[0])

	r.Off("notification.new", h)
	r.handleMessage(msg)
	assert.Len(t, h.Received(), 1)
}

func TestRedis_ConnectFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = client.Close() }()

	r := NewRedis(client, "notifications:7", discardLogger(), WithRetry(0, 0))
	err := r.Connect(t.Context())

	assert.ErrorIs(t, err, ErrConnect)
	assert.False(t, r.IsConnectionOpen())
	assert.False(t, r.isConnecting(), "no retries when disabled")
	assert.NoError(t, r.Close())
}

// silentListener accepts connections and never answers, like a server
// behind a black-holed route.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestRedis_ConnectDoesNotBlockOtherCalls(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        silentListener(t),
		MaxRetries:  -1,
		ReadTimeout: 10 * time.Second,
	})
	defer func() { _ = client.Close() }()

	r := NewRedis(client, "notifications:7", discardLogger(), WithRetry(0, 0))

	done := make(chan error, 1)
	go func() { done <- r.Connect(t.Context()) }()
	require.Eventually(t, r.isConnecting, time.Second, 5*time.Millisecond)

	start := time.Now()
	assert.False(t, r.IsConnectionOpen())
	assert.NoError(t, r.Connect(t.Context()), "a second Connect joins the one in flight")
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Close cancels the hung subscribe
	start = time.Now()
	require.NoError(t, r.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnect)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Close")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, r.isConnecting())
}

func refusingClient(dials *atomic.Int64) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       "127.0.0.1:1",
		MaxRetries: -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			dials.Add(1)
			return nil, errors.New("connection refused")
		},
	})
}

func TestRedis_RetriesAfterFailedConnect(t *testing.T) {
	tests := []struct {
		name string
		end  func(r *Redis, cancel context.CancelFunc)
	}{
		{"stopped by Close", func(r *Redis, _ context.CancelFunc) { assert.NoError(t, r.Close()) }},
		{"stopped by context", func(_ *Redis, cancel context.CancelFunc) { cancel() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dials atomic.Int64
			client := refusingClient(&dials)
			defer func() { _ = client.Close() }()

			r := NewRedis(client, "notifications:7", discardLogger(), WithRetry(5*time.Millisecond, 20*time.Millisecond))
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			assert.ErrorIs(t, r.Connect(ctx), ErrConnect)
			assert.True(t, r.isConnecting())
			assert.NoError(t, r.Connect(ctx), "retries already own the connection")

			require.Eventually(t, func() bool { return r.Attempts() >= 3 }, 2*time.Second, 5*time.Millisecond)
			assert.False(t, r.IsConnectionOpen())

			tt.end(r, cancel)
			require.Eventually(t, func() bool { return !r.isConnecting() }, time.Second, 5*time.Millisecond)

			settled := r.Attempts()
			time.Sleep(60 * time.Millisecond)
			assert.LessOrEqual(t, r.Attempts(), settled+1, "retries stop")
		})
	}
}
