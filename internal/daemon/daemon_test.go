package daemon

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/campusbell/internal/audio"
	"github.com/jmylchreest/campusbell/internal/cache"
	"github.com/jmylchreest/campusbell/internal/config"
	"github.com/jmylchreest/campusbell/internal/model"
	"github.com/jmylchreest/campusbell/internal/store"
	"github.com/jmylchreest/campusbell/internal/toast"
	"github.com/jmylchreest/campusbell/internal/transport"
)

type fakeOutput struct {
	mu     sync.Mutex
	played []beep.Streamer
}

func (o *fakeOutput) SampleRate() beep.SampleRate { return audio.DefaultSampleRate }
func (o *fakeOutput) Lock()                       {}
func (o *fakeOutput) Unlock()                     {}
func (o *fakeOutput) Close()                      {}

func (o *fakeOutput) Play(s beep.Streamer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, s)
}

func (o *fakeOutput) Played() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.played)
}

func memoryConfig() *config.DaemonConfig {
	cfg := config.DefaultDaemonConfig()
	cfg.Transport.Kind = config.KindMemory
	cfg.Cache.Kind = config.KindMemory
	cfg.Toast.Backend = config.ToastBackendLog
	return cfg
}

type harness struct {
	daemon  *Daemon
	memory  *transport.Memory
	cache   *cache.Memory
	toaster *fakeToaster
	output  *fakeOutput
	state   string
	done    chan error
	cancel  context.CancelFunc
	once    sync.Once
}

func startDaemon(t *testing.T, cfg *config.DaemonConfig, initial *store.SharedState) *harness {
	t.Helper()

	h := &harness{
		cache:   cache.NewMemory(discardLogger()),
		toaster: &fakeToaster{},
		output:  &fakeOutput{},
		state:   filepath.Join(t.TempDir(), "state.json"),
		done:    make(chan error, 1),
	}
	if initial != nil {
		require.NoError(t, store.SaveSharedStateTo(h.state, initial))
	}

	d, err := New(cfg, Options{
		StatePath: h.state,
		Version:   "test",
		Cache:     h.cache,
		Toaster:   h.toaster,
		OutputFactory: func(beep.SampleRate) (audio.Output, error) {
			return h.output, nil
		},
	}, discardLogger())
	require.NoError(t, err)
	h.daemon = d

	mem, ok := d.Transport().(*transport.Memory)
	require.True(t, ok, "memory kind builds the in-process transport")
	h.memory = mem

	ctx, cancel := context.WithCancel(t.Context())
	h.cancel = cancel
	go func() { h.done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return d.Controller().Subscribed() && mem.IsConnectionOpen()
	}, 2*time.Second, 5*time.Millisecond)

	// The startup toast is the last step before Run blocks.
	if cfg.Toast.Enabled {
		require.Eventually(t, func() bool {
			return slices.Contains(h.shownTitles(), "campusbelld Started")
		}, 2*time.Second, 5*time.Millisecond)
	}

	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

func (h *harness) shownTitles() []string {
	var titles []string
	for _, s := range h.toaster.Shown() {
		titles = append(titles, s.message)
	}
	return titles
}

func (h *harness) emit(t *testing.T, data map[string]any) {
	t.Helper()
	msg, err := transport.EncodeEnvelope(model.EventNotificationNew, data)
	require.NoError(t, err)
	_, err = h.memory.EmitEnvelope(msg)
	require.NoError(t, err)
}

func TestDaemon_DeliversEvents(t *testing.T) {
	h := startDaemon(t, memoryConfig(), nil)

	h.emit(t, map[string]any{"id": 1, "to_user_id": 7, "type": "comment", "title": "New comment", "priority": "low"})

	assert.Equal(t, int64(1), h.cache.Generation(model.CacheTagNotifications))
	assert.Equal(t, 1, h.output.Played())

	assert.Contains(t, h.shownTitles(), "New comment")
}

func TestDaemon_MuteStateIsApplied(t *testing.T) {
	h := startDaemon(t, memoryConfig(), nil)
	ctrl := h.daemon.Controller()
	require.True(t, ctrl.SoundEnabled())

	state := store.DefaultSharedState()
	state.SetSoundMuted(true, store.MuteTriggerUser, "test")
	require.NoError(t, store.SaveSharedStateTo(h.state, state))

	require.Eventually(t, func() bool { return !ctrl.SoundEnabled() }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, ctrl.ToastEnabled())

	h.emit(t, map[string]any{"id": 2, "type": "like", "title": "Liked"})
	assert.Equal(t, 0, h.output.Played(), "muted sound plays nothing")
	assert.Equal(t, int64(1), h.cache.Generation(model.CacheTagNotifications))

	require.Eventually(t, func() bool {
		return slices.Contains(h.shownTitles(), "Notification sound muted")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemon_MutedAtStartup(t *testing.T) {
	state := store.DefaultSharedState()
	state.SetToastsMuted(true, store.MuteTriggerUser, "test")

	h := startDaemon(t, memoryConfig(), state)
	ctrl := h.daemon.Controller()

	assert.False(t, ctrl.ToastEnabled())
	assert.True(t, ctrl.SoundEnabled())

	h.emit(t, map[string]any{"id": 3, "type": "message", "title": "Hi"})
	assert.NotContains(t, h.shownTitles(), "Hi")
	assert.Equal(t, 1, h.output.Played())
}

func TestDaemon_ToastsDisabledByConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Toast.Enabled = false

	h := startDaemon(t, cfg, nil)
	ctrl := h.daemon.Controller()

	assert.False(t, ctrl.ToastEnabled(), "config switch wins over unmuted state")
	assert.True(t, ctrl.SoundEnabled())
	assert.Empty(t, h.toaster.Shown(), "internal toasts follow toast.enabled")
}

func TestDaemon_ShutdownUnsubscribes(t *testing.T) {
	h := startDaemon(t, memoryConfig(), nil)
	h.stop()

	assert.False(t, h.daemon.Controller().Subscribed())
	assert.False(t, h.memory.IsConnectionOpen())
	assert.Equal(t, 0, h.memory.HandlerCount(model.EventNotificationNew))
}

func TestDaemon_ApplyConfig(t *testing.T) {
	h := startDaemon(t, memoryConfig(), nil)

	next := memoryConfig()
	next.Sound.Enabled = false
	next.Sound.Volume = 0.2
	h.daemon.applyConfig(next)

	assert.Same(t, next, h.daemon.Config())
	assert.False(t, h.daemon.Controller().SoundEnabled())
	assert.False(t, h.daemon.synth.Enabled())
	assert.Equal(t, 0.2, h.daemon.synth.Volume())
}

func TestDaemon_ApplyConfigEnablesSound(t *testing.T) {
	cfg := memoryConfig()
	cfg.Sound.Enabled = false
	h := startDaemon(t, cfg, nil)
	require.False(t, h.daemon.synth.Enabled())

	h.emit(t, map[string]any{"id": 1, "type": "message", "title": "Quiet"})
	assert.Equal(t, 0, h.output.Played())

	next := memoryConfig()
	next.Sound.Enabled = true
	h.daemon.applyConfig(next)

	assert.True(t, h.daemon.Controller().SoundEnabled())
	assert.True(t, h.daemon.synth.Enabled())

	h.emit(t, map[string]any{"id": 2, "type": "message", "title": "Loud"})
	assert.Equal(t, 1, h.output.Played())
}

func TestNew_RedisTransport(t *testing.T) {
	cfg := config.DefaultDaemonConfig()
	cfg.User.ID = "42"
	cfg.Transport.RedisURL = "redis://127.0.0.1:1/0"

	d, err := New(cfg, Options{
		StatePath: filepath.Join(t.TempDir(), "state.json"),
		Toaster:   toast.NewLogger(discardLogger()),
	}, discardLogger())
	require.NoError(t, err)
	defer d.shutdown()

	r, ok := d.Transport().(*transport.Redis)
	require.True(t, ok)
	assert.Equal(t, "notifications:42", r.Channel())
	assert.False(t, r.IsConnectionOpen(), "nothing connects before Run")
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := config.DefaultDaemonConfig()
	cfg.User.ID = "42"
	cfg.Transport.RedisURL = "redis://[::1"

	_, err := New(cfg, Options{StatePath: filepath.Join(t.TempDir(), "state.json")}, discardLogger())
	assert.ErrorContains(t, err, "transport client")
}
