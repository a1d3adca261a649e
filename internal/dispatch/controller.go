package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/campusbell/internal/model"
	"github.com/jmylchreest/campusbell/internal/toast"
	"github.com/jmylchreest/campusbell/internal/transport"
)

// ErrTransportConnect wraps a failed connection request made on activation.
var ErrTransportConnect = errors.New("transport connect failed")

// ViewActionLabel labels the single action attached to actionable toasts.
const ViewActionLabel = "View"

// State is the subscription state of a Controller.
type State int

const (
	Unsubscribed State = iota
	Subscribed
)

func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Transport is the push channel the controller subscribes to.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnectionOpen() bool
	On(event string, handler transport.Handler)
	Off(event string, handler transport.Handler)
}

// Cache invalidates cached queries by tag.
type Cache interface {
	Invalidate(ctx context.Context, tag string) error
}

// Tones plays audible cues. Implementations swallow their own errors.
type Tones interface {
	PlayTone(category string)
	PlayCustomSound(path string)
}

// Navigator opens the notifications location.
type Navigator interface {
	Navigate() error
}

// Deps are the controller's collaborators. Only Transport is required; a nil
// collaborator disables its channel.
type Deps struct {
	Transport Transport
	Cache     Cache
	Tones     Tones
	Toaster   toast.Toaster
	Navigator Navigator
}

// Config holds the runtime switches of a controller.
type Config struct {
	SoundEnabled bool
	ToastEnabled bool

	// CustomSounds maps an event type to a sound file played instead of its tone
	CustomSounds map[string]string
}

// DefaultConfig enables sound and toasts with no custom sounds.
func DefaultConfig() Config {
	return Config{
		SoundEnabled: true,
		ToastEnabled: true,
	}
}

// Controller manages one subscription and dispatches its events.
type Controller struct {
	deps   Deps
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	handler      *eventHandler
	customSounds map[string]string

	soundEnabled atomic.Bool
	toastEnabled atomic.Bool
	delivered    atomic.Uint64
}

// New creates an unsubscribed controller.
func New(deps Deps, cfg Config, logger *slog.Logger) (*Controller, error) {
	if deps.Transport == nil {
		return nil, errors.New("dispatch: transport is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		deps:         deps,
		logger:       logger,
		state:        Unsubscribed,
		customSounds: maps.Clone(cfg.CustomSounds),
	}
	c.soundEnabled.Store(cfg.SoundEnabled)
	c.toastEnabled.Store(cfg.ToastEnabled)
	return c, nil
}

// eventHandler is the single handler reference a controller registers. Its
// pointer identity is what Off matches.
type eventHandler struct {
	c   *Controller
	ctx context.Context
}

func (h *eventHandler) HandleEvent(data []byte) {
	if !h.c.current(h) {
		return
	}
	h.c.HandleEvent(h.ctx, data)
}

// Activate subscribes to notification events. It is a no-op while
// subscribed. A closed transport is asked to connect on its own goroutine;
// a failed request is logged and not retried. ctx scopes the connection
// request and every collaborator call made for delivered events.
func (c *Controller) Activate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Subscribed {
		return
	}

	t := c.deps.Transport
	if !t.IsConnectionOpen() {
		go c.connect(ctx)
	}

	h := &eventHandler{c: c, ctx: ctx}
	t.On(model.EventNotificationNew, h)
	c.handler = h
	c.state = Subscribed

	c.logger.Debug("dispatch activated", "event", model.EventNotificationNew)
}

// Deactivate removes the handler registered by Activate. It is a no-op while
// unsubscribed. Effects already started are not cancelled.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Subscribed {
		return
	}

	c.deps.Transport.Off(model.EventNotificationNew, c.handler)
	c.handler = nil
	c.state = Unsubscribed

	c.logger.Debug("dispatch deactivated", "event", model.EventNotificationNew)
}

// State returns the subscription state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribed reports whether the controller is subscribed.
func (c *Controller) Subscribed() bool {
	return c.State() == Subscribed
}

// SetSoundEnabled switches the audio channel.
func (c *Controller) SetSoundEnabled(enabled bool) {
	c.soundEnabled.Store(enabled)
}

// SoundEnabled reports whether the audio channel is on.
func (c *Controller) SoundEnabled() bool {
	return c.soundEnabled.Load()
}

// SetToastEnabled switches the visible channel.
func (c *Controller) SetToastEnabled(enabled bool) {
	c.toastEnabled.Store(enabled)
}

// ToastEnabled reports whether the visible channel is on.
func (c *Controller) ToastEnabled() bool {
	return c.toastEnabled.Load()
}

// SetCustomSounds replaces the event type to sound file mapping.
func (c *Controller) SetCustomSounds(sounds map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customSounds = maps.Clone(sounds)
}

// Delivered returns how many events have been decoded and dispatched.
func (c *Controller) Delivered() uint64 {
	return c.delivered.Load()
}

// HandleEvent dispatches one raw notification payload. It never panics.
func (c *Controller) HandleEvent(ctx context.Context, data []byte) {
	logger := c.logger.With("delivery", model.NewDeliveryID())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification dispatch panicked", "panic", r)
		}
	}()

	ev, err := model.Decode(data)
	if err != nil {
		logger.Warn("dropping notification", "error", err)
		return
	}
	c.delivered.Add(1)

	logger = logger.With("id", ev.ID.String(), "type", ev.Type)
	if len(ev.Ignored) > 0 {
		logger.Warn("ignoring mistyped notification fields", "fields", ev.Ignored)
	}
	logger.Debug("notification received",
		"priority", ev.Priority,
		"action_required", ev.ActionRequired,
		"created_at", ev.CreatedAtTime(),
	)

	if c.deps.Cache != nil {
		c.isolate(logger, "cache", func() error {
			return c.deps.Cache.Invalidate(ctx, model.CacheTagNotifications)
		})
	}

	if c.deps.Tones != nil && c.soundEnabled.Load() {
		c.isolate(logger, "sound", func() error {
			c.playSound(ev)
			return nil
		})
	}

	if c.deps.Toaster != nil && c.toastEnabled.Load() && ev.HasTitle() {
		c.isolate(logger, "toast", func() error {
			return c.deps.Toaster.Show(ctx, ev.Title, c.toastOptions(ev))
		})
	}
}

func (c *Controller) playSound(ev *model.NotificationEvent) {
	c.mu.Lock()
	path := c.customSounds[ev.Type]
	c.mu.Unlock()

	if path != "" {
		c.deps.Tones.PlayCustomSound(path)
		return
	}
	c.deps.Tones.PlayTone(ev.Category())
}

func (c *Controller) toastOptions(ev *model.NotificationEvent) toast.Options {
	opts := toast.Options{
		Variant:     toast.VariantFor(ev.Priority),
		Duration:    toast.DefaultDuration,
		Description: ev.Message,
	}
	if ev.ActionRequired {
		opts.Action = &toast.Action{
			Label:      ViewActionLabel,
			OnActivate: c.navigate,
		}
	}
	return opts
}

func (c *Controller) navigate() {
	if c.deps.Navigator == nil {
		c.logger.Warn("no navigator configured for toast action")
		return
	}
	if err := c.deps.Navigator.Navigate(); err != nil {
		c.logger.Warn("failed to open notifications", "error", err)
	}
}

func (c *Controller) connect(ctx context.Context) {
	if err := c.deps.Transport.Connect(ctx); err != nil {
		c.logger.Warn("transport connect failed", "error", fmt.Errorf("%w: %w", ErrTransportConnect, err))
	}
}

func (c *Controller) current(h *eventHandler) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler == h
}

// isolate runs one side-effect channel, logging its error or panic.
func (c *Controller) isolate(logger *slog.Logger, channel string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification channel panicked", "channel", channel, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		logger.Warn("notification channel failed", "channel", channel, "error", err)
	}
}
