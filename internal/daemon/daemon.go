package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/jmylchreest/campusbell/internal/audio"
	"github.com/jmylchreest/campusbell/internal/cache"
	"github.com/jmylchreest/campusbell/internal/config"
	"github.com/jmylchreest/campusbell/internal/dbus"
	"github.com/jmylchreest/campusbell/internal/dispatch"
	"github.com/jmylchreest/campusbell/internal/store"
	"github.com/jmylchreest/campusbell/internal/toast"
	"github.com/jmylchreest/campusbell/internal/transport"
)

// Options adjusts how the daemon is assembled. Zero values build every
// collaborator from the config.
type Options struct {
	// ConfigPath is watched for hot reload. Empty disables reloading.
	ConfigPath string

	// StatePath is the shared mute state file. Empty uses store.StateFilePath.
	StatePath string

	Version string

	// Overrides for embedding and tests
	Transport     dispatch.Transport
	Cache         dispatch.Cache
	Toaster       toast.Toaster
	OutputFactory audio.OutputFactory
}

// Daemon owns the notification pipeline of one signed-in user.
type Daemon struct {
	logger *slog.Logger
	opts   Options

	mu    sync.Mutex
	cfg   *config.DaemonConfig
	state *store.SharedState

	transport  dispatch.Transport
	synth      *audio.Synthesizer
	controller *dispatch.Controller
	notifier   *InternalNotifier

	stateWatcher  *store.StateWatcher
	configWatcher *ConfigWatcher

	// closers release connections in reverse order of creation
	closers []func() error
}

// New assembles the daemon. No events are consumed until Run.
func New(cfg *config.DaemonConfig, opts Options, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		cfg = config.DefaultDaemonConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.StatePath == "" {
		path, err := store.StateFilePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve state path: %w", err)
		}
		opts.StatePath = path
	}

	d := &Daemon{
		logger: logger,
		opts:   opts,
		cfg:    cfg,
		state:  store.DefaultSharedState(),
	}

	var err error
	if d.transport, err = d.buildTransport(); err != nil {
		d.close()
		return nil, err
	}
	cacheImpl, err := d.buildCache()
	if err != nil {
		d.close()
		return nil, err
	}

	var synthOpts []audio.Option
	if opts.OutputFactory != nil {
		synthOpts = append(synthOpts, audio.WithOutputFactory(opts.OutputFactory))
	}
	d.synth = audio.New(audio.Config{
		Enabled:    cfg.Sound.Enabled,
		Volume:     cfg.Sound.Volume,
		SampleRate: beep.SampleRate(cfg.Sound.SampleRate),
	}, logger.With("component", "audio"), synthOpts...)

	toaster := d.buildToaster()
	d.notifier = NewInternalNotifier(toaster, logger.With("component", "notifier"))
	d.notifier.SetEnabled(cfg.Toast.Enabled)

	navigator := toast.NewNavigator(cfg.Navigation.NotificationsURL, cfg.Navigation.Opener, logger.With("component", "navigator"))

	d.controller, err = dispatch.New(dispatch.Deps{
		Transport: d.transport,
		Cache:     cacheImpl,
		Tones:     d.synth,
		Toaster:   toaster,
		Navigator: navigator,
	}, dispatch.Config{
		SoundEnabled: cfg.Sound.Enabled,
		ToastEnabled: cfg.Toast.Enabled,
		CustomSounds: cfg.CustomSounds(),
	}, logger.With("component", "dispatch"))
	if err != nil {
		d.close()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) buildTransport() (dispatch.Transport, error) {
	if d.opts.Transport != nil {
		return d.opts.Transport, nil
	}

	cfg := d.cfg.Transport
	logger := d.logger.With("component", "transport")
	switch cfg.Kind {
	case config.KindMemory:
		logger.Info("using in-process transport")
		t := transport.NewMemory(logger)
		d.closers = append(d.closers, t.Close)
		return t, nil
	default:
		client, err := cache.NewClient(cfg.RedisURL, cache.WithDialTimeout(cfg.ConnectTimeout.Duration()))
		if err != nil {
			return nil, fmt.Errorf("failed to create transport client: %w", err)
		}
		channel := transport.ChannelFor(cfg.ChannelPrefix, d.cfg.User.ID)
		t := transport.NewRedis(client, channel, logger)
		d.closers = append(d.closers, t.Close, client.Close)
		logger.Info("using redis transport", "channel", channel)
		return t, nil
	}
}

func (d *Daemon) buildCache() (dispatch.Cache, error) {
	if d.opts.Cache != nil {
		return d.opts.Cache, nil
	}

	cfg := d.cfg.Cache
	logger := d.logger.With("component", "cache")
	switch cfg.Kind {
	case config.KindMemory:
		return cache.NewMemory(logger), nil
	default:
		client, err := cache.NewClient(d.cfg.CacheRedisURL())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache client: %w", err)
		}
		d.closers = append(d.closers, client.Close)
		return cache.NewRedis(client, cache.RedisConfig{
			KeyPrefix:           cfg.KeyPrefix,
			InvalidationChannel: cfg.InvalidationChannel,
		}, logger), nil
	}
}

// buildToaster connects to the desktop notification server, falling back to
// logging toasts when no session bus is available.
func (d *Daemon) buildToaster() toast.Toaster {
	if d.opts.Toaster != nil {
		return d.opts.Toaster
	}

	logger := d.logger.With("component", "toast")
	if d.cfg.Toast.Backend == config.ToastBackendLog {
		return toast.NewLogger(logger)
	}

	client := dbus.NewClient(logger)
	if err := client.Connect(); err != nil {
		logger.Warn("desktop notifications unavailable, logging toasts instead", "error", err)
		return toast.NewLogger(logger)
	}
	d.closers = append(d.closers, client.Close)

	if info, err := client.ServerInformation(); err == nil {
		logger.Info("connected to notification server", "name", info.Name, "vendor", info.Vendor, "version", info.Version)
	}

	desktop := toast.NewDesktop(client, toast.DesktopConfig{
		AppName: d.cfg.Toast.AppName,
		Icon:    d.cfg.Toast.Icon,
	}, logger)
	if err := desktop.DetectCapabilities(client); err != nil {
		logger.Warn("could not query notification server capabilities", "error", err)
	}
	return desktop
}

// Controller returns the dispatch controller.
func (d *Daemon) Controller() *dispatch.Controller {
	return d.controller
}

// Transport returns the transport the controller subscribes to.
func (d *Daemon) Transport() dispatch.Transport {
	return d.transport
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.DaemonConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Run activates the controller and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("starting campusbelld", "version", d.opts.Version, "user", d.Config().User.ID)

	state, err := store.LoadSharedStateFrom(d.opts.StatePath)
	if err != nil {
		d.logger.Warn("failed to load shared state", "error", err)
		state = store.DefaultSharedState()
	}
	d.applyState(state, false)
	d.logger.Info("shared state loaded", "sound_muted", state.SoundMuted, "toasts_muted", state.ToastsMuted)

	if err := d.synth.Start(ctx); err != nil {
		d.logger.Warn("failed to start sound watcher", "error", err)
	}

	d.controller.Activate(ctx)

	d.stateWatcher = store.NewStateWatcher(d.opts.StatePath, func(s *store.SharedState) {
		d.applyState(s, true)
	}, d.logger.With("component", "state"))
	if err := d.stateWatcher.Start(ctx); err != nil {
		d.logger.Warn("failed to start state watcher", "error", err)
	}

	if d.opts.ConfigPath != "" {
		d.configWatcher = NewConfigWatcher(d.opts.ConfigPath, d.logger.With("component", "config"))
		d.configWatcher.SetReloadCallback(func(newConfig *config.DaemonConfig) {
			d.applyConfig(newConfig)
			d.notifier.NotifyConfigReloaded()
		})
		d.configWatcher.SetErrorCallback(d.notifier.NotifyConfigError)
		if err := d.configWatcher.Start(ctx, d.Config()); err != nil {
			d.logger.Warn("failed to start config watcher", "error", err)
		}
	}

	d.notifier.NotifyStartup(d.opts.Version)
	d.logger.Info("campusbelld ready")

	<-ctx.Done()
	d.logger.Info("shutting down")
	d.shutdown()
	d.logger.Info("campusbelld stopped")
	return nil
}

func (d *Daemon) shutdown() {
	d.controller.Deactivate()

	if d.configWatcher != nil {
		d.configWatcher.Stop()
	}
	if d.stateWatcher != nil {
		if err := d.stateWatcher.Stop(); err != nil {
			d.logger.Warn("error stopping state watcher", "error", err)
		}
	}

	d.synth.Close()
	d.close()
}

func (d *Daemon) close() {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	if err := errors.Join(errs...); err != nil {
		d.logger.Warn("error closing connections", "error", err)
	}
}

// applyState folds the shared mute state into the controller.
func (d *Daemon) applyState(s *store.SharedState, announce bool) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	cfg := d.cfg
	d.mu.Unlock()

	d.controller.SetSoundEnabled(cfg.Sound.Enabled && !s.SoundMuted)
	d.controller.SetToastEnabled(cfg.Toast.Enabled && !s.ToastsMuted)

	if !announce {
		return
	}
	if prev.SoundMuted != s.SoundMuted {
		d.logger.Info("sound mute changed", "muted", s.SoundMuted)
		d.notifier.NotifyMuteChanged(string(store.MuteChannelSound), s.SoundMuted)
	}
	if prev.ToastsMuted != s.ToastsMuted {
		d.logger.Info("toast mute changed", "muted", s.ToastsMuted)
		d.notifier.NotifyMuteChanged(string(store.MuteChannelToasts), s.ToastsMuted)
	}
}

// applyConfig applies the settings that can change without a restart.
func (d *Daemon) applyConfig(cfg *config.DaemonConfig) {
	d.mu.Lock()
	prev := d.cfg
	d.cfg = cfg
	state := d.state
	d.mu.Unlock()

	if prev.Transport != cfg.Transport || prev.Cache != cfg.Cache || prev.User != cfg.User {
		d.logger.Warn("transport, cache or user settings changed; restart campusbelld to apply")
	}

	d.synth.SetEnabled(cfg.Sound.Enabled)
	d.synth.SetVolume(cfg.Sound.Volume)
	d.controller.SetCustomSounds(cfg.CustomSounds())
	d.notifier.SetEnabled(cfg.Toast.Enabled)
	d.applyState(state, false)
}
