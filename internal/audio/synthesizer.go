package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// Default synthesizer settings.
const (
	DefaultVolume     = 0.5
	DefaultSampleRate = beep.SampleRate(44100)
)

// Config holds the synthesizer settings.
type Config struct {
	Enabled    bool
	Volume     float64 // 0.0 to 1.0
	SampleRate beep.SampleRate
}

// DefaultConfig returns the synthesizer defaults: enabled, half volume, 44.1kHz.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Volume:     DefaultVolume,
		SampleRate: DefaultSampleRate,
	}
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithOutputFactory replaces the system speaker with another audio context.
func WithOutputFactory(factory OutputFactory) Option {
	return func(s *Synthesizer) {
		if factory != nil {
			s.newOutput = factory
		}
	}
}

// Synthesizer plays notification tones and custom sounds.
// All playback is best-effort: errors are logged and never returned.
type Synthesizer struct {
	mu     sync.Mutex
	logger *slog.Logger

	enabled    bool
	volume     float64
	sampleRate beep.SampleRate

	// Lazily created audio context, kept for the synthesizer's lifetime.
	newOutput OutputFactory
	output    Output

	// Lazily created custom sound slot.
	element *element

	sounds  *soundCache
	watcher *SoundWatcher
}

// New creates a synthesizer. No audio device is touched until the first
// tone or sound is requested.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	s := &Synthesizer{
		logger:     logger,
		enabled:    cfg.Enabled,
		volume:     clampVolume(cfg.Volume),
		sampleRate: cfg.SampleRate,
		newOutput:  NewSpeakerOutput,
		sounds:     newSoundCache(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.watcher = NewSoundWatcher(s.sounds.invalidate, logger)
	return s
}

// Start begins watching custom sound files for changes.
func (s *Synthesizer) Start(ctx context.Context) error {
	return s.watcher.Start(ctx)
}

// SetEnabled enables or disables all playback. Disabled means mute: no
// audio context is created and nothing is played.
func (s *Synthesizer) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.logger.Debug("synthesizer enabled set", "enabled", enabled)
}

// Enabled reports whether playback is enabled.
func (s *Synthesizer) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetVolume sets the playback volume, clamped to [0,1].
func (s *Synthesizer) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampVolume(volume)
	s.logger.Debug("volume set", "volume", s.volume)
}

// Volume returns the current volume.
func (s *Synthesizer) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// PlayTone plays the tone for a notification category. Concurrent calls are
// mixed, not queued.
func (s *Synthesizer) PlayTone(category string) {
	if !s.Enabled() {
		return
	}
	defer s.recoverPanic("tone", category)

	profile := Lookup(category)

	out, err := s.context()
	if err != nil {
		s.logger.Warn("failed to play tone", "category", category, "error", err)
		return
	}

	out.Play(NewVoice(out.SampleRate(), profile, s.Volume()))
	s.logger.Debug("playing tone",
		"category", category,
		"frequency", profile.Frequency,
		"duration", profile.Duration,
	)
}

// PlayCustomSound plays a sound file through the reusable slot, interrupting
// any custom sound that is still playing.
func (s *Synthesizer) PlayCustomSound(path string) {
	if !s.Enabled() || path == "" {
		return
	}
	defer s.recoverPanic("custom sound", path)

	path = expandPath(path)

	out, err := s.context()
	if err != nil {
		s.logger.Warn("failed to play sound", "path", path, "error", err)
		return
	}

	buffer, err := s.sounds.get(path)
	if err != nil {
		s.logger.Warn("failed to load sound", "path", path, "error", err)
		return
	}
	s.watcher.Watch(path)

	var streamer beep.Streamer = buffer.Streamer(0, buffer.Len())
	if rate := buffer.Format().SampleRate; rate != out.SampleRate() {
		streamer = beep.Resample(4, rate, out.SampleRate(), streamer)
	}
	streamer = applyVolume(streamer, s.Volume())

	out.Play(s.slot().load(out, streamer))
	s.logger.Debug("playing sound", "path", path)
}

// SoundDuration decodes the sound file at path (or reuses its cached buffer)
// and returns how long it plays.
func (s *Synthesizer) SoundDuration(path string) (time.Duration, error) {
	buffer, err := s.sounds.get(expandPath(path))
	if err != nil {
		return 0, err
	}
	return buffer.Format().SampleRate.D(buffer.Len()), nil
}

// Close stops the watcher and releases the audio device. It is meant for
// process shutdown only.
func (s *Synthesizer) Close() {
	s.watcher.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output != nil {
		s.output.Close()
		s.output = nil
	}
	s.logger.Debug("synthesizer closed")
}

// context returns the shared audio context, creating it on first demand.
// A failed creation is retried on the next request.
func (s *Synthesizer) context() (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != nil {
		return s.output, nil
	}

	out, err := s.newOutput(s.sampleRate)
	if err != nil {
		return nil, err
	}

	s.output = out
	s.logger.Debug("audio context created", "sample_rate", out.SampleRate())
	return out, nil
}

// slot returns the custom sound slot, creating it on first use.
func (s *Synthesizer) slot() *element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.element == nil {
		s.element = &element{}
	}
	return s.element
}

func (s *Synthesizer) recoverPanic(op, subject string) {
	if r := recover(); r != nil {
		s.logger.Warn("audio playback panicked", "op", op, "subject", subject, "panic", r)
	}
}

func clampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}
