package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// ErrToneSynthesis wraps failures to build or start audio playback.
var ErrToneSynthesis = errors.New("tone synthesis failed")

// Output is the audio context all tones and custom sounds are mixed into.
type Output interface {
	// SampleRate returns the rate streamers must be produced at.
	SampleRate() beep.SampleRate
	// Play mixes s into the output and returns immediately.
	Play(s beep.Streamer)
	// Lock and Unlock guard mutation of streamers that are already playing.
	Lock()
	Unlock()
	// Close releases the device.
	Close()
}

// OutputFactory creates the audio context. It is called lazily on first use
// and again only if a previous attempt failed.
type OutputFactory func(sampleRate beep.SampleRate) (Output, error)

// speakerOutput plays through the system audio device via beep/speaker.
type speakerOutput struct {
	sampleRate beep.SampleRate
}

// NewSpeakerOutput initializes the system speaker. The speaker is
// process-global, so only one speakerOutput should be live at a time.
func NewSpeakerOutput(sampleRate beep.SampleRate) (Output, error) {
	// Use a reasonable buffer size for low latency
	bufferSize := sampleRate.N(100 * time.Millisecond)

	if err := speaker.Init(sampleRate, bufferSize); err != nil {
		return nil, fmt.Errorf("%w: initialize speaker: %v", ErrToneSynthesis, err)
	}

	return &speakerOutput{sampleRate: sampleRate}, nil
}

func (o *speakerOutput) SampleRate() beep.SampleRate { return o.sampleRate }

func (o *speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }

func (o *speakerOutput) Lock() { speaker.Lock() }

func (o *speakerOutput) Unlock() { speaker.Unlock() }

func (o *speakerOutput) Close() { speaker.Close() }
