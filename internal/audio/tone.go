package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/jmylchreest/campusbell/internal/model"
)

// decayFloor is the gain the envelope decays toward by the end of a tone.
const decayFloor = 0.01

// ToneProfile is the frequency and duration of a notification tone.
type ToneProfile struct {
	Frequency float64       // Hz
	Duration  time.Duration // audible length
}

// DefaultProfile is used for any category without an explicit entry.
var DefaultProfile = ToneProfile{Frequency: 800, Duration: 200 * time.Millisecond}

// Lookup returns the tone profile for a notification category.
// It is total: unknown and empty categories resolve to DefaultProfile.
func Lookup(category string) ToneProfile {
	switch category {
	case model.CategoryMessage:
		return ToneProfile{Frequency: 900, Duration: 150 * time.Millisecond}
	case model.CategoryFollow, model.CategoryLike:
		return ToneProfile{Frequency: 600, Duration: 100 * time.Millisecond}
	case model.CategoryGroupInvite, model.CategoryEventInvite, model.CategoryMentorshipApplication:
		return ToneProfile{Frequency: 800, Duration: 250 * time.Millisecond}
	case model.CategoryComment, model.CategoryReply, model.CategoryMention:
		return ToneProfile{Frequency: 750, Duration: 180 * time.Millisecond}
	default:
		return DefaultProfile
	}
}

// KnownCategories returns the categories with a dedicated tone, in table order.
func KnownCategories() []string {
	return []string{
		model.CategoryMessage,
		model.CategoryFollow,
		model.CategoryLike,
		model.CategoryGroupInvite,
		model.CategoryEventInvite,
		model.CategoryMentorshipApplication,
		model.CategoryComment,
		model.CategoryReply,
		model.CategoryMention,
	}
}

// Voice is a single sine oscillator with an exponentially decaying gain
// envelope. It implements beep.Streamer and drains after Profile.Duration.
type Voice struct {
	Profile ToneProfile
	Volume  float64

	total int // samples to produce
	pos   int

	gain  float64
	decay float64 // per-sample gain multiplier

	phase float64
	step  float64
}

// NewVoice builds a voice for the given profile at the output sample rate.
// The envelope starts at volume and reaches decayFloor at the final sample.
func NewVoice(sampleRate beep.SampleRate, profile ToneProfile, volume float64) *Voice {
	v := &Voice{
		Profile: profile,
		Volume:  volume,
		total:   sampleRate.N(profile.Duration),
		step:    2 * math.Pi * profile.Frequency / float64(sampleRate),
	}

	if volume > 0 && v.total > 0 {
		v.gain = volume
		v.decay = math.Pow(decayFloor/volume, 1/float64(v.total))
	}

	return v
}

// Stream fills samples with the next part of the tone.
func (v *Voice) Stream(samples [][2]float64) (n int, ok bool) {
	if v.pos >= v.total {
		return 0, false
	}

	for i := range samples {
		if v.pos >= v.total {
			break
		}

		x := v.gain * math.Sin(v.phase)
		samples[i][0] = x
		samples[i][1] = x

		v.phase += v.step
		if v.phase >= 2*math.Pi {
			v.phase -= 2 * math.Pi
		}
		v.gain *= v.decay
		v.pos++
		n++
	}

	return n, true
}

// Err always returns nil; synthesis cannot fail mid-stream.
func (v *Voice) Err() error {
	return nil
}

// Len returns the total number of samples the voice produces.
func (v *Voice) Len() int {
	return v.total
}
