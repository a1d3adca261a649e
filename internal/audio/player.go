package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// soundCache holds decoded custom sounds keyed by expanded path.
type soundCache struct {
	mu      sync.RWMutex
	buffers map[string]*beep.Buffer
}

func newSoundCache() *soundCache {
	return &soundCache{buffers: make(map[string]*beep.Buffer)}
}

// get returns the decoded buffer for path, decoding it on first use.
func (c *soundCache) get(path string) (*beep.Buffer, error) {
	c.mu.RLock()
	buffer, ok := c.buffers[path]
	c.mu.RUnlock()
	if ok {
		return buffer, nil
	}

	buffer, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.buffers[path] = buffer
	c.mu.Unlock()

	return buffer, nil
}

// invalidate drops a cached buffer so the next play re-reads the file.
func (c *soundCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buffers, path)
}

func (c *soundCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffers)
}

// decodeFile loads and decodes a sound file into a buffer.
func decodeFile(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sound file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported audio format: %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode sound: %w", err)
	}
	defer func() { _ = streamer.Close() }()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sound: %w", err)
	}

	return buffer, nil
}

// element is the single reusable custom-sound slot. Loading a new source
// silences whatever the slot was playing before.
type element struct {
	mu   sync.Mutex
	ctrl *beep.Ctrl
}

// load swaps the slot to s and returns the controller to hand to the output.
func (e *element) load(out Output, s beep.Streamer) *beep.Ctrl {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl != nil {
		// A nil streamer makes the mixer drop the previous sound.
		out.Lock()
		e.ctrl.Streamer = nil
		out.Unlock()
	}

	e.ctrl = &beep.Ctrl{Streamer: s}
	return e.ctrl
}

// applyVolume scales s by a linear volume in [0,1].
func applyVolume(s beep.Streamer, volume float64) beep.Streamer {
	if volume >= 1 {
		return s
	}
	if volume <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   math.Log2(volume),
	}
}

// expandPath expands ~ to the home directory and cleans the result.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}
