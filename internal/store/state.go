// Package store persists the mute state shared between campusbell and
// campusbelld.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DataDir returns the path to the campusbell data directory.
// Uses XDG_DATA_HOME or defaults to ~/.local/share/campusbell.
func DataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "campusbell"), nil
}

// MuteTrigger represents what triggered a mute state change.
type MuteTrigger string

const (
	// MuteTriggerUser indicates a user-initiated change (CLI).
	MuteTriggerUser MuteTrigger = "user"
	// MuteTriggerSystem indicates the daemon changed the state itself.
	MuteTriggerSystem MuteTrigger = "system"
)

// MuteChannel names the channel a transition applied to.
type MuteChannel string

const (
	MuteChannelSound  MuteChannel = "sound"
	MuteChannelToasts MuteChannel = "toasts"
)

// MuteTransition records details about a mute state change.
type MuteTransition struct {
	Channel   MuteChannel `json:"channel"`
	Muted     bool        `json:"muted"`
	Trigger   MuteTrigger `json:"trigger"`
	Source    string      `json:"source,omitempty"` // e.g. "cli", "campusbelld"
	Timestamp int64       `json:"timestamp"`
}

// Time returns the transition time.
func (t *MuteTransition) Time() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// SharedState contains state that is shared between campusbell and campusbelld.
// This is persisted to ~/.local/share/campusbell/state.json
type SharedState struct {
	SoundMuted  bool `json:"sound_muted"`
	ToastsMuted bool `json:"toasts_muted"`

	// Unix timestamps of when each channel was muted, zero while unmuted
	SoundMutedAt  int64 `json:"sound_muted_at,omitempty"`
	ToastsMutedAt int64 `json:"toasts_muted_at,omitempty"`

	LastTransition *MuteTransition `json:"last_transition,omitempty"`

	SchemaVersion int `json:"schema_version"`
}

// CurrentSchemaVersion is the current version of the state schema.
const CurrentSchemaVersion = 1

// stateFileMutex protects concurrent access to the state file.
var stateFileMutex sync.RWMutex

// DefaultSharedState returns a state with nothing muted.
func DefaultSharedState() *SharedState {
	return &SharedState{SchemaVersion: CurrentSchemaVersion}
}

// StateFilePath returns the path to the state file.
func StateFilePath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "state.json"), nil
}

// LoadSharedState loads the shared state from the default path.
func LoadSharedState() (*SharedState, error) {
	path, err := StateFilePath()
	if err != nil {
		return nil, err
	}
	return LoadSharedStateFrom(path)
}

// LoadSharedStateFrom loads the shared state from path.
// A missing or corrupted file yields the default state.
func LoadSharedStateFrom(path string) (*SharedState, error) {
	stateFileMutex.RLock()
	defer stateFileMutex.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSharedState(), nil
		}
		return nil, err
	}

	var state SharedState
	if err := json.Unmarshal(data, &state); err != nil {
		return DefaultSharedState(), nil
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	return &state, nil
}

// SaveSharedState saves the shared state to the default path.
func SaveSharedState(state *SharedState) error {
	path, err := StateFilePath()
	if err != nil {
		return err
	}
	return SaveSharedStateTo(path, state)
}

// SaveSharedStateTo saves the shared state to path.
func SaveSharedStateTo(path string, state *SharedState) error {
	stateFileMutex.Lock()
	defer stateFileMutex.Unlock()

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// SetSoundMuted updates the sound mute state and records the transition.
func (s *SharedState) SetSoundMuted(muted bool, trigger MuteTrigger, source string) {
	s.SoundMuted = muted
	s.SoundMutedAt = mutedAt(muted)
	s.record(MuteChannelSound, muted, trigger, source)
}

// SetToastsMuted updates the toast mute state and records the transition.
func (s *SharedState) SetToastsMuted(muted bool, trigger MuteTrigger, source string) {
	s.ToastsMuted = muted
	s.ToastsMutedAt = mutedAt(muted)
	s.record(MuteChannelToasts, muted, trigger, source)
}

// ToggleSound flips the sound mute state. Returns the new state (true = muted).
func (s *SharedState) ToggleSound(trigger MuteTrigger, source string) bool {
	s.SetSoundMuted(!s.SoundMuted, trigger, source)
	return s.SoundMuted
}

// ToggleToasts flips the toast mute state. Returns the new state (true = muted).
func (s *SharedState) ToggleToasts(trigger MuteTrigger, source string) bool {
	s.SetToastsMuted(!s.ToastsMuted, trigger, source)
	return s.ToastsMuted
}

func (s *SharedState) record(channel MuteChannel, muted bool, trigger MuteTrigger, source string) {
	s.LastTransition = &MuteTransition{
		Channel:   channel,
		Muted:     muted,
		Trigger:   trigger,
		Source:    source,
		Timestamp: time.Now().Unix(),
	}
}

func mutedAt(muted bool) int64 {
	if !muted {
		return 0
	}
	return time.Now().Unix()
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
