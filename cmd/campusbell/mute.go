package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/campusbell/internal/store"
)

var muteOpts struct {
	sound  bool
	toasts bool
}

// muteCmd represents the mute command group.
var muteCmd = &cobra.Command{
	Use:   "mute",
	Short: "Mute notification sounds and toasts",
	Long: `Mute or unmute the sound and toast channels of campusbelld.

Muting only silences the chosen channel. Events are still consumed and the
notification cache is still invalidated.

Without --sound or --toasts, both channels are changed.

Use 'campusbell mute status' to check the current state.
Use 'campusbell mute on' to mute.
Use 'campusbell mute off' to unmute.
Use 'campusbell mute toggle' to toggle.`,
	RunE: muteStatusRun,
}

var muteOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Mute notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateMute(func(s *store.SharedState, ch store.MuteChannel) {
			setMuted(s, ch, true)
		})
	},
}

var muteOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Unmute notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateMute(func(s *store.SharedState, ch store.MuteChannel) {
			setMuted(s, ch, false)
		})
	},
}

var muteToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle notification mute",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateMute(func(s *store.SharedState, ch store.MuteChannel) {
			switch ch {
			case store.MuteChannelSound:
				s.ToggleSound(store.MuteTriggerUser, "cli")
			case store.MuteChannelToasts:
				s.ToggleToasts(store.MuteTriggerUser, "cli")
			}
		})
	},
}

var muteStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mute status",
	RunE:  muteStatusRun,
}

func init() {
	muteCmd.AddCommand(muteOnCmd)
	muteCmd.AddCommand(muteOffCmd)
	muteCmd.AddCommand(muteToggleCmd)
	muteCmd.AddCommand(muteStatusCmd)

	muteCmd.PersistentFlags().BoolVar(&muteOpts.sound, "sound", false, "Only the sound channel")
	muteCmd.PersistentFlags().BoolVar(&muteOpts.toasts, "toasts", false, "Only the toast channel")

	rootCmd.AddCommand(muteCmd)
}

// selectedChannels returns the channels named by the flags, or both.
func selectedChannels() []store.MuteChannel {
	var channels []store.MuteChannel
	if muteOpts.sound {
		channels = append(channels, store.MuteChannelSound)
	}
	if muteOpts.toasts {
		channels = append(channels, store.MuteChannelToasts)
	}
	if len(channels) == 0 {
		channels = []store.MuteChannel{store.MuteChannelSound, store.MuteChannelToasts}
	}
	return channels
}

func statePath() (string, error) {
	if globalOpts.statePath != "" {
		return globalOpts.statePath, nil
	}
	return store.StateFilePath()
}

func updateMute(apply func(*store.SharedState, store.MuteChannel)) error {
	path, err := statePath()
	if err != nil {
		return err
	}
	state, err := store.LoadSharedStateFrom(path)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	for _, ch := range selectedChannels() {
		apply(state, ch)
	}

	if err := store.SaveSharedStateTo(path, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	printMute(state)
	return nil
}

func setMuted(s *store.SharedState, ch store.MuteChannel, muted bool) {
	switch ch {
	case store.MuteChannelSound:
		s.SetSoundMuted(muted, store.MuteTriggerUser, "cli")
	case store.MuteChannelToasts:
		s.SetToastsMuted(muted, store.MuteTriggerUser, "cli")
	}
}

func isMuted(s *store.SharedState, ch store.MuteChannel) bool {
	if ch == store.MuteChannelSound {
		return s.SoundMuted
	}
	return s.ToastsMuted
}

func muteStatusRun(cmd *cobra.Command, args []string) error {
	path, err := statePath()
	if err != nil {
		return err
	}
	state, err := store.LoadSharedStateFrom(path)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	printMute(state)
	if t := state.LastTransition; t != nil {
		fmt.Printf("  Last change: %s %s (%s)\n", t.Channel, onOff(t.Muted), formatTransitionTime(t.Time()))
		fmt.Printf("  Trigger: %s\n", t.Trigger)
		if t.Source != "" {
			fmt.Printf("  Source: %s\n", t.Source)
		}
	}
	return nil
}

func printMute(state *store.SharedState) {
	for _, ch := range selectedChannels() {
		fmt.Printf("%-7s %s\n", string(ch)+":", onOff(isMuted(state, ch)))
	}
}

func onOff(muted bool) string {
	if muted {
		return "muted"
	}
	return "on"
}

// formatTransitionTime formats a time as a human-readable relative time.
func formatTransitionTime(t time.Time) string {
	return humanize.Time(t)
}
