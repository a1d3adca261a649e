package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/campusbell/internal/audio"
)

// playbackTail is how long the speaker is kept open after a sound ends.
const playbackTail = 100 * time.Millisecond

var toneOpts struct {
	list   bool
	volume float64
}

var toneCmd = &cobra.Command{
	Use:   "tone [category]",
	Short: "Preview the tone of a notification category",
	Long: `Play the tone campusbelld uses for a notification category and print
its frequency and duration. Unknown categories play the default tone.

Examples:
  campusbell tone message
  campusbell tone --list`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTone,
}

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a custom sound file (wav, ogg, mp3)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	toneCmd.Flags().BoolVarP(&toneOpts.list, "list", "l", false, "List the tone table")
	for _, cmd := range []*cobra.Command{toneCmd, playCmd} {
		cmd.Flags().Float64Var(&toneOpts.volume, "volume", -1, "Playback volume 0.0-1.0 (default: sound.volume)")
	}

	rootCmd.AddCommand(toneCmd)
	rootCmd.AddCommand(playCmd)
}

func runTone(cmd *cobra.Command, args []string) error {
	if toneOpts.list || len(args) == 0 {
		return printToneTable()
	}

	category := args[0]
	profile := audio.Lookup(category)
	fmt.Printf("%s: %.0f Hz, %s\n", category, profile.Frequency, profile.Duration)

	synth := newCLISynth()
	defer synth.Close()

	synth.PlayTone(category)
	time.Sleep(profile.Duration + playbackTail)
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	synth := newCLISynth()
	defer synth.Close()

	length, err := synth.SoundDuration(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", args[0], length.Round(time.Millisecond))

	synth.PlayCustomSound(args[0])
	time.Sleep(length + playbackTail)
	return nil
}

func printToneTable() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tFREQUENCY\tDURATION")
	for _, category := range audio.KnownCategories() {
		p := audio.Lookup(category)
		_, _ = fmt.Fprintf(w, "%s\t%.0f Hz\t%s\n", category, p.Frequency, p.Duration)
	}
	_, _ = fmt.Fprintf(w, "%s\t%.0f Hz\t%s\n", "(default)", audio.DefaultProfile.Frequency, audio.DefaultProfile.Duration)
	return w.Flush()
}

// newCLISynth builds an enabled synthesizer from the sound settings.
func newCLISynth() *audio.Synthesizer {
	cfg := loadConfigOrDefault()

	volume := cfg.Sound.Volume
	if toneOpts.volume >= 0 {
		volume = toneOpts.volume
	}

	return audio.New(audio.Config{
		Enabled:    true,
		Volume:     volume,
		SampleRate: beep.SampleRate(cfg.Sound.SampleRate),
	}, logger)
}
