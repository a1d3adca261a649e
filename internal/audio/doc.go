// Package audio provides the notification tone synthesizer.
// Tones are generated on the fly with the beep library, so no sound assets
// ship with the daemon; optional custom sounds (WAV, OGG, MP3) can be played
// through a single reusable playback slot.
package audio
