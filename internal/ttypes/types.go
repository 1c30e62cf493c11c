// Package ttypes contains shared types and interfaces for the announcement system.
// This package is used to break import cycles between tts, queue, output, and engines packages.
package ttypes

import (
	"context"
	"time"
)

// PlaybackState is the observed state of a media output.
type PlaybackState string

const (
	// PlaybackPlaying indicates the output is producing audio.
	PlaybackPlaying PlaybackState = "playing"

	// PlaybackBuffering indicates the output is about to produce audio.
	PlaybackBuffering PlaybackState = "buffering"

	// PlaybackIdle indicates the output is on but silent.
	PlaybackIdle PlaybackState = "idle"

	// PlaybackPaused indicates playback is paused.
	PlaybackPaused PlaybackState = "paused"

	// PlaybackOff indicates the output is switched off.
	PlaybackOff PlaybackState = "off"

	// PlaybackStopped indicates playback was stopped.
	PlaybackStopped PlaybackState = "stopped"

	// PlaybackUnknown indicates the state could not be read.
	PlaybackUnknown PlaybackState = "unknown"
)

// IsActive reports whether the state counts as producing audio.
// Buffering is treated as playing so that completion detection does not
// fire before the first sample leaves the speaker.
func (s PlaybackState) IsActive() bool {
	return s == PlaybackPlaying || s == PlaybackBuffering
}

// ParsePlaybackState maps a raw state string onto a PlaybackState.
func ParsePlaybackState(raw string) PlaybackState {
	switch PlaybackState(raw) {
	case PlaybackPlaying, PlaybackBuffering, PlaybackIdle, PlaybackPaused, PlaybackOff, PlaybackStopped:
		return PlaybackState(raw)
	case "on", "standby":
		return PlaybackIdle
	default:
		return PlaybackUnknown
	}
}

// PlaybackStatus is a single observation of an output.
type PlaybackStatus struct {
	// State is the playback state of the output.
	State PlaybackState

	// Volume is the current volume level in [0,1], or nil when the
	// output does not report one.
	Volume *float64
}

// SpeakRequest carries everything an output needs to render and play one
// announcement.
type SpeakRequest struct {
	// Target is the output that plays the message.
	Target string

	// Message is the text to synthesize.
	Message string

	// Language is an optional language tag.
	Language string

	// Options are engine-specific synthesis options.
	Options map[string]any

	// Service is the "domain.service" used to render the message.
	Service string

	// Engine optionally names the TTS entity that renders the message.
	Engine string
}

// Output is the surrounding platform as seen by the scheduler. Every method
// is a single request; none of them waits for audio to finish.
type Output interface {
	// Speak hands a message to the playback subsystem. A nil error means the
	// request was accepted, not that audio has finished.
	Speak(ctx context.Context, req SpeakRequest) error

	// SetVolume sets the volume of target to level in [0,1].
	SetVolume(ctx context.Context, target string, level float64) error

	// StopPlayback asks target to stop what it is playing.
	StopPlayback(ctx context.Context, target string) error

	// PlayMedia plays a media item (such as a chime) on target.
	PlayMedia(ctx context.Context, target, mediaID string) error

	// ReadState returns the current playback status of target.
	ReadState(ctx context.Context, target string) (PlaybackStatus, error)
}

// Announcement is one requested utterance as owned by the queue.
type Announcement struct {
	// ID identifies the announcement in logs and API responses.
	ID string

	// Instance is the name of the queue instance that owns the item.
	Instance string

	// Message is the text to speak. Never empty.
	Message string

	// Target is the resolved output for the message.
	Target string

	// Language is an optional language tag.
	Language string

	// Options are merged engine options (defaults overlaid by request).
	Options map[string]any

	// Priority orders items; higher is more urgent.
	Priority int

	// VolumeOverride replaces the day/night volume when set.
	VolumeOverride *float64

	// PreRoll replaces the configured pre-roll delay when set.
	PreRoll *time.Duration

	// Interrupt clears the queue and stops current playback on enqueue.
	Interrupt bool

	// EnqueuedAt is when the item entered the queue.
	EnqueuedAt time.Time
}

// EngineInfo describes engine capabilities and configuration.
type EngineInfo struct {
	Name        string // Engine name (e.g., "piper", "gtts")
	SampleRate  int    // Audio sample rate in Hz
	Channels    int    // Number of audio channels (1=mono, 2=stereo)
	BitDepth    int    // Bits per sample (typically 16)
	MaxTextSize int    // Maximum text size in characters
	IsOnline    bool   // Whether the engine requires internet
}

// Synthesizer defines the contract for local text-to-speech engines.
type Synthesizer interface {
	// Synthesize converts text to audio data.
	// Returns audio in PCM format (16-bit, mono, sample rate per GetInfo).
	Synthesize(ctx context.Context, text, language string, options map[string]any) ([]byte, error)

	// GetInfo returns engine capabilities and configuration.
	GetInfo() EngineInfo

	// Validate checks if the engine is properly configured and available.
	Validate() error

	// Close releases any resources held by the engine.
	Close() error
}

// AudioPlayer defines the contract for audio playback used by the local output.
type AudioPlayer interface {
	// Play starts playback of audio data.
	Play(audio []byte) error

	// Stop stops playback and releases resources.
	Stop() error

	// IsPlaying returns whether audio is currently playing.
	IsPlaying() bool

	// SetVolume sets the playback volume (0.0 to 1.0).
	SetVolume(volume float64) error

	// GetVolume returns the playback volume.
	GetVolume() float64

	// Close releases audio device and resources.
	Close() error
}
