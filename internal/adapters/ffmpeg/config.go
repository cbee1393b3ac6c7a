package ffmpeg

import (
	"context"
	"time"
)

// Config controls the ffmpeg invocations.
type Config struct {
	// Command is the ffmpeg binary. Default: "ffmpeg".
	Command string

	// DisplayFormat and DisplayInput select the screen grabber,
	// e.g. x11grab / ":0.0" or avfoundation / "1".
	DisplayFormat string
	DisplayInput  string

	// DisplayAudioFormat and DisplayAudioInput select the meeting audio,
	// typically the monitor of the default sink. An empty input captures
	// the display without audio.
	DisplayAudioFormat string
	DisplayAudioInput  string

	// MicFormat and MicInput select the microphone.
	MicFormat string
	MicInput  string

	// StartupGrace is how long a source must survive to count as started.
	// Default: 250ms.
	StartupGrace time.Duration

	// StopGrace is how long a process gets to exit before escalation.
	// Default: 1200ms.
	StopGrace time.Duration

	// ApproveShare, when set, is asked before the display is grabbed.
	// Returning an error declines the share.
	ApproveShare func(ctx context.Context) error
}

func (c Config) withDefaults() Config {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.DisplayFormat == "" {
		c.DisplayFormat = "x11grab"
	}
	if c.DisplayInput == "" {
		c.DisplayInput = ":0.0"
	}
	if c.DisplayAudioFormat == "" {
		c.DisplayAudioFormat = "pulse"
	}
	if c.MicFormat == "" {
		c.MicFormat = "pulse"
	}
	if c.MicInput == "" {
		c.MicInput = "default"
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = 250 * time.Millisecond
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 1200 * time.Millisecond
	}
	return c
}
