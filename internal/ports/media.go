package ports

import (
	"context"
	"time"

	"github.com/bft-labs/meetrec/internal/media"
)

// DisplayConstraints describes the requested display capture.
type DisplayConstraints struct {
	Width     int
	Height    int
	FrameRate int

	// Audio requests the tab/system audio alongside the picture.
	Audio bool
}

// MicConstraints describes the requested microphone capture.
type MicConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DisplayCapturer acquires display-surface streams.
// Implementations return domain.ErrPermissionDenied or domain.ErrAborted
// (wrapped) when the user declines or aborts the request.
type DisplayCapturer interface {
	CaptureDisplay(ctx context.Context, c DisplayConstraints) (*media.Stream, error)
}

// MicrophoneCapturer acquires microphone streams.
type MicrophoneCapturer interface {
	CaptureMicrophone(ctx context.Context, c MicConstraints) (*media.Stream, error)
}

// AudioMixer creates real-time audio mixing graphs.
type AudioMixer interface {
	NewGraph(ctx context.Context) (AudioGraph, error)
}

// AudioGraph combines the audio tracks of connected streams into one
// destination stream.
type AudioGraph interface {
	// Connect routes every audio track of s into the mix.
	Connect(s *media.Stream) error

	// Destination returns the mixed output. It holds one audio track when at
	// least one source is connected and no tracks otherwise.
	Destination() *media.Stream

	// Close releases the graph.
	Close() error
}

// EncoderOptions is a negotiated encoder configuration.
// Zero bitrates leave the choice to the encoder.
type EncoderOptions struct {
	MimeType           string
	VideoBitsPerSecond int
	AudioBitsPerSecond int
}

// EncoderState mirrors an encoder's lifecycle.
type EncoderState string

const (
	EncoderInactive  EncoderState = "inactive"
	EncoderRecording EncoderState = "recording"
)

// EncoderHandlers receive encoder events. OnStop fires exactly once per
// started encoder, after the last OnData.
type EncoderHandlers struct {
	OnData  func(chunk []byte)
	OnStop  func()
	OnError func(err error)
}

// Encoder encodes a composed stream into container chunks.
type Encoder interface {
	// Start begins encoding, emitting a chunk every timeslice.
	Start(timeslice time.Duration) error

	// Stop requests the encoder to finish; OnStop acknowledges completion.
	Stop() error

	State() EncoderState
	MimeType() string
}

// EncoderFactory probes encoder support and creates encoders.
type EncoderFactory interface {
	IsTypeSupported(mimeType string) bool
	NewEncoder(s *media.Stream, opts EncoderOptions, h EncoderHandlers) (Encoder, error)
}
