package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/media"
	"github.com/bft-labs/meetrec/internal/ports"
	"github.com/bft-labs/meetrec/pkg/log"
)

// DefaultTimeslice is the encoder flush interval.
const DefaultTimeslice = time.Second

// RecordingMimeType is the type of saved recordings.
const RecordingMimeType = "video/webm"

// EncoderCandidates are tried in order; the first supported one is used.
var EncoderCandidates = []ports.EncoderOptions{
	{MimeType: "video/webm;codecs=vp9,opus", VideoBitsPerSecond: 2_500_000, AudioBitsPerSecond: 192_000},
	{MimeType: "video/webm;codecs=vp8,opus", VideoBitsPerSecond: 2_500_000, AudioBitsPerSecond: 192_000},
	{MimeType: "video/webm"},
}

// DisplayRequest is the display capture requested for a recording.
var DisplayRequest = ports.DisplayConstraints{Width: 1920, Height: 1080, FrameRate: 30, Audio: true}

// MicRequest is the microphone capture requested for a recording.
var MicRequest = ports.MicConstraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}

// CaptureConfig configures a Capture.
type CaptureConfig struct {
	// MeetingURL is the page shown by this tab.
	MeetingURL string

	// Timeslice is the encoder flush interval. Default: 1s.
	Timeslice time.Duration
}

// CaptureDeps are the ports a Capture drives.
type CaptureDeps struct {
	Display    ports.DisplayCapturer
	Microphone ports.MicrophoneCapturer
	Mixer      ports.AudioMixer
	Encoders   ports.EncoderFactory
	Downloader ports.Downloader
	Notifier   ports.CaptureNotifier
	Logger     log.Logger
}

// captureBundle holds the streams of one recording.
type captureBundle struct {
	display *media.Stream
	mic     *media.Stream
	graph   ports.AudioGraph
	output  *media.Stream
}

// release stops the raw sources and closes the mix graph.
func (b *captureBundle) release() {
	b.display.StopAll()
	b.mic.StopAll()
	if b.graph != nil {
		_ = b.graph.Close()
	}
}

// recording is one started encoder with its resources.
type recording struct {
	bundle   *captureBundle
	encoder  ports.Encoder
	chunks   *chunkBuffer
	stopping bool
	stopOnce sync.Once
	done     chan struct{}
}

// Capture acquires media, encodes it and saves the result for one tab.
type Capture struct {
	cfg  CaptureConfig
	deps CaptureDeps
	now  func() time.Time

	mu       sync.Mutex
	current  *recording
	starting bool
}

// NewCapture creates a Capture.
func NewCapture(cfg CaptureConfig, deps CaptureDeps) *Capture {
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = DefaultTimeslice
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNoopLogger()
	}
	return &Capture{cfg: cfg, deps: deps, now: time.Now}
}

// CheckMeetPage reports whether this tab shows a meeting page.
func (c *Capture) CheckMeetPage() bool {
	return domain.IsMeetPage(c.cfg.MeetingURL)
}

// Recording reports whether an encoder is active.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *Capture) activeLocked() bool {
	return c.current != nil && !c.current.stopping && c.current.encoder.State() == ports.EncoderRecording
}

// Start acquires the display and optional microphone, mixes their audio,
// and starts the encoder. On failure every acquired resource is released;
// a declined or aborted capture additionally notifies recordingCanceled.
// Canceling ctx while the display is being acquired aborts the start.
//
// The lock is not held while streams are acquired, so a Stop issued while
// the user is still deciding fails at once with ErrNoActiveRecording.
func (c *Capture) Start(ctx context.Context, includeMic bool) (StartResult, error) {
	c.mu.Lock()
	if c.starting || c.activeLocked() {
		c.mu.Unlock()
		return StartResult{}, domain.ErrAlreadyRecording
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	logger := c.deps.Logger
	logger.Info("Starting recording", log.Bool("include_mic", includeMic))

	b := &captureBundle{}
	var result StartResult

	display, err := c.deps.Display.CaptureDisplay(ctx, DisplayRequest)
	if err != nil {
		return result, c.fail(b, err)
	}
	b.display = display
	logger.Debug("Display stream captured",
		log.Int("audio_tracks", len(display.AudioTracks())),
		log.Int("video_tracks", len(display.VideoTracks())),
	)

	if includeMic {
		mic, err := c.deps.Microphone.CaptureMicrophone(ctx, MicRequest)
		if err != nil {
			logger.Warn("Microphone capture failed, continuing without it", log.Err(err))
			result.MicDenied = true
			c.notify(domain.ActionMicDenied)
		} else {
			b.mic = mic
		}
	}

	graph, err := c.deps.Mixer.NewGraph(ctx)
	if err != nil {
		return result, c.fail(b, fmt.Errorf("create audio graph: %w", err))
	}
	b.graph = graph

	sources := []struct {
		label  string
		stream *media.Stream
	}{
		{"display", b.display},
		{"microphone", b.mic},
	}
	for _, src := range sources {
		if src.stream == nil {
			continue
		}
		if len(src.stream.AudioTracks()) == 0 {
			logger.Warn("Source has no audio tracks", log.String("source", src.label))
			continue
		}
		if err := graph.Connect(src.stream); err != nil {
			return result, c.fail(b, fmt.Errorf("connect %s audio: %w", src.label, err))
		}
		logger.Debug("Audio connected to mix", log.String("source", src.label))
	}

	video := media.FirstVideoTrack(b.display)
	if video == nil {
		logger.Warn("No video track in display stream, recording will be audio-only")
	}
	audio := media.FirstAudioTrack(graph.Destination())
	if audio == nil {
		logger.Warn("No mixed audio track available, recording will be video-only")
	}
	b.output = media.Compose(video, audio)

	opts, err := NegotiateEncoder(c.deps.Encoders)
	if err != nil {
		return result, c.fail(b, err)
	}

	rec := &recording{bundle: b, chunks: &chunkBuffer{}, done: make(chan struct{})}
	enc, err := c.deps.Encoders.NewEncoder(b.output, opts, ports.EncoderHandlers{
		OnData: rec.chunks.Append,
		OnStop: func() { c.finish(rec) },
		OnError: func(err error) {
			logger.Error("Encoder error", log.Err(err))
		},
	})
	if err != nil {
		return result, c.fail(b, fmt.Errorf("create encoder: %w", err))
	}
	rec.encoder = enc

	if err := ctx.Err(); err != nil {
		return result, c.fail(b, fmt.Errorf("start encoder: %w", domain.ErrAborted))
	}
	if err := enc.Start(c.cfg.Timeslice); err != nil {
		return result, c.fail(b, fmt.Errorf("start encoder: %w", err))
	}
	c.mu.Lock()
	select {
	case <-rec.done:
		// The encoder already stopped on its own.
	default:
		c.current = rec
	}
	c.mu.Unlock()

	if video != nil {
		go c.watchShareEnd(rec, video)
	}

	logger.Info("Recording started",
		log.String("mime_type", enc.MimeType()),
		log.Int("audio_tracks", len(b.output.AudioTracks())),
		log.Int("video_tracks", len(b.output.VideoTracks())),
	)
	c.notify(domain.ActionRecordingStarted)
	return result, nil
}

// fail releases b and reports user cancellations to the coordinator.
func (c *Capture) fail(b *captureBundle, err error) error {
	b.release()
	c.deps.Logger.Error("Failed to start recording", log.Err(err))
	if domain.IsUserCancellation(err) {
		c.deps.Logger.Info("User canceled screen share")
		c.notify(domain.ActionRecordingCanceled)
	}
	return err
}

// NegotiateEncoder returns the first supported candidate.
func NegotiateEncoder(f ports.EncoderFactory) (ports.EncoderOptions, error) {
	for _, opts := range EncoderCandidates {
		if f.IsTypeSupported(opts.MimeType) {
			return opts, nil
		}
	}
	return ports.EncoderOptions{}, domain.ErrNoSupportedEncoder
}

// Stop asks the encoder to finish, waits until the recording is saved, and
// stops the tracks of the composed stream.
func (c *Capture) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return domain.ErrNoActiveRecording
	}
	rec := c.current
	rec.stopping = true
	c.mu.Unlock()

	c.deps.Logger.Info("Stopping recording")
	if err := rec.encoder.Stop(); err != nil {
		c.mu.Lock()
		rec.stopping = false
		c.mu.Unlock()
		return fmt.Errorf("stop encoder: %w", err)
	}

	select {
	case <-rec.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	rec.bundle.output.StopAll()
	return nil
}

// Close stops an active recording through the regular stop path.
func (c *Capture) Close(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil && !errors.Is(err, domain.ErrNoActiveRecording) {
		return err
	}
	return nil
}

// finish runs once per recording, for every stop cause: it saves the
// chunks, notifies recordingStopped and releases the sources.
func (c *Capture) finish(rec *recording) {
	rec.stopOnce.Do(func() {
		c.deps.Logger.Debug("Encoder stopped")
		c.save(rec)
		c.notify(domain.ActionRecordingStopped)
		rec.bundle.release()

		c.mu.Lock()
		if c.current == rec {
			c.current = nil
		}
		c.mu.Unlock()

		close(rec.done)
	})
}

func (c *Capture) save(rec *recording) {
	logger := c.deps.Logger
	if rec.chunks.Len() == 0 {
		logger.Error("No recorded data available, nothing saved")
		return
	}

	data, count, size := rec.chunks.Take()
	name := domain.RecordingFilename(c.now())
	path, err := c.deps.Downloader.Download(context.Background(), name, RecordingMimeType, data)
	if err != nil {
		logger.Error("Failed to save recording", log.String("file", name), log.Err(err))
		return
	}
	logger.Info("Recording saved",
		log.String("path", path),
		log.Int("chunks", count),
		log.Int("bytes", size),
	)
}

// watchShareEnd stops the recording when the display video ends on its own.
func (c *Capture) watchShareEnd(rec *recording, video media.Track) {
	select {
	case <-video.Ended():
	case <-rec.done:
		return
	}

	c.deps.Logger.Info("Screen sharing stopped, stopping recording")
	if err := c.Stop(context.Background()); err != nil && !errors.Is(err, domain.ErrNoActiveRecording) {
		c.deps.Logger.Warn("Failed to stop after share ended", log.Err(err))
	}
}

func (c *Capture) notify(action domain.Action) {
	if c.deps.Notifier == nil {
		return
	}
	if err := c.deps.Notifier.Notify(action); err != nil {
		c.deps.Logger.Warn("Failed to notify coordinator", log.String("action", string(action)), log.Err(err))
	}
}
