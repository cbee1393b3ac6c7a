package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/media"
	"github.com/bft-labs/meetrec/internal/ports"
	"github.com/bft-labs/meetrec/pkg/log"
)

// Capturer acquires display and microphone streams.
// It implements ports.DisplayCapturer and ports.MicrophoneCapturer.
type Capturer struct {
	cfg    Config
	logger log.Logger
}

// NewCapturer creates a Capturer.
func NewCapturer(cfg Config, logger log.Logger) *Capturer {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Capturer{cfg: cfg.withDefaults(), logger: logger}
}

// CaptureDisplay grabs the display, with meeting audio when c.Audio is set
// and an audio input is configured.
func (c *Capturer) CaptureDisplay(ctx context.Context, dc ports.DisplayConstraints) (*media.Stream, error) {
	if c.cfg.ApproveShare != nil {
		if err := c.cfg.ApproveShare(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("display capture: %w", domain.ErrAborted)
			}
			if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrAborted) {
				return nil, fmt.Errorf("display capture: %w", err)
			}
			return nil, fmt.Errorf("display capture: %w: %v", domain.ErrPermissionDenied, err)
		}
	}

	withAudio := dc.Audio && c.cfg.DisplayAudioInput != ""
	args := displayArgs(c.cfg, dc, withAudio)

	specs := []trackSpec{{kind: media.KindVideo, label: "display:" + c.cfg.DisplayInput, stream: "v:0"}}
	if withAudio {
		specs = append(specs, trackSpec{kind: media.KindAudio, label: "display-audio:" + c.cfg.DisplayAudioInput, stream: "a:0"})
	}

	src, err := startSource(ctx, c.cfg, "display", args, specs)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Display capture started",
		log.String("input", c.cfg.DisplayInput),
		log.Bool("audio", withAudio),
	)
	return src.stream(), nil
}

// CaptureMicrophone grabs the microphone.
func (c *Capturer) CaptureMicrophone(ctx context.Context, mc ports.MicConstraints) (*media.Stream, error) {
	if mc.EchoCancellation {
		c.logger.Debug("Echo cancellation is left to the audio server")
	}
	args := micArgs(c.cfg, mc)
	specs := []trackSpec{{kind: media.KindAudio, label: "mic:" + c.cfg.MicInput, stream: "a:0"}}

	src, err := startSource(ctx, c.cfg, "microphone", args, specs)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Microphone capture started", log.String("input", c.cfg.MicInput))
	return src.stream(), nil
}

func baseArgs() []string {
	return []string{"-nostdin", "-hide_banner", "-loglevel", "warning"}
}

// displayArgs grabs the screen into mjpeg and the audio into PCM; both are
// cheap to produce and re-encoded by the encoder process.
func displayArgs(cfg Config, dc ports.DisplayConstraints, withAudio bool) []string {
	args := baseArgs()
	if dc.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(dc.FrameRate))
	}
	if dc.Width > 0 && dc.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", dc.Width, dc.Height))
	}
	args = append(args, "-f", cfg.DisplayFormat, "-i", cfg.DisplayInput)
	if withAudio {
		args = append(args, "-f", cfg.DisplayAudioFormat, "-i", cfg.DisplayAudioInput)
	}

	args = append(args, "-map", "0:v:0")
	if withAudio {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args, "-c:v", "mjpeg", "-q:v", "3")
	if withAudio {
		args = append(args, "-c:a", "pcm_s16le")
	}
	return append(args, "-f", "nut", "pipe:1")
}

func micArgs(cfg Config, mc ports.MicConstraints) []string {
	args := baseArgs()
	args = append(args, "-f", cfg.MicFormat, "-i", cfg.MicInput)

	var filters []string
	if mc.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if mc.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	return append(args, "-map", "0:a:0", "-c:a", "pcm_s16le", "-f", "nut", "pipe:1")
}

var (
	_ ports.DisplayCapturer    = (*Capturer)(nil)
	_ ports.MicrophoneCapturer = (*Capturer)(nil)
)
