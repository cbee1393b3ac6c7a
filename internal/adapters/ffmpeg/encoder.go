package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/meetrec/internal/media"
	"github.com/bft-labs/meetrec/internal/ports"
	"github.com/bft-labs/meetrec/pkg/log"
)

var (
	errEncoderActive   = errors.New("encoder already started")
	errEncoderInactive = errors.New("encoder is not recording")
)

// Factory probes ffmpeg encoders and creates webm encoders.
// It implements ports.EncoderFactory.
type Factory struct {
	cfg    Config
	logger log.Logger

	probeOnce sync.Once
	available map[string]bool
	probeErr  error
}

// NewFactory creates a Factory.
func NewFactory(cfg Config, logger log.Logger) *Factory {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Factory{cfg: cfg.withDefaults(), logger: logger}
}

// Encoders lists the encoders of the ffmpeg binary. The result is cached.
func (f *Factory) Encoders() (map[string]bool, error) {
	f.probeOnce.Do(func() {
		out, err := exec.Command(f.cfg.Command, "-hide_banner", "-encoders").Output()
		if err != nil {
			f.probeErr = fmt.Errorf("failed to list ffmpeg encoders: %w", err)
			return
		}
		f.available = parseEncoders(string(out))
	})
	return f.available, f.probeErr
}

// IsTypeSupported reports whether mimeType can be encoded.
func (f *Factory) IsTypeSupported(mimeType string) bool {
	available, err := f.Encoders()
	if err != nil {
		f.logger.Debug("Encoder probe failed", log.Err(err))
		return false
	}
	_, err = resolveCodecs(mimeType, available)
	return err == nil
}

// NewEncoder prepares an encoder for s. Its tracks must come from a
// Capturer or a Mixer graph.
func (f *Factory) NewEncoder(s *media.Stream, opts ports.EncoderOptions, h ports.EncoderHandlers) (ports.Encoder, error) {
	available, err := f.Encoders()
	if err != nil {
		return nil, err
	}
	codecs, err := resolveCodecs(opts.MimeType, available)
	if err != nil {
		return nil, err
	}
	plan, err := planInputs(s)
	if err != nil {
		return nil, err
	}
	if plan.hasAudio() && codecs.audio == "" {
		return nil, fmt.Errorf("no audio encoder for %q", opts.MimeType)
	}

	return &Encoder{
		cfg:      f.cfg,
		logger:   f.logger,
		opts:     opts,
		handlers: h,
		plan:     plan,
		args:     encoderArgs(plan, codecs, opts),
		state:    ports.EncoderInactive,
	}, nil
}

// inputPlan maps the composed stream onto encoder inputs.
type inputPlan struct {
	sources []*source
	video   *sourceTrack
	audio   []*sourceTrack
}

func (p inputPlan) hasAudio() bool { return len(p.audio) > 0 }

func (p inputPlan) index(s *source) int {
	for i, src := range p.sources {
		if src == s {
			return i
		}
	}
	return -1
}

func (p *inputPlan) add(t *sourceTrack) {
	if p.index(t.src) < 0 {
		p.sources = append(p.sources, t.src)
	}
}

func planInputs(s *media.Stream) (inputPlan, error) {
	var plan inputPlan

	if v := media.FirstVideoTrack(s); v != nil {
		st, ok := v.(*sourceTrack)
		if !ok {
			return plan, fmt.Errorf("video track %s was not captured by ffmpeg", v.ID())
		}
		plan.video = st
		plan.add(st)
	}

	if a := media.FirstAudioTrack(s); a != nil {
		switch t := a.(type) {
		case *mixTrack:
			plan.audio = t.sources()
		case *sourceTrack:
			plan.audio = []*sourceTrack{t}
		default:
			return plan, fmt.Errorf("audio track %s was not captured by ffmpeg", a.ID())
		}
		for _, st := range plan.audio {
			plan.add(st)
		}
	}

	if len(plan.sources) == 0 {
		return plan, errors.New("stream has no tracks to encode")
	}
	return plan, nil
}

// encoderArgs builds the encoder command line. Input i is read from file
// descriptor 3+i.
func encoderArgs(plan inputPlan, codecs codecPlan, opts ports.EncoderOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	for i := range plan.sources {
		args = append(args, "-f", "nut", "-i", "pipe:"+strconv.Itoa(3+i))
	}

	if plan.video != nil {
		args = append(args, "-map", fmt.Sprintf("%d:%s", plan.index(plan.video.src), plan.video.stream))
	}

	switch len(plan.audio) {
	case 0:
	case 1:
		a := plan.audio[0]
		args = append(args, "-map", fmt.Sprintf("%d:%s", plan.index(a.src), a.stream))
	default:
		var b strings.Builder
		for _, a := range plan.audio {
			fmt.Fprintf(&b, "[%d:%s]", plan.index(a.src), a.stream)
		}
		fmt.Fprintf(&b, "amix=inputs=%d:duration=longest:dropout_transition=0[mix]", len(plan.audio))
		args = append(args, "-filter_complex", b.String(), "-map", "[mix]")
	}

	if plan.video != nil {
		args = append(args, "-c:v", codecs.video, "-deadline", "realtime", "-cpu-used", "8")
		if opts.VideoBitsPerSecond > 0 {
			args = append(args, "-b:v", strconv.Itoa(opts.VideoBitsPerSecond))
		}
	}
	if len(plan.audio) > 0 {
		args = append(args, "-c:a", codecs.audio)
		if opts.AudioBitsPerSecond > 0 {
			args = append(args, "-b:a", strconv.Itoa(opts.AudioBitsPerSecond))
		}
	}

	return append(args, "-flush_packets", "1", "-f", "webm", "pipe:1")
}

// Encoder runs the ffmpeg encoder process. It implements ports.Encoder.
type Encoder struct {
	cfg      Config
	logger   log.Logger
	opts     ports.EncoderOptions
	handlers ports.EncoderHandlers
	plan     inputPlan
	args     []string

	mu       sync.Mutex
	state    ports.EncoderState
	started  bool
	stopping bool
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	exited   chan struct{}
}

// Args returns the encoder command line.
func (e *Encoder) Args() []string {
	return append([]string(nil), e.args...)
}

// MimeType returns the negotiated mime type.
func (e *Encoder) MimeType() string { return e.opts.MimeType }

// State returns the current state.
func (e *Encoder) State() ports.EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start launches ffmpeg and emits a chunk every timeslice.
func (e *Encoder) Start(timeslice time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errEncoderActive
	}
	if timeslice <= 0 {
		timeslice = time.Second
	}

	cmd := exec.Command(e.cfg.Command, e.args...)
	for _, src := range e.plan.sources {
		cmd.ExtraFiles = append(cmd.ExtraFiles, src.reader)
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create encoder stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create encoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.started = true
	e.state = ports.EncoderRecording
	e.exited = make(chan struct{})

	go e.run(stdout, stderr, timeslice)
	return nil
}

// run forwards encoder output in timeslice chunks until ffmpeg exits, then
// reports completion.
func (e *Encoder) run(stdout io.Reader, stderr *lockedBuffer, timeslice time.Duration) {
	reads := make(chan []byte, 16)
	go func() {
		defer close(reads)
		buf := make([]byte, 64*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				reads <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				return
			}
		}
	}()

	var pending bytes.Buffer
	flush := func() {
		if pending.Len() == 0 {
			return
		}
		chunk := append([]byte(nil), pending.Bytes()...)
		pending.Reset()
		if e.handlers.OnData != nil {
			e.handlers.OnData(chunk)
		}
	}

	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

loop:
	for {
		select {
		case b, ok := <-reads:
			if !ok {
				break loop
			}
			pending.Write(b)
		case <-ticker.C:
			flush()
		}
	}
	flush()

	waitErr := e.cmd.Wait()
	close(e.exited)

	e.mu.Lock()
	stopping := e.stopping
	e.state = ports.EncoderInactive
	e.mu.Unlock()

	// A non-zero exit is expected after a quit request or interrupt.
	var failure error
	switch {
	case waitErr == nil:
	case stopping:
		failure = normalizeStopErr(waitErr)
	default:
		failure = waitErr
	}
	if failure != nil && e.handlers.OnError != nil {
		if msg := trimSpace(stderr.String()); msg != "" {
			failure = fmt.Errorf("encoder failed: %w: %s", failure, msg)
		} else {
			failure = fmt.Errorf("encoder failed: %w", failure)
		}
		e.handlers.OnError(failure)
	}

	if e.handlers.OnStop != nil {
		e.handlers.OnStop()
	}
}

// Stop asks ffmpeg to finish the file. OnStop fires once it has exited.
// Escalates to SIGINT and then kill when ffmpeg ignores the request.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	if e.state != ports.EncoderRecording || e.stopping {
		e.mu.Unlock()
		return errEncoderInactive
	}
	e.stopping = true
	stdin := e.stdin
	process := e.cmd.Process
	exited := e.exited
	grace := e.cfg.StopGrace
	e.mu.Unlock()

	_, _ = io.WriteString(stdin, "q\n")
	_ = stdin.Close()

	go func() {
		select {
		case <-exited:
			return
		case <-time.After(grace):
		}
		e.logger.Warn("Encoder ignored quit request, interrupting")
		_ = process.Signal(os.Interrupt)

		select {
		case <-exited:
		case <-time.After(grace):
			e.logger.Warn("Encoder ignored interrupt, killing")
			_ = process.Kill()
		}
	}()
	return nil
}

var (
	_ ports.EncoderFactory = (*Factory)(nil)
	_ ports.Encoder        = (*Encoder)(nil)
)
