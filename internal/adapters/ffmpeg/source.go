package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/media"
)

// trackSpec declares one elementary stream of a source's NUT output.
type trackSpec struct {
	kind   media.TrackKind
	label  string
	stream string // ffmpeg stream specifier inside the source, e.g. "v:0"
}

// source is one running capture process.
type source struct {
	name      string
	cmd       *exec.Cmd
	reader    *os.File
	stderr    *lockedBuffer
	stopGrace time.Duration

	exited  chan struct{}
	exitErr error

	mu       sync.Mutex
	refs     int
	stopping bool
	tracks   []*sourceTrack
}

// sourceTrack is a track backed by a stream of a source process.
type sourceTrack struct {
	*media.BaseTrack
	src    *source
	stream string
}

// startSource runs ffmpeg with args writing NUT to a pipe and waits
// StartupGrace for it to fail. ctx only bounds startup.
func startSource(ctx context.Context, cfg Config, name string, args []string, specs []trackSpec) (*source, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%s capture: create pipe: %w", name, err)
	}

	cmd := exec.Command(cfg.Command, args...)
	stderr := &lockedBuffer{}
	cmd.Stdout = w
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("%s capture: failed to start ffmpeg: %w", name, err)
	}
	w.Close()

	s := &source{
		name:      name,
		cmd:       cmd,
		reader:    r,
		stderr:    stderr,
		stopGrace: cfg.StopGrace,
		exited:    make(chan struct{}),
	}
	go func() {
		s.exitErr = cmd.Wait()
		close(s.exited)
	}()

	timer := time.NewTimer(cfg.StartupGrace)
	defer timer.Stop()

	select {
	case <-s.exited:
		r.Close()
		return nil, classifyExit(name, s.exitErr, stderr.String())
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-s.exited
		r.Close()
		return nil, fmt.Errorf("%s capture: %w", name, domain.ErrAborted)
	case <-timer.C:
	}

	for _, spec := range specs {
		t := &sourceTrack{src: s, stream: spec.stream}
		t.BaseTrack = media.NewTrack(spec.kind, spec.label, s.release)
		s.tracks = append(s.tracks, t)
	}
	s.refs = len(s.tracks)

	go s.watch()
	return s, nil
}

// stream wraps the source's tracks.
func (s *source) stream() *media.Stream {
	out := media.NewStream()
	for _, t := range s.tracks {
		out.AddTrack(t)
	}
	return out
}

// watch ends every track when the process exits without being stopped,
// e.g. the grabbed window closed.
func (s *source) watch() {
	<-s.exited

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return
	}
	for _, t := range s.tracks {
		t.End()
	}
}

// release drops one track reference and stops the process with the last one.
func (s *source) release() {
	s.mu.Lock()
	s.refs--
	if s.refs > 0 || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	s.mu.Unlock()

	s.stop()
}

// stop interrupts the process, closes the pipe so blocked writes fail, and
// kills it after the grace period.
func (s *source) stop() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
	}
	_ = s.reader.Close()

	select {
	case <-s.exited:
	case <-time.After(s.stopGrace):
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.exited
	}
}
