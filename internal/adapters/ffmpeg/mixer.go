package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/meetrec/internal/media"
	"github.com/bft-labs/meetrec/internal/ports"
)

var errGraphClosed = errors.New("audio graph closed")

// Mixer implements ports.AudioMixer. Its graphs are resolved into an amix
// filter when the encoder starts.
type Mixer struct{}

// NewMixer creates a Mixer.
func NewMixer() *Mixer { return &Mixer{} }

// NewGraph creates an empty graph.
func (m *Mixer) NewGraph(ctx context.Context) (ports.AudioGraph, error) {
	return &graph{dest: media.NewStream()}, nil
}

// mixTrack is the destination track of a graph. Its inputs are mixed by the
// encoder.
type mixTrack struct {
	*media.BaseTrack

	mu     sync.Mutex
	inputs []*sourceTrack
}

func (m *mixTrack) sources() []*sourceTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*sourceTrack(nil), m.inputs...)
}

type graph struct {
	mu     sync.Mutex
	dest   *media.Stream
	mix    *mixTrack
	closed bool
}

// Connect routes every audio track of s into the mix. Only tracks produced
// by this package can be mixed.
func (g *graph) Connect(s *media.Stream) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errGraphClosed
	}

	var inputs []*sourceTrack
	for _, t := range s.AudioTracks() {
		st, ok := t.(*sourceTrack)
		if !ok {
			return fmt.Errorf("audio track %s was not captured by ffmpeg", t.ID())
		}
		inputs = append(inputs, st)
	}
	if len(inputs) == 0 {
		return nil
	}

	if g.mix == nil {
		g.mix = &mixTrack{BaseTrack: media.NewTrack(media.KindAudio, "mix", nil)}
		g.dest.AddTrack(g.mix)
	}
	g.mix.mu.Lock()
	g.mix.inputs = append(g.mix.inputs, inputs...)
	g.mix.mu.Unlock()
	return nil
}

// Destination returns the mixed stream.
func (g *graph) Destination() *media.Stream {
	return g.dest
}

// Close ends the mix track. Source tracks are left to their owners.
func (g *graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.mix != nil {
		g.mix.Stop()
	}
	return nil
}

var _ ports.AudioMixer = (*Mixer)(nil)
