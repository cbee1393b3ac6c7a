package media

import (
	"sync"

	"github.com/google/uuid"
)

// TrackKind is the media type carried by a track.
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// TrackState mirrors a track's ready state.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// Track is a single audio or video source inside a Stream.
//
// Ended is closed only when the source ends on its own (for a display track:
// the user stopped sharing). Stopping a track locally moves it to TrackEnded
// without closing Ended.
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	State() TrackState
	Ended() <-chan struct{}
	Stop()
}

// BaseTrack implements Track for adapters. The release function runs at most
// once, on the first Stop.
type BaseTrack struct {
	id    string
	kind  TrackKind
	label string

	mu      sync.Mutex
	state   TrackState
	stopped bool
	release func()

	ended     chan struct{}
	endedOnce sync.Once
}

// NewTrack creates a live track. release may be nil.
func NewTrack(kind TrackKind, label string, release func()) *BaseTrack {
	return &BaseTrack{
		id:      uuid.NewString(),
		kind:    kind,
		label:   label,
		state:   TrackLive,
		release: release,
		ended:   make(chan struct{}),
	}
}

func (t *BaseTrack) ID() string      { return t.id }
func (t *BaseTrack) Kind() TrackKind { return t.kind }
func (t *BaseTrack) Label() string   { return t.label }

// State returns the current ready state.
func (t *BaseTrack) State() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Ended is closed when the source ends without a local Stop.
func (t *BaseTrack) Ended() <-chan struct{} {
	return t.ended
}

// Stop releases the underlying source. Safe to call more than once, and
// after the source has ended.
func (t *BaseTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.state = TrackEnded
	release := t.release
	t.release = nil
	t.mu.Unlock()

	if release != nil {
		release()
	}
}

// End marks the track ended by its source and fires Ended. It is a no-op
// after a local Stop.
func (t *BaseTrack) End() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.state = TrackEnded
	t.mu.Unlock()

	t.endedOnce.Do(func() { close(t.ended) })
}
