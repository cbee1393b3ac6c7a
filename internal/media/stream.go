package media

import (
	"sync"

	"github.com/google/uuid"
)

// Stream groups the tracks produced by one capture or composition.
type Stream struct {
	id string

	mu     sync.RWMutex
	tracks []Track
}

// NewStream creates a stream holding tracks in order.
func NewStream(tracks ...Track) *Stream {
	return &Stream{
		id:     uuid.NewString(),
		tracks: append([]Track(nil), tracks...),
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// AddTrack appends a track.
func (s *Stream) AddTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

// Tracks returns all tracks in insertion order.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Track(nil), s.tracks...)
}

// AudioTracks returns the audio tracks in insertion order.
func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

// VideoTracks returns the video tracks in insertion order.
func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }

func (s *Stream) byKind(kind TrackKind) []Track {
	var out []Track
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// StopAll stops every track. A nil stream is ignored.
func (s *Stream) StopAll() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// FirstVideoTrack returns the first video track of s, or nil.
// The composed recording stream takes exactly this track as its picture.
func FirstVideoTrack(s *Stream) Track {
	if v := s.VideoTracks(); len(v) > 0 {
		return v[0]
	}
	return nil
}

// FirstAudioTrack returns the first audio track of s, or nil.
// Applied to a mix destination it selects the mixed audio track.
func FirstAudioTrack(s *Stream) Track {
	if a := s.AudioTracks(); len(a) > 0 {
		return a[0]
	}
	return nil
}

// Compose builds a stream from the non-nil tracks given.
func Compose(tracks ...Track) *Stream {
	out := NewStream()
	for _, t := range tracks {
		if t != nil {
			out.AddTrack(t)
		}
	}
	return out
}
