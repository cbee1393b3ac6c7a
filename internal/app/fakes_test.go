package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/media"
	"github.com/bft-labs/meetrec/internal/ports"
)

// mockObserver records daemon phase changes.
type mockObserver struct {
	mu      sync.Mutex
	changes []phaseChange
}

type phaseChange struct {
	from, to Phase
	reason   string
}

func (m *mockObserver) OnPhaseChange(from, to Phase, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, phaseChange{from, to, reason})
}

// Path returns the phases entered, in order.
func (m *mockObserver) Path() []Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Phase, 0, len(m.changes))
	for _, c := range m.changes {
		out = append(out, c.to)
	}
	return out
}

// mockStateRepo records every saved state.
type mockStateRepo struct {
	mu    sync.Mutex
	saves []domain.SharedState
}

func (m *mockStateRepo) Load(ctx context.Context) (domain.SharedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return domain.IdleState(), nil
	}
	return m.saves[len(m.saves)-1], nil
}

func (m *mockStateRepo) Save(ctx context.Context, s domain.SharedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, s)
	return nil
}

func (m *mockStateRepo) Saves() []domain.SharedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SharedState(nil), m.saves...)
}

func (m *mockStateRepo) Last() domain.SharedState {
	s, _ := m.Load(context.Background())
	return s
}

// mockBadge records every badge.
type mockBadge struct {
	mu     sync.Mutex
	badges []domain.Badge
}

func (m *mockBadge) SetBadge(ctx context.Context, b domain.Badge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges = append(m.badges, b)
	return nil
}

func (m *mockBadge) Last() (domain.Badge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.badges) == 0 {
		return domain.Badge{}, false
	}
	return m.badges[len(m.badges)-1], true
}

type relayCall struct {
	tabID   string
	action  domain.Action
	payload any
}

// mockRelay answers requests with respond.
type mockRelay struct {
	mu         sync.Mutex
	calls      []relayCall
	notes      []relayCall
	broadcasts []domain.StateChange
	tabs       []ports.TabInfo
	respond    func(tabID string, action domain.Action, payload, out any) error
}

func (m *mockRelay) Request(ctx context.Context, tabID string, action domain.Action, payload, out any) error {
	m.mu.Lock()
	m.calls = append(m.calls, relayCall{tabID, action, payload})
	respond := m.respond
	m.mu.Unlock()
	if respond == nil {
		return nil
	}
	return respond(tabID, action, payload, out)
}

func (m *mockRelay) Notify(tabID string, action domain.Action, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, relayCall{tabID, action, payload})
	return nil
}

func (m *mockRelay) Broadcast(action domain.Action, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sc, ok := payload.(domain.StateChange); ok {
		m.broadcasts = append(m.broadcasts, sc)
	}
}

func (m *mockRelay) Tabs() []ports.TabInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.TabInfo(nil), m.tabs...)
}

func (m *mockRelay) Calls() []relayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]relayCall(nil), m.calls...)
}

// reply writes v into out when out points at the same type.
func reply[T any](out any, v T) {
	if p, ok := out.(*T); ok {
		*p = v
	}
}

// pendingDisplay blocks in CaptureDisplay until released or until ctx is
// done, like a share prompt the user has not answered yet.
type pendingDisplay struct {
	mockDisplay
	entered chan struct{}
	release chan struct{}
}

func newPendingDisplay() *pendingDisplay {
	return &pendingDisplay{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *pendingDisplay) CaptureDisplay(ctx context.Context, c ports.DisplayConstraints) (*media.Stream, error) {
	p.entered <- struct{}{}
	select {
	case <-p.release:
		return p.mockDisplay.CaptureDisplay(ctx, c)
	case <-ctx.Done():
		return nil, fmt.Errorf("display capture: %w", domain.ErrAborted)
	}
}

// mockDisplay hands out a stream with a video and optional audio track.
type mockDisplay struct {
	err     error
	noAudio bool
	noVideo bool

	mu       sync.Mutex
	video    *media.BaseTrack
	audio    *media.BaseTrack
	captures int
}

func (m *mockDisplay) CaptureDisplay(ctx context.Context, c ports.DisplayConstraints) (*media.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures++
	if m.err != nil {
		return nil, m.err
	}
	s := media.NewStream()
	m.video, m.audio = nil, nil
	if !m.noVideo {
		m.video = media.NewTrack(media.KindVideo, "display", nil)
		s.AddTrack(m.video)
	}
	if !m.noAudio {
		m.audio = media.NewTrack(media.KindAudio, "tab-audio", nil)
		s.AddTrack(m.audio)
	}
	return s, nil
}

func (m *mockDisplay) Video() *media.BaseTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video
}

type mockMic struct {
	err   error
	track *media.BaseTrack
}

func (m *mockMic) CaptureMicrophone(ctx context.Context, c ports.MicConstraints) (*media.Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.track = media.NewTrack(media.KindAudio, "mic", nil)
	return media.NewStream(m.track), nil
}

// mockGraph mixes into one destination track per connected source set.
type mockGraph struct {
	mu        sync.Mutex
	connected []*media.Stream
	dest      *media.Stream
	closed    bool
}

func (g *mockGraph) Connect(s *media.Stream) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = append(g.connected, s)
	if len(g.dest.Tracks()) == 0 {
		g.dest.AddTrack(media.NewTrack(media.KindAudio, "mix", nil))
	}
	return nil
}

func (g *mockGraph) Destination() *media.Stream { return g.dest }

func (g *mockGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *mockGraph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

type mockMixer struct {
	mu     sync.Mutex
	graphs []*mockGraph
}

func (m *mockMixer) NewGraph(ctx context.Context) (ports.AudioGraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &mockGraph{dest: media.NewStream()}
	m.graphs = append(m.graphs, g)
	return g, nil
}

func (m *mockMixer) Last() *mockGraph {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.graphs) == 0 {
		return nil
	}
	return m.graphs[len(m.graphs)-1]
}

// mockEncoder emits the configured chunks on Start and stops asynchronously.
type mockEncoder struct {
	opts     ports.EncoderOptions
	handlers ports.EncoderHandlers
	stream   *media.Stream
	chunks   [][]byte
	startErr error

	mu      sync.Mutex
	state   ports.EncoderState
	stopErr error
}

func (e *mockEncoder) Start(timeslice time.Duration) error {
	if e.startErr != nil {
		return e.startErr
	}
	e.mu.Lock()
	e.state = ports.EncoderRecording
	e.mu.Unlock()
	for _, c := range e.chunks {
		e.handlers.OnData(c)
	}
	return nil
}

func (e *mockEncoder) Stop() error {
	e.mu.Lock()
	if e.stopErr != nil {
		err := e.stopErr
		e.mu.Unlock()
		return err
	}
	if e.state != ports.EncoderRecording {
		e.mu.Unlock()
		return errors.New("inactive")
	}
	e.state = ports.EncoderInactive
	e.mu.Unlock()
	go e.handlers.OnStop()
	return nil
}

func (e *mockEncoder) failStop(err error) {
	e.mu.Lock()
	e.stopErr = err
	e.mu.Unlock()
}

func (e *mockEncoder) State() ports.EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == "" {
		return ports.EncoderInactive
	}
	return e.state
}

func (e *mockEncoder) MimeType() string { return e.opts.MimeType }

type mockEncoders struct {
	supported map[string]bool
	chunks    [][]byte
	startErr  error
	newErr    error

	mu       sync.Mutex
	encoders []*mockEncoder
}

func (f *mockEncoders) IsTypeSupported(mimeType string) bool {
	return f.supported[mimeType]
}

func (f *mockEncoders) NewEncoder(s *media.Stream, opts ports.EncoderOptions, h ports.EncoderHandlers) (ports.Encoder, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	e := &mockEncoder{opts: opts, handlers: h, stream: s, chunks: f.chunks, startErr: f.startErr}
	f.mu.Lock()
	f.encoders = append(f.encoders, e)
	f.mu.Unlock()
	return e, nil
}

func (f *mockEncoders) Last() *mockEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.encoders) == 0 {
		return nil
	}
	return f.encoders[len(f.encoders)-1]
}

type savedFile struct {
	name     string
	mimeType string
	data     []byte
}

type mockDownloader struct {
	mu    sync.Mutex
	files []savedFile
}

func (d *mockDownloader) Download(ctx context.Context, name, mimeType string, data io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = append(d.files, savedFile{name, mimeType, buf.Bytes()})
	return "/downloads/" + name, nil
}

func (d *mockDownloader) Files() []savedFile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]savedFile(nil), d.files...)
}

type mockNotifier struct {
	mu      sync.Mutex
	actions []domain.Action
	forward func(domain.Action)
}

func (n *mockNotifier) Notify(action domain.Action) error {
	n.mu.Lock()
	n.actions = append(n.actions, action)
	forward := n.forward
	n.mu.Unlock()
	if forward != nil {
		forward(action)
	}
	return nil
}

func (n *mockNotifier) Count(action domain.Action) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, a := range n.actions {
		if a == action {
			c++
		}
	}
	return c
}

func (n *mockNotifier) Actions() []domain.Action {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Action(nil), n.actions...)
}

func allSupported() map[string]bool {
	return map[string]bool{
		"video/webm;codecs=vp9,opus": true,
		"video/webm;codecs=vp8,opus": true,
		"video/webm":                 true,
	}
}
