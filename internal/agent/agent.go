package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/meetrec/internal/adapters/ws"
	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/rpc"
	"github.com/bft-labs/meetrec/pkg/log"
)

// teardownTimeout bounds the final save when the agent shuts down.
const teardownTimeout = 10 * time.Second

// Recorder is the capture use case the agent drives.
type Recorder interface {
	Start(ctx context.Context, includeMic bool) (app.StartResult, error)
	Stop(ctx context.Context) error
	CheckMeetPage() bool
	Close(ctx context.Context) error
}

// Indicator mirrors the shared recording state.
type Indicator interface {
	Apply(recording bool)
}

// Session is one connection to the coordinator.
type Session interface {
	Handle(action domain.Action, h rpc.HandlerFunc)
	Serve(ctx context.Context) error
	Notify(action domain.Action) error
	Close() error
}

// DialFunc opens a session to the coordinator.
type DialFunc func(ctx context.Context) (Session, error)

// Config configures an Agent.
type Config struct {
	CoordinatorURL string
	TabID          string
	MeetingURL     string

	// BackoffInitial and BackoffMax bound reconnect delays.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Agent connects a Recorder to the coordinator.
type Agent struct {
	cfg       Config
	dial      DialFunc
	indicator Indicator
	logger    log.Logger

	mu      sync.Mutex
	session Session
}

// New creates an agent that dials the coordinator over a websocket.
func New(cfg Config, indicator Indicator, logger log.Logger) *Agent {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	a := &Agent{cfg: cfg, indicator: indicator, logger: logger}
	a.dial = func(ctx context.Context) (Session, error) {
		c, err := ws.Dial(ctx, cfg.CoordinatorURL, cfg.TabID, cfg.MeetingURL, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return a
}

// WithDialer replaces how sessions are opened.
func (a *Agent) WithDialer(d DialFunc) *Agent {
	a.dial = d
	return a
}

// Notify implements ports.CaptureNotifier over the current session.
func (a *Agent) Notify(action domain.Action) error {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s == nil {
		return fmt.Errorf("%s: not connected to coordinator", action)
	}
	return s.Notify(action)
}

// Run serves rec until ctx is canceled, reconnecting with backoff when the
// coordinator goes away. An active recording is stopped and saved on return
// and whenever the connection is lost, since the coordinator drops the
// session of a tab it can no longer reach.
func (a *Agent) Run(ctx context.Context, rec Recorder) error {
	defer a.teardown(rec)

	initial, max := a.cfg.BackoffInitial, a.cfg.BackoffMax
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	back := newBackoff(initial, max)

	for {
		s, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("Coordinator unavailable, retrying",
				log.Duration("backoff", back.Current()),
				log.Err(err),
			)
			if err := back.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		back.Reset()

		a.logger.Info("Connected to coordinator",
			log.String("tab_id", a.cfg.TabID),
			log.Bool("meeting_page", rec.CheckMeetPage()),
		)
		err = a.serve(ctx, s, rec)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("Coordinator connection lost", log.Err(err))
		a.teardown(rec)
		if err := back.Wait(ctx); err != nil {
			return nil
		}
	}
}

func (a *Agent) serve(ctx context.Context, s Session, rec Recorder) error {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.session == s {
			a.session = nil
		}
		a.mu.Unlock()
		_ = s.Close()
	}()

	s.Handle(domain.ActionStartCapture, func(ctx context.Context, e rpc.Envelope) (any, error) {
		var req domain.StartRequest
		if err := e.Decode(&req); err != nil {
			return nil, fmt.Errorf("decode start request: %w", err)
		}
		res, err := rec.Start(ctx, req.IncludeMic)
		reply := domain.ReplyFor(err)
		reply.MicDenied = res.MicDenied
		return reply, nil
	})
	s.Handle(domain.ActionStopRecording, func(ctx context.Context, e rpc.Envelope) (any, error) {
		return domain.ReplyFor(rec.Stop(ctx)), nil
	})
	s.Handle(domain.ActionCheckMeetPage, func(ctx context.Context, e rpc.Envelope) (any, error) {
		return domain.MeetPageReply{IsMeetPage: rec.CheckMeetPage()}, nil
	})
	s.Handle(domain.ActionStateChanged, func(ctx context.Context, e rpc.Envelope) (any, error) {
		var sc domain.StateChange
		if err := e.Decode(&sc); err != nil {
			return nil, err
		}
		if a.indicator != nil {
			a.indicator.Apply(sc.IsRecording)
		}
		return nil, nil
	})

	return s.Serve(ctx)
}

func (a *Agent) teardown(rec Recorder) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := rec.Close(ctx); err != nil && !errors.Is(err, domain.ErrNoActiveRecording) {
		a.logger.Error("Failed to stop recording", log.Err(err))
	}
	if a.indicator != nil {
		a.indicator.Apply(false)
	}
}
