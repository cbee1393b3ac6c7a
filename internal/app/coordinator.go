package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/ports"
	"github.com/bft-labs/meetrec/pkg/log"
)

// StartResult reports the outcome of a successful start.
type StartResult struct {
	// MicDenied is set when the microphone could not be captured and the
	// recording continues without it.
	MicDenied bool
}

// TabStatus describes a connected tab for controllers.
type TabStatus struct {
	TabID      string `json:"tabId"`
	URL        string `json:"url"`
	IsMeetPage bool   `json:"isMeetPage"`
}

// Coordinator owns the recording session. It relays commands to the capture
// agent of the recording tab and mirrors status into the shared state and
// badge.
type Coordinator struct {
	relay  ports.TabRelay
	state  ports.StateRepository
	badge  ports.BadgeWriter
	logger log.Logger
	now    func() time.Time

	mu      sync.Mutex
	session domain.Session

	strays sync.WaitGroup
}

// NewCoordinator creates a coordinator with no session.
func NewCoordinator(relay ports.TabRelay, state ports.StateRepository, badge ports.BadgeWriter, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Coordinator{
		relay:  relay,
		state:  state,
		badge:  badge,
		logger: logger,
		now:    time.Now,
	}
}

// Init resets the shared state and badge. No agent can be recording when a
// coordinator starts.
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	c.session = domain.Session{}
	c.mu.Unlock()

	if err := c.state.Save(ctx, domain.IdleState()); err != nil {
		return fmt.Errorf("initialize state: %w", err)
	}
	if err := c.badge.SetBadge(ctx, domain.ClearedBadge()); err != nil {
		return fmt.Errorf("initialize badge: %w", err)
	}
	return nil
}

// Start asks the agent of tabID to begin capturing. The shared state is left
// untouched until the agent reports recordingStarted.
func (c *Coordinator) Start(ctx context.Context, tabID string, includeMic bool) (StartResult, error) {
	if tabID == "" {
		return StartResult{}, fmt.Errorf("%w: no tab given", domain.ErrTabNotFound)
	}

	c.mu.Lock()
	if c.session.Active() {
		c.mu.Unlock()
		return StartResult{}, domain.ErrAlreadyRecording
	}
	c.session = domain.Session{TabID: tabID}
	c.mu.Unlock()

	c.logger.Info("Starting recording", log.String("tab_id", tabID), log.Bool("include_mic", includeMic))

	var reply domain.CommandReply
	err := c.relay.Request(ctx, tabID, domain.ActionStartCapture, domain.StartRequest{IncludeMic: includeMic}, &reply)
	if err == nil && !reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = "failed to start recording"
		}
		err = errors.New(msg)
	}
	if err != nil {
		c.logger.Warn("Start failed", log.String("tab_id", tabID), log.Err(err))
		c.abandon(ctx, tabID)
		return StartResult{}, err
	}

	c.mu.Lock()
	if c.session.TabID == tabID {
		c.session.MicDenied = c.session.MicDenied || reply.MicDenied
	}
	micDenied := c.session.MicDenied || reply.MicDenied
	c.mu.Unlock()

	return StartResult{MicDenied: micDenied}, nil
}

// abandon clears a session whose start failed. A session the agent already
// reported as recording is reset in the shared state too.
func (c *Coordinator) abandon(ctx context.Context, tabID string) {
	c.mu.Lock()
	if c.session.TabID != tabID {
		c.mu.Unlock()
		return
	}
	wasRecording := c.session.Recording
	c.session = domain.Session{}
	c.mu.Unlock()

	if wasRecording {
		c.publish(ctx, domain.IdleState(), domain.ClearedBadge())
	}
}

// Stop asks the recording tab to stop. An unreachable tab counts as already
// stopped. The session, badge and shared state are reset either way.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.session.Active() {
		c.mu.Unlock()
		return domain.ErrNoActiveRecording
	}
	tabID := c.session.TabID
	c.mu.Unlock()

	c.logger.Info("Stopping recording", log.String("tab_id", tabID))

	var reply domain.CommandReply
	err := c.relay.Request(ctx, tabID, domain.ActionStopRecording, nil, &reply)
	switch {
	case errors.Is(err, domain.ErrTabUnreachable), errors.Is(err, domain.ErrTabNotFound):
		c.logger.Info("Recording tab unreachable, treating as stopped", log.String("tab_id", tabID), log.Err(err))
	case err != nil:
		c.logger.Warn("Stop request failed", log.String("tab_id", tabID), log.Err(err))
	case !reply.Success:
		c.logger.Warn("Agent refused stop", log.String("tab_id", tabID), log.String("error", reply.Error))
	}

	c.mu.Lock()
	if c.session.TabID == tabID {
		c.session = domain.Session{}
	}
	c.mu.Unlock()

	c.publish(ctx, domain.IdleState(), domain.ClearedBadge())
	return nil
}

// CheckMeetPage asks the agent of tabID whether it shows a meeting page.
func (c *Coordinator) CheckMeetPage(ctx context.Context, tabID string) (bool, error) {
	var reply domain.MeetPageReply
	if err := c.relay.Request(ctx, tabID, domain.ActionCheckMeetPage, nil, &reply); err != nil {
		return false, err
	}
	return reply.IsMeetPage, nil
}

// HandleNotification applies a capture notification from tabID.
// Notifications from tabs other than the session tab are ignored.
func (c *Coordinator) HandleNotification(ctx context.Context, tabID string, action domain.Action) {
	c.mu.Lock()
	if !c.session.Active() || c.session.TabID != tabID {
		current := c.session.TabID
		c.mu.Unlock()
		c.logger.Warn("Ignoring notification from non-recording tab",
			log.String("action", string(action)),
			log.String("tab_id", tabID),
			log.String("recording_tab_id", current),
		)
		if action == domain.ActionRecordingStarted {
			c.stopStray(tabID)
		}
		return
	}

	switch action {
	case domain.ActionRecordingStarted:
		c.session.Recording = true
		c.session.StartTime = c.now()
		shared := c.session.Shared()
		c.mu.Unlock()
		c.logger.Info("Recording started", log.String("tab_id", tabID))
		c.publish(ctx, shared, domain.RecordingBadge())

	case domain.ActionRecordingStopped, domain.ActionRecordingCanceled:
		c.session = domain.Session{}
		c.mu.Unlock()
		if action == domain.ActionRecordingCanceled {
			c.logger.Info("Recording canceled by user", log.String("tab_id", tabID))
		} else {
			c.logger.Info("Recording stopped", log.String("tab_id", tabID))
		}
		c.publish(ctx, domain.IdleState(), domain.ClearedBadge())

	case domain.ActionMicDenied:
		c.session.MicDenied = true
		c.mu.Unlock()
		c.logger.Warn("Microphone capture denied, recording without it", log.String("tab_id", tabID))

	default:
		c.mu.Unlock()
		c.logger.Warn("Unknown notification", log.String("action", string(action)), log.String("tab_id", tabID))
	}
}

// stopStray stops a capture that holds no session, such as one whose start
// was abandoned before the user approved the share. The request runs in the
// background because notifications arrive on the connection that carries
// its reply.
func (c *Coordinator) stopStray(tabID string) {
	c.logger.Warn("Stopping capture without a session", log.String("tab_id", tabID))
	c.strays.Add(1)
	go func() {
		defer c.strays.Done()
		var reply domain.CommandReply
		err := c.relay.Request(context.Background(), tabID, domain.ActionStopRecording, nil, &reply)
		if err == nil && !reply.Success {
			err = errors.New(reply.Error)
		}
		if err != nil {
			c.logger.Warn("Failed to stop capture without a session", log.String("tab_id", tabID), log.Err(err))
		}
	}()
}

// Close waits for background stop requests to finish.
func (c *Coordinator) Close() {
	c.strays.Wait()
}

// TabOpened logs meeting tabs and sends the tab the current state.
func (c *Coordinator) TabOpened(ctx context.Context, tabID, url string) {
	if domain.IsMeetPage(url) {
		c.logger.Info("Meeting tab detected", log.String("tab_id", tabID), log.String("url", url))
	} else {
		c.logger.Debug("Tab connected", log.String("tab_id", tabID), log.String("url", url))
	}

	c.mu.Lock()
	shared := c.session.Shared()
	c.mu.Unlock()

	if err := c.relay.Notify(tabID, domain.ActionStateChanged, domain.StateChange{IsRecording: shared.IsRecording}); err != nil {
		c.logger.Debug("Failed to send initial state", log.String("tab_id", tabID), log.Err(err))
	}
}

// TabClosed resets the session when the recording tab goes away.
func (c *Coordinator) TabClosed(ctx context.Context, tabID string) {
	c.mu.Lock()
	if !c.session.Active() || c.session.TabID != tabID {
		c.mu.Unlock()
		return
	}
	c.session = domain.Session{}
	c.mu.Unlock()

	c.logger.Info("Recording tab closed, resetting state", log.String("tab_id", tabID))
	c.publish(ctx, domain.IdleState(), domain.ClearedBadge())
}

// State returns the shared projection of the current session.
func (c *Coordinator) State() domain.SharedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Shared()
}

// Session returns a copy of the current session.
func (c *Coordinator) Session() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Tabs lists the connected tabs.
func (c *Coordinator) Tabs() []TabStatus {
	infos := c.relay.Tabs()
	out := make([]TabStatus, 0, len(infos))
	for _, t := range infos {
		out = append(out, TabStatus{TabID: t.TabID, URL: t.URL, IsMeetPage: domain.IsMeetPage(t.URL)})
	}
	return out
}

// publish writes the shared state and badge and broadcasts the change.
// Failures are logged; the in-memory session stays authoritative.
func (c *Coordinator) publish(ctx context.Context, shared domain.SharedState, badge domain.Badge) {
	if err := c.state.Save(ctx, shared); err != nil {
		c.logger.Error("Failed to save state", log.Err(err))
	}
	if err := c.badge.SetBadge(ctx, badge); err != nil {
		c.logger.Error("Failed to update badge", log.Err(err))
	}
	c.relay.Broadcast(domain.ActionStateChanged, domain.StateChange{IsRecording: shared.IsRecording})
}
