package domain

import "time"

// Session is the recording session owned by one coordinator instance.
// A zero Session means no tab is recording.
type Session struct {
	// TabID identifies the tab performing capture.
	TabID string

	// StartTime is set once the capture surface reports recording started.
	StartTime time.Time

	// Recording is true between recordingStarted and stop/cancel/tab close.
	Recording bool

	// MicDenied records that the microphone could not be acquired.
	MicDenied bool
}

// Active reports whether the session holds a tab.
func (s Session) Active() bool {
	return s.TabID != ""
}

// Shared returns the persisted projection of the session.
func (s Session) Shared() SharedState {
	if !s.Recording {
		return IdleState()
	}
	ms := s.StartTime.UnixMilli()
	tab := s.TabID
	return SharedState{
		IsRecording:    true,
		StartTime:      &ms,
		RecordingTabID: &tab,
	}
}

// SharedState is the persisted state observed by controllers.
// JSON keys are the public contract of the state file.
type SharedState struct {
	IsRecording    bool    `json:"isRecording"`
	StartTime      *int64  `json:"startTime"`
	RecordingTabID *string `json:"recordingTabId"`
}

// IdleState returns the state persisted when nothing is recording.
func IdleState() SharedState {
	return SharedState{}
}

// Started returns the recording start time, or the zero time when unset.
func (s SharedState) Started() time.Time {
	if s.StartTime == nil {
		return time.Time{}
	}
	return time.UnixMilli(*s.StartTime)
}

// TabID returns the recording tab, or "" when unset.
func (s SharedState) TabID() string {
	if s.RecordingTabID == nil {
		return ""
	}
	return *s.RecordingTabID
}

// Elapsed returns the recording duration at now, or zero when idle.
func (s SharedState) Elapsed(now time.Time) time.Duration {
	if !s.IsRecording || s.StartTime == nil {
		return 0
	}
	d := now.Sub(s.Started())
	if d < 0 {
		return 0
	}
	return d
}
