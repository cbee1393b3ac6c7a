package domain

// Action tags every command and notification exchanged between surfaces.
type Action string

const (
	// Controller -> coordinator commands.
	ActionStartRecording Action = "startRecording"
	ActionStopRecording  Action = "stopRecording"

	// Coordinator -> capture commands.
	ActionStartCapture  Action = "startRecordingWithStreamId"
	ActionCheckMeetPage Action = "checkMeetPage"

	// Capture -> coordinator notifications.
	ActionRecordingStarted  Action = "recordingStarted"
	ActionRecordingStopped  Action = "recordingStopped"
	ActionRecordingCanceled Action = "recordingCanceled"
	ActionMicDenied         Action = "micDenied"

	// Coordinator -> capture broadcast.
	ActionStateChanged Action = "stateChanged"
)

// StartRequest is the payload of a start command.
type StartRequest struct {
	TabID      string `json:"tabId,omitempty"`
	IncludeMic bool   `json:"includeMic"`
}

// CommandReply is the reply to start and stop commands.
type CommandReply struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MicDenied bool   `json:"micDenied,omitempty"`
}

// MeetPageReply is the reply to checkMeetPage.
type MeetPageReply struct {
	IsMeetPage bool `json:"isMeetPage"`
}

// StateChange is broadcast to capture surfaces whenever the shared state changes.
type StateChange struct {
	IsRecording bool `json:"isRecording"`
}

// ReplyFor builds the command reply for an operation result.
func ReplyFor(err error) CommandReply {
	if err != nil {
		return CommandReply{Success: false, Error: err.Error()}
	}
	return CommandReply{Success: true}
}
