package domain

import "errors"

// Domain errors are returned across surfaces and can be checked with errors.Is.
var (
	// ErrNoActiveRecording is returned when stop is requested without a session.
	ErrNoActiveRecording = errors.New("no active recording")

	// ErrAlreadyRecording is returned when start is requested while a session is active.
	ErrAlreadyRecording = errors.New("a recording is already in progress")

	// ErrPermissionDenied is returned when the user declines a capture permission.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAborted is returned when the user aborts a capture request.
	ErrAborted = errors.New("capture aborted")

	// ErrTabNotFound is returned when a command targets a tab that never connected.
	ErrTabNotFound = errors.New("tab not found")

	// ErrTabUnreachable is returned when a tab disconnects or fails to reply in time.
	ErrTabUnreachable = errors.New("tab unreachable")

	// ErrNotMeetPage is returned when a start targets a tab that is not a meeting page.
	ErrNotMeetPage = errors.New("please open a Google Meet tab first")

	// ErrNoSupportedEncoder is returned when no encoder configuration can be used.
	ErrNoSupportedEncoder = errors.New("no supported encoder configuration")

	// ErrDaemonRunning is returned when the daemon is started twice.
	ErrDaemonRunning = errors.New("meetrec: already running")

	// ErrDaemonStopped is returned when a stopped daemon is asked to stop.
	ErrDaemonStopped = errors.New("meetrec: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("meetrec: shutdown timeout")
)

// IsUserCancellation reports whether err stems from the user declining or
// aborting a capture request.
func IsUserCancellation(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrAborted)
}
