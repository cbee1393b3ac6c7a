package domain

import (
	"net/url"
	"strings"
	"time"
)

// RecordingPrefix starts every saved recording filename.
const RecordingPrefix = "google-meet-recording-"

// RecordingExt is the container extension of saved recordings.
const RecordingExt = ".webm"

// MeetHost is the host of meeting pages that may be recorded.
const MeetHost = "meet.google.com"

// RecordingFilename names a recording saved at t: the UTC ISO-8601 timestamp
// with ':' and '.' replaced by '-' and the millisecond/zone suffix dropped,
// e.g. google-meet-recording-2024-05-01T10-20-30.webm.
func RecordingFilename(t time.Time) string {
	return RecordingPrefix + t.UTC().Format("2006-01-02T15-04-05") + RecordingExt
}

// IsMeetPage reports whether rawURL points at a meeting page.
func IsMeetPage(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), MeetHost)
}
