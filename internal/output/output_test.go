package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/domain"
)

func TestFormatter_Status(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.Status(domain.IdleState(), time.Now())
	if !strings.Contains(buf.String(), "Not recording") {
		t.Errorf("idle status = %q", buf.String())
	}

	buf.Reset()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := domain.Session{TabID: "meet-abc", Recording: true, StartTime: start}.Shared()
	f.Status(s, start.Add(90*time.Minute+5*time.Second))
	out := buf.String()
	if !strings.Contains(out, "01:30:05") || !strings.Contains(out, "meet-abc") {
		t.Errorf("recording status = %q", out)
	}
}

func TestFormatter_Messages(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.StartRequested("tab-1", true)
	f.StopRequested()
	f.TabListItem(app.TabStatus{TabID: "tab-1", URL: "https://meet.google.com/x", IsMeetPage: true})
	f.SetupCheck("ffmpeg", false, "not found")

	out := buf.String()
	for _, want := range []string{"tab-1", "Microphone unavailable", "Stopping recording", "https://meet.google.com/x", "❌ ffmpeg: not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59*time.Second + 600*time.Millisecond, "00:01:00"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.d); got != tt.want {
			t.Errorf("formatClock(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
