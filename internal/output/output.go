// Package output formats command results for the terminal.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/domain"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) StartRequested(tabID string, micDenied bool) {
	fmt.Fprintf(f.w, "⏺️  Waiting for screen share approval in %s...\n", tabID)
	if micDenied {
		f.Warning("Microphone unavailable, recording without it")
	}
}

func (f *Formatter) StopRequested() {
	fmt.Fprintf(f.w, "⏹️  Stopping recording...\n")
}

func (f *Formatter) Status(s domain.SharedState, now time.Time) {
	if !s.IsRecording {
		fmt.Fprintf(f.w, "⚪ Not recording\n")
		return
	}
	fmt.Fprintf(f.w, "🔴 Recording %s (tab %s, %s)\n",
		formatClock(s.Elapsed(now)), s.TabID(), s.Started().Local().Format(time.Kitchen))
}

func (f *Formatter) TabListHeader() {
	fmt.Fprintf(f.w, "🗂️  Connected tabs:\n\n")
}

func (f *Formatter) TabListItem(t app.TabStatus) {
	marker := "  "
	if t.IsMeetPage {
		marker = "🎥"
	}
	fmt.Fprintf(f.w, "  %s %s  %s\n", marker, t.TabID, t.URL)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
