// Package indicator prints the on-screen REC marker of a capture agent.
package indicator

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	recStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("#FF0000")).
			Padding(0, 1)

	offStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// Indicator shows whether this tab is being recorded. Show and Hide only
// write when the visibility actually changes.
type Indicator struct {
	mu      sync.Mutex
	out     io.Writer
	visible bool
}

// New creates a hidden indicator writing to out.
func New(out io.Writer) *Indicator {
	return &Indicator{out: out}
}

// Show displays the REC marker.
func (i *Indicator) Show() {
	i.set(true)
}

// Hide removes the REC marker.
func (i *Indicator) Hide() {
	i.set(false)
}

// Apply shows or hides the marker to match recording.
func (i *Indicator) Apply(recording bool) {
	i.set(recording)
}

// Visible reports whether the marker is shown.
func (i *Indicator) Visible() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.visible
}

func (i *Indicator) set(visible bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.visible == visible {
		return
	}
	i.visible = visible
	if visible {
		fmt.Fprintln(i.out, recStyle.Render("● REC"))
	} else {
		fmt.Fprintln(i.out, offStyle.Render("○ recording stopped"))
	}
}
