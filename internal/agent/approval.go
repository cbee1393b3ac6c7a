package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bft-labs/meetrec/internal/domain"
)

// Prompt asks on out whether the screen may be shared and reads the answer
// from in. Only "y" or "yes" approve. A canceled ctx aborts the prompt.
type Prompt struct {
	out   io.Writer
	lines chan string
	once  sync.Once
	in    io.Reader
}

// NewPrompt creates a share prompt over in and out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out, lines: make(chan string)}
}

// Approve implements the display capturer's approval hook.
func (p *Prompt) Approve(ctx context.Context) error {
	p.once.Do(func() { go p.read() })

	fmt.Fprint(p.out, "Share your screen for recording? [y/N] ")
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return domain.ErrAborted
	case line, ok := <-p.lines:
		if !ok {
			return domain.ErrAborted
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		default:
			return domain.ErrPermissionDenied
		}
	}
}

// read feeds lines from in. It runs for the life of the process since a
// blocked read cannot be interrupted.
func (p *Prompt) read() {
	defer close(p.lines)
	sc := bufio.NewScanner(p.in)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}
