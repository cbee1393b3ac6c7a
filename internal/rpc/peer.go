package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/meetrec/internal/domain"
)

var (
	// ErrPeerGone is returned for requests pending or issued after the peer closed.
	ErrPeerGone = errors.New("rpc: peer gone")

	// ErrTimeout is returned when no reply arrives before the request timeout.
	ErrTimeout = errors.New("rpc: request timed out")

	// ErrInFlight is returned when a request for the same action is still pending.
	ErrInFlight = errors.New("rpc: request already in flight")
)

// Sender writes envelopes to the transport.
type Sender interface {
	Send(e Envelope) error
}

// Peer issues requests over a Sender and matches replies to them.
// At most one request per action is in flight at a time.
type Peer struct {
	sender Sender

	mu       sync.Mutex
	pending  map[string]chan Envelope
	inflight map[domain.Action]bool
	closed   bool
}

// NewPeer creates a peer writing through s.
func NewPeer(s Sender) *Peer {
	return &Peer{
		sender:   s,
		pending:  make(map[string]chan Envelope),
		inflight: make(map[domain.Action]bool),
	}
}

// Request sends action with payload and waits for the reply, decoding its
// payload into out. A non-positive timeout relies on ctx alone.
func (p *Peer) Request(ctx context.Context, action domain.Action, payload any, timeout time.Duration, out any) error {
	raw, err := encode(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}

	id := uuid.NewString()
	ch := make(chan Envelope, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPeerGone
	}
	if p.inflight[action] {
		p.mu.Unlock()
		return ErrInFlight
	}
	p.inflight[action] = true
	p.pending[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		delete(p.inflight, action)
		p.mu.Unlock()
	}()

	if err := p.sender.Send(Envelope{ID: id, Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerGone, err)
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return ErrPeerGone
		}
		if reply.Error != "" {
			return errors.New(reply.Error)
		}
		if err := reply.Decode(out); err != nil {
			return fmt.Errorf("decode %s reply: %w", action, err)
		}
		return nil
	case <-timer:
		p.withdraw(id, action)
		return ErrTimeout
	case <-ctx.Done():
		p.withdraw(id, action)
		return ctx.Err()
	}
}

// withdraw tells the remote side to abandon request id. The remote may
// already have answered; the reply is then dropped by Deliver.
func (p *Peer) withdraw(id string, action domain.Action) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	_ = p.sender.Send(CancelOf(id, action))
}

// Notify sends a notification.
func (p *Peer) Notify(action domain.Action, payload any) error {
	env, err := Notification(action, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPeerGone
	}
	return p.sender.Send(env)
}

// Deliver routes a reply to its pending request. It reports whether the
// envelope was a reply; replies without a pending request are dropped.
func (p *Peer) Deliver(e Envelope) bool {
	if !e.Reply {
		return false
	}
	p.mu.Lock()
	ch, ok := p.pending[e.ID]
	if ok {
		delete(p.pending, e.ID)
	}
	p.mu.Unlock()

	if ok {
		ch <- e
	}
	return true
}

// Close fails every pending request with ErrPeerGone.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}
