package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/meetrec/internal/domain"
)

// loopback answers requests through a Router on the other side.
type loopback struct {
	mu     sync.Mutex
	peer   *Peer
	router *Router
	sent   []Envelope
	drop   bool
	fail   error
}

func (l *loopback) Send(e Envelope) error {
	l.mu.Lock()
	l.sent = append(l.sent, e)
	drop, fail := l.drop, l.fail
	l.mu.Unlock()

	if fail != nil {
		return fail
	}
	if drop || !e.IsRequest() {
		return nil
	}
	go func() {
		if reply, ok := l.router.Dispatch(context.Background(), e); ok {
			l.peer.Deliver(reply)
		}
	}()
	return nil
}

func newLoopback() *loopback {
	l := &loopback{router: NewRouter()}
	l.peer = NewPeer(l)
	return l
}

func TestPeer_RequestReply(t *testing.T) {
	l := newLoopback()
	l.router.Handle(domain.ActionCheckMeetPage, func(ctx context.Context, e Envelope) (any, error) {
		return domain.MeetPageReply{IsMeetPage: true}, nil
	})

	var out domain.MeetPageReply
	if err := l.peer.Request(context.Background(), domain.ActionCheckMeetPage, nil, time.Second, &out); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !out.IsMeetPage {
		t.Error("reply payload not decoded")
	}
}

func TestPeer_RequestPayloadRoundTrip(t *testing.T) {
	l := newLoopback()
	l.router.Handle(domain.ActionStartCapture, func(ctx context.Context, e Envelope) (any, error) {
		var req domain.StartRequest
		if err := e.Decode(&req); err != nil {
			return nil, err
		}
		if !req.IncludeMic {
			return domain.CommandReply{Success: false, Error: "mic flag lost"}, nil
		}
		return domain.CommandReply{Success: true}, nil
	})

	var out domain.CommandReply
	err := l.peer.Request(context.Background(), domain.ActionStartCapture, domain.StartRequest{IncludeMic: true}, time.Second, &out)
	if err != nil || !out.Success {
		t.Fatalf("Request() = %+v, %v", out, err)
	}
}

func TestPeer_HandlerErrorBecomesRequestError(t *testing.T) {
	l := newLoopback()
	l.router.Handle(domain.ActionStopRecording, func(ctx context.Context, e Envelope) (any, error) {
		return nil, domain.ErrNoActiveRecording
	})

	err := l.peer.Request(context.Background(), domain.ActionStopRecording, nil, time.Second, nil)
	if err == nil || err.Error() != domain.ErrNoActiveRecording.Error() {
		t.Fatalf("Request() error = %v, want %v", err, domain.ErrNoActiveRecording)
	}
}

func TestPeer_UnknownAction(t *testing.T) {
	l := newLoopback()
	err := l.peer.Request(context.Background(), domain.Action("bogus"), nil, time.Second, nil)
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestPeer_Timeout(t *testing.T) {
	l := newLoopback()
	l.drop = true

	err := l.peer.Request(context.Background(), domain.ActionStopRecording, nil, 20*time.Millisecond, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Request() error = %v, want ErrTimeout", err)
	}
}

func TestPeer_TimeoutWithdrawsRequest(t *testing.T) {
	l := newLoopback()
	l.drop = true

	err := l.peer.Request(context.Background(), domain.ActionStartCapture, nil, 20*time.Millisecond, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Request() error = %v, want ErrTimeout", err)
	}

	l.mu.Lock()
	sent := append([]Envelope(nil), l.sent...)
	l.mu.Unlock()
	if len(sent) != 2 {
		t.Fatalf("sent %d envelopes, want request and cancel", len(sent))
	}
	req, cancel := sent[0], sent[1]
	if !cancel.IsCancel() || cancel.ID != req.ID || cancel.Action != domain.ActionStartCapture {
		t.Errorf("cancel = %+v for request %+v", cancel, req)
	}
	if cancel.IsRequest() {
		t.Error("cancel envelope reported as request")
	}
}

func TestInflight_CancelAbortsServedRequest(t *testing.T) {
	f := NewInflight()
	ctx, done := f.Begin(context.Background(), "req-1")

	if f.Cancel("other") {
		t.Error("Cancel() of unknown id reported true")
	}
	if ctx.Err() != nil {
		t.Fatal("context canceled early")
	}
	if !f.Cancel("req-1") {
		t.Error("Cancel() of served request reported false")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx.Err() = %v, want context.Canceled", ctx.Err())
	}

	done()
	if f.Len() != 0 {
		t.Errorf("Len() = %d after done", f.Len())
	}

	_, done2 := f.Begin(context.Background(), "req-2")
	done2()
	if f.Cancel("req-2") {
		t.Error("Cancel() after done reported true")
	}
}

func TestRouter_IgnoresCancel(t *testing.T) {
	r := NewRouter()
	called := false
	r.Handle(domain.ActionStartCapture, func(ctx context.Context, e Envelope) (any, error) {
		called = true
		return nil, nil
	})
	if _, ok := r.Dispatch(context.Background(), CancelOf("req-1", domain.ActionStartCapture)); ok || called {
		t.Errorf("cancel dispatched: reply=%v called=%v", ok, called)
	}
}

func TestPeer_ContextCanceled(t *testing.T) {
	l := newLoopback()
	l.drop = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.peer.Request(ctx, domain.ActionStopRecording, nil, 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Request() error = %v, want context.Canceled", err)
	}
}

func TestPeer_CloseFailsPending(t *testing.T) {
	l := newLoopback()
	l.drop = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.peer.Request(context.Background(), domain.ActionStopRecording, nil, time.Second, nil)
	}()

	// wait until the request is on the wire
	deadline := time.Now().Add(time.Second)
	for {
		l.mu.Lock()
		n := len(l.sent)
		l.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	l.peer.Close()
	if err := <-errCh; !errors.Is(err, ErrPeerGone) {
		t.Fatalf("Request() error = %v, want ErrPeerGone", err)
	}
	if err := l.peer.Request(context.Background(), domain.ActionStopRecording, nil, time.Second, nil); !errors.Is(err, ErrPeerGone) {
		t.Fatalf("Request() after close = %v, want ErrPeerGone", err)
	}
	if err := l.peer.Notify(domain.ActionRecordingStopped, nil); !errors.Is(err, ErrPeerGone) {
		t.Fatalf("Notify() after close = %v, want ErrPeerGone", err)
	}
}

func TestPeer_SingleInFlightPerAction(t *testing.T) {
	l := newLoopback()
	l.drop = true

	done := make(chan struct{})
	go func() {
		_ = l.peer.Request(context.Background(), domain.ActionStopRecording, nil, 200*time.Millisecond, nil)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		l.mu.Lock()
		n := len(l.sent)
		l.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	err := l.peer.Request(context.Background(), domain.ActionStopRecording, nil, time.Second, nil)
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("second request error = %v, want ErrInFlight", err)
	}
	<-done
}

func TestPeer_SendFailure(t *testing.T) {
	l := newLoopback()
	l.fail = errors.New("broken pipe")

	err := l.peer.Request(context.Background(), domain.ActionStopRecording, nil, time.Second, nil)
	if !errors.Is(err, ErrPeerGone) {
		t.Fatalf("Request() error = %v, want ErrPeerGone", err)
	}
}

func TestPeer_DeliverIgnoresNonReplies(t *testing.T) {
	p := NewPeer(&loopback{})
	if p.Deliver(Envelope{Action: domain.ActionRecordingStarted}) {
		t.Error("notification treated as reply")
	}
	if !p.Deliver(Envelope{ID: "stale", Reply: true}) {
		t.Error("stale reply should still be consumed")
	}
}

func TestRouter_Notification(t *testing.T) {
	r := NewRouter()
	called := false
	r.Handle(domain.ActionStateChanged, func(ctx context.Context, e Envelope) (any, error) {
		called = true
		return nil, nil
	})

	env, err := Notification(domain.ActionStateChanged, domain.StateChange{IsRecording: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Dispatch(context.Background(), env); ok {
		t.Error("notification produced a reply")
	}
	if !called {
		t.Error("handler not called")
	}
	if _, ok := r.Dispatch(context.Background(), Envelope{Action: "bogus"}); ok {
		t.Error("unknown notification produced a reply")
	}
}
