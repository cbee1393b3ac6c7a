package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/rpc"
)

type recordedNote struct {
	tabID  string
	action domain.Action
}

type fakeEvents struct {
	opened chan string
	closed chan string
	notes  chan recordedNote
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		opened: make(chan string, 8),
		closed: make(chan string, 8),
		notes:  make(chan recordedNote, 8),
	}
}

func (f *fakeEvents) TabOpened(ctx context.Context, tabID, url string) { f.opened <- tabID }
func (f *fakeEvents) TabClosed(ctx context.Context, tabID string)      { f.closed <- tabID }
func (f *fakeEvents) HandleNotification(ctx context.Context, tabID string, action domain.Action) {
	f.notes <- recordedNote{tabID, action}
}

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

type harness struct {
	hub    *Hub
	events *fakeEvents
	server *httptest.Server
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	hub := NewHub(timeout, nil)
	events := newFakeEvents()
	hub.SetEvents(events)
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &harness{hub: hub, events: events, server: server}
}

func (h *harness) connect(t *testing.T, tabID string, setup func(c *Client)) (*Client, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := Dial(ctx, h.server.URL, tabID, "https://meet.google.com/abc-defg-hij", nil)
	if err != nil {
		cancel()
		t.Fatalf("Dial() error = %v", err)
	}
	if setup != nil {
		setup(c)
	}
	go c.Serve(ctx)
	if got := waitFor(t, h.events.opened); got != tabID {
		t.Fatalf("TabOpened(%q), want %q", got, tabID)
	}
	t.Cleanup(cancel)
	return c, cancel
}

func TestHub_RequestReply(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t, "tab-1", func(c *Client) {
		c.Handle(domain.ActionStartCapture, func(ctx context.Context, e rpc.Envelope) (any, error) {
			var req domain.StartRequest
			if err := e.Decode(&req); err != nil {
				return nil, err
			}
			return domain.CommandReply{Success: true, MicDenied: req.IncludeMic}, nil
		})
	})

	var reply domain.CommandReply
	err := h.hub.Request(context.Background(), "tab-1", domain.ActionStartCapture, domain.StartRequest{IncludeMic: true}, &reply)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !reply.Success || !reply.MicDenied {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHub_HandlerError(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t, "tab-1", func(c *Client) {
		c.Handle(domain.ActionStopRecording, func(ctx context.Context, e rpc.Envelope) (any, error) {
			return nil, domain.ErrNoActiveRecording
		})
	})

	err := h.hub.Request(context.Background(), "tab-1", domain.ActionStopRecording, nil, nil)
	if err == nil || err.Error() != domain.ErrNoActiveRecording.Error() {
		t.Errorf("Request() error = %v", err)
	}
}

func TestHub_UnknownTab(t *testing.T) {
	h := newHarness(t, time.Second)
	err := h.hub.Request(context.Background(), "missing", domain.ActionStopRecording, nil, nil)
	if !errors.Is(err, domain.ErrTabNotFound) {
		t.Errorf("Request() error = %v, want ErrTabNotFound", err)
	}
	if err := h.hub.Notify("missing", domain.ActionStateChanged, nil); !errors.Is(err, domain.ErrTabNotFound) {
		t.Errorf("Notify() error = %v, want ErrTabNotFound", err)
	}
}

func TestHub_TimeoutIsUnreachable(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	h.connect(t, "tab-1", func(c *Client) {
		c.Handle(domain.ActionStopRecording, func(ctx context.Context, e rpc.Envelope) (any, error) {
			<-release
			return nil, nil
		})
	})

	err := h.hub.Request(context.Background(), "tab-1", domain.ActionStopRecording, nil, nil)
	if !errors.Is(err, domain.ErrTabUnreachable) {
		t.Errorf("Request() error = %v, want ErrTabUnreachable", err)
	}
}

func TestHub_TimedOutRequestCancelsHandler(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	canceled := make(chan error, 1)
	h.connect(t, "tab-1", func(c *Client) {
		c.Handle(domain.ActionStartCapture, func(ctx context.Context, e rpc.Envelope) (any, error) {
			<-ctx.Done()
			canceled <- ctx.Err()
			return nil, ctx.Err()
		})
	})

	err := h.hub.Request(context.Background(), "tab-1", domain.ActionStartCapture, domain.StartRequest{}, nil)
	if !errors.Is(err, domain.ErrTabUnreachable) {
		t.Fatalf("Request() error = %v, want ErrTabUnreachable", err)
	}
	if err := waitFor(t, canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("handler ctx error = %v, want context.Canceled", err)
	}
	if tabs := h.hub.Tabs(); len(tabs) != 1 {
		t.Errorf("Tabs() = %v, withdrawn request dropped the tab", tabs)
	}
}

func TestHub_RejectsBrowserOrigin(t *testing.T) {
	h := newHarness(t, time.Second)
	wsURL, err := BuildConnectURL(h.server.URL, "tab-1", "https://meet.google.com/abc-defg-hij")
	if err != nil {
		t.Fatal(err)
	}

	header := http.Header{"Origin": []string{"https://example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("connection with a browser Origin was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
	if tabs := h.hub.Tabs(); len(tabs) != 0 {
		t.Errorf("Tabs() = %v, want none", tabs)
	}

	select {
	case id := <-h.events.opened:
		t.Errorf("TabOpened(%q) for rejected connection", id)
	default:
	}
}

func TestHub_DisconnectFailsPendingAndClosesTab(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	entered := make(chan struct{})
	client, cancel := h.connect(t, "tab-1", func(c *Client) {
		c.Handle(domain.ActionStopRecording, func(ctx context.Context, e rpc.Envelope) (any, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	})
	_ = client

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.hub.Request(context.Background(), "tab-1", domain.ActionStopRecording, nil, nil)
	}()
	waitFor(t, entered)
	cancel()

	if err := waitFor(t, errCh); !errors.Is(err, domain.ErrTabUnreachable) {
		t.Errorf("Request() error = %v, want ErrTabUnreachable", err)
	}
	if got := waitFor(t, h.events.closed); got != "tab-1" {
		t.Errorf("TabClosed(%q)", got)
	}
	if tabs := h.hub.Tabs(); len(tabs) != 0 {
		t.Errorf("Tabs() = %v, want empty", tabs)
	}
}

func TestClient_NotifyReachesEvents(t *testing.T) {
	h := newHarness(t, time.Second)
	client, _ := h.connect(t, "tab-9", nil)

	if err := client.Notify(domain.ActionRecordingStarted); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	note := waitFor(t, h.events.notes)
	if note.tabID != "tab-9" || note.action != domain.ActionRecordingStarted {
		t.Errorf("notification = %+v", note)
	}
}

func TestHub_BroadcastAndTabs(t *testing.T) {
	h := newHarness(t, time.Second)

	var mu sync.Mutex
	got := map[string]bool{}
	received := make(chan struct{}, 4)
	handler := func(id string) func(c *Client) {
		return func(c *Client) {
			c.Handle(domain.ActionStateChanged, func(ctx context.Context, e rpc.Envelope) (any, error) {
				var sc domain.StateChange
				if err := e.Decode(&sc); err != nil {
					return nil, err
				}
				mu.Lock()
				got[id] = sc.IsRecording
				mu.Unlock()
				received <- struct{}{}
				return nil, nil
			})
		}
	}
	h.connect(t, "b", handler("b"))
	h.connect(t, "a", handler("a"))

	tabs := h.hub.Tabs()
	if len(tabs) != 2 || tabs[0].TabID != "a" || tabs[1].TabID != "b" {
		t.Fatalf("Tabs() = %+v", tabs)
	}
	if tabs[0].URL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("URL = %q", tabs[0].URL)
	}

	h.hub.Broadcast(domain.ActionStateChanged, domain.StateChange{IsRecording: true})
	waitFor(t, received)
	waitFor(t, received)

	mu.Lock()
	defer mu.Unlock()
	if !got["a"] || !got["b"] {
		t.Errorf("broadcast results = %v", got)
	}
}

func TestHub_ReconnectReplacesTab(t *testing.T) {
	h := newHarness(t, time.Second)
	_, cancelFirst := h.connect(t, "tab-1", nil)
	h.connect(t, "tab-1", nil)
	cancelFirst()

	select {
	case id := <-h.events.closed:
		t.Errorf("replaced connection reported TabClosed(%q)", id)
	case <-time.After(200 * time.Millisecond):
	}
	if tabs := h.hub.Tabs(); len(tabs) != 1 {
		t.Errorf("Tabs() = %v, want one tab", tabs)
	}
}

func TestBuildConnectURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:7465", "ws://127.0.0.1:7465/v1/tabs/connect?tabId=t1&url=https%3A%2F%2Fmeet.google.com%2Fx", false},
		{"https://rec.local/", "wss://rec.local/v1/tabs/connect?tabId=t1&url=https%3A%2F%2Fmeet.google.com%2Fx", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := BuildConnectURL(tt.base, "t1", "https://meet.google.com/x")
		if (err != nil) != tt.wantErr {
			t.Errorf("BuildConnectURL(%q) error = %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("BuildConnectURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
