package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/ports"
	"github.com/bft-labs/meetrec/internal/rpc"
	"github.com/bft-labs/meetrec/pkg/log"
)

// TabEvents receives tab lifecycle and notifications from the hub.
type TabEvents interface {
	TabOpened(ctx context.Context, tabID, url string)
	TabClosed(ctx context.Context, tabID string)
	HandleNotification(ctx context.Context, tabID string, action domain.Action)
}

type tab struct {
	info ports.TabInfo
	conn *conn
	peer *rpc.Peer
}

// Hub accepts agent connections and relays commands to them.
// It implements ports.TabRelay.
type Hub struct {
	timeout  time.Duration
	logger   log.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	tabs   map[string]*tab
	events TabEvents
	wg     sync.WaitGroup
}

// NewHub creates a hub whose requests time out after timeout.
func NewHub(timeout time.Duration, logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Hub{
		timeout: timeout,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: localAgentOnly,
		},
		tabs: make(map[string]*tab),
	}
}

// localAgentOnly accepts connections without an Origin header. Agents dial
// directly; browsers always send one, so web pages cannot pose as a tab.
func localAgentOnly(r *http.Request) bool {
	return r.Header.Get("Origin") == ""
}

// SetEvents sets the receiver of tab events. It must be called before the
// hub serves connections.
func (h *Hub) SetEvents(e TabEvents) {
	h.mu.Lock()
	h.events = e
	h.mu.Unlock()
}

// ServeHTTP upgrades an agent connection identified by the tabId and url
// query parameters. A reconnecting tab replaces its previous connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tabId")
	if tabID == "" {
		http.Error(w, "tabId is required", http.StatusBadRequest)
		return
	}
	url := r.URL.Query().Get("url")

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", log.String("tab_id", tabID), log.Err(err))
		return
	}

	t := &tab{info: ports.TabInfo{TabID: tabID, URL: url}, conn: newConn(wsConn)}
	t.peer = rpc.NewPeer(t.conn)

	h.mu.Lock()
	prev := h.tabs[tabID]
	h.tabs[tabID] = t
	events := h.events
	h.wg.Add(1)
	h.mu.Unlock()

	if prev != nil {
		h.logger.Info("Tab reconnected, dropping previous connection", log.String("tab_id", tabID))
		prev.peer.Close()
		_ = prev.conn.close()
	}

	h.logger.Debug("Tab connected", log.String("tab_id", tabID), log.String("url", url))
	t.conn.keepAlive()
	if events != nil {
		events.TabOpened(r.Context(), tabID, url)
	}

	go h.readLoop(t, events)
}

func (h *Hub) readLoop(t *tab, events TabEvents) {
	defer h.wg.Done()
	ctx := context.Background()
	id := t.info.TabID

	for {
		env, err := t.conn.read()
		if err != nil {
			if !isNormalClose(err) {
				h.logger.Debug("Tab read failed", log.String("tab_id", id), log.Err(err))
			}
			break
		}

		switch {
		case t.peer.Deliver(env):
		case env.IsCancel():
		case env.IsRequest():
			_ = t.conn.Send(rpc.Envelope{ID: env.ID, Action: env.Action, Reply: true,
				Error: fmt.Sprintf("unknown action %q", env.Action)})
		case events != nil:
			events.HandleNotification(ctx, id, env.Action)
		}
	}

	t.peer.Close()
	_ = t.conn.close()

	h.mu.Lock()
	current := h.tabs[id] == t
	if current {
		delete(h.tabs, id)
	}
	h.mu.Unlock()

	// A replaced connection is not a closed tab.
	if current {
		h.logger.Debug("Tab disconnected", log.String("tab_id", id))
		if events != nil {
			events.TabClosed(ctx, id)
		}
	}
}

func (h *Hub) lookup(tabID string) (*tab, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.tabs[tabID]
	return t, ok
}

// Request implements ports.TabRelay.
func (h *Hub) Request(ctx context.Context, tabID string, action domain.Action, payload, out any) error {
	t, ok := h.lookup(tabID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTabNotFound, tabID)
	}

	err := t.peer.Request(ctx, action, payload, h.timeout, out)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rpc.ErrPeerGone), errors.Is(err, rpc.ErrTimeout):
		return fmt.Errorf("%w: %v", domain.ErrTabUnreachable, err)
	default:
		return err
	}
}

// Notify implements ports.TabRelay.
func (h *Hub) Notify(tabID string, action domain.Action, payload any) error {
	t, ok := h.lookup(tabID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTabNotFound, tabID)
	}
	return t.peer.Notify(action, payload)
}

// Broadcast implements ports.TabRelay. Delivery failures are logged.
func (h *Hub) Broadcast(action domain.Action, payload any) {
	h.mu.RLock()
	tabs := make([]*tab, 0, len(h.tabs))
	for _, t := range h.tabs {
		tabs = append(tabs, t)
	}
	h.mu.RUnlock()

	for _, t := range tabs {
		if err := t.peer.Notify(action, payload); err != nil {
			h.logger.Debug("Broadcast failed", log.String("tab_id", t.info.TabID), log.Err(err))
		}
	}
}

// Tabs implements ports.TabRelay. Tabs are sorted by id.
func (h *Hub) Tabs() []ports.TabInfo {
	h.mu.RLock()
	out := make([]ports.TabInfo, 0, len(h.tabs))
	for _, t := range h.tabs {
		out = append(out, t.info)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// Close disconnects every tab and waits for their read loops to finish.
func (h *Hub) Close() {
	h.mu.RLock()
	tabs := make([]*tab, 0, len(h.tabs))
	for _, t := range h.tabs {
		tabs = append(tabs, t)
	}
	h.mu.RUnlock()

	for _, t := range tabs {
		t.peer.Close()
		_ = t.conn.close()
	}
	h.wg.Wait()
}

var _ ports.TabRelay = (*Hub)(nil)
