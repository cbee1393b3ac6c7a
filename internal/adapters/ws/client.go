package ws

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/ports"
	"github.com/bft-labs/meetrec/internal/rpc"
	"github.com/bft-labs/meetrec/pkg/log"
)

// ConnectPath is the hub endpoint agents dial.
const ConnectPath = "/v1/tabs/connect"

// Client is the agent side of a hub connection.
type Client struct {
	conn     *conn
	router   *rpc.Router
	inflight *rpc.Inflight
	logger   log.Logger

	wg sync.WaitGroup
}

// Dial connects to the coordinator at baseURL (http or ws scheme) as tabID
// showing meetingURL.
func Dial(ctx context.Context, baseURL, tabID, meetingURL string, logger log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	wsURL, err := BuildConnectURL(baseURL, tabID, meetingURL)
	if err != nil {
		return nil, err
	}

	wsConn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %w", err)
	}

	return &Client{
		conn:     newConn(wsConn),
		router:   rpc.NewRouter(),
		inflight: rpc.NewInflight(),
		logger:   logger,
	}, nil
}

// BuildConnectURL derives the websocket endpoint from the coordinator URL.
func BuildConnectURL(baseURL, tabID, meetingURL string) (string, error) {
	base := strings.TrimSpace(baseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	u, err := url.Parse(base + ConnectPath)
	if err != nil {
		return "", fmt.Errorf("invalid coordinator URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid coordinator URL scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("tabId", tabID)
	q.Set("url", meetingURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Handle registers a handler for coordinator commands or notifications.
// Handlers must be registered before Serve.
func (c *Client) Handle(action domain.Action, h rpc.HandlerFunc) {
	c.router.Handle(action, h)
}

// Serve reads envelopes until the connection closes or ctx is canceled.
// Requests run concurrently so a long start does not block a stop;
// notifications run in arrival order. A request is canceled when the
// coordinator withdraws it or the connection ends.
func (c *Client) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.close() })
	defer stop()
	defer c.wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		env, err := c.conn.read()
		if err != nil {
			if ctx.Err() != nil || isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("coordinator connection: %w", err)
		}

		if env.IsCancel() {
			if c.inflight.Cancel(env.ID) {
				c.logger.Info("Coordinator withdrew request", log.String("action", string(env.Action)))
			}
			continue
		}
		if !env.IsRequest() {
			c.router.Dispatch(ctx, env)
			continue
		}

		reqCtx, done := c.inflight.Begin(ctx, env.ID)
		c.wg.Add(1)
		go func(env rpc.Envelope) {
			defer c.wg.Done()
			defer done()
			reply, _ := c.router.Dispatch(reqCtx, env)
			if err := c.conn.Send(reply); err != nil {
				c.logger.Warn("Failed to send reply", log.String("action", string(env.Action)), log.Err(err))
			}
		}(env)
	}
}

// Notify implements ports.CaptureNotifier.
func (c *Client) Notify(action domain.Action) error {
	env, err := rpc.Notification(action, nil)
	if err != nil {
		return err
	}
	return c.conn.Send(env)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.close()
}

var _ ports.CaptureNotifier = (*Client)(nil)
