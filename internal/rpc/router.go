package rpc

import (
	"context"
	"fmt"

	"github.com/bft-labs/meetrec/internal/domain"
)

// HandlerFunc serves one action. The returned value becomes the reply
// payload for requests and is ignored for notifications.
type HandlerFunc func(ctx context.Context, e Envelope) (any, error)

// Router dispatches incoming envelopes by action.
type Router struct {
	handlers map[domain.Action]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[domain.Action]HandlerFunc)}
}

// Handle registers h for action, replacing any previous handler.
func (r *Router) Handle(action domain.Action, h HandlerFunc) {
	r.handlers[action] = h
}

// Dispatch runs the handler for e. For requests it returns the reply
// envelope and true; for notifications it returns false. Cancels are not
// dispatched.
func (r *Router) Dispatch(ctx context.Context, e Envelope) (Envelope, bool) {
	if e.IsCancel() {
		return Envelope{}, false
	}
	h, ok := r.handlers[e.Action]
	if !ok {
		if !e.IsRequest() {
			return Envelope{}, false
		}
		return Envelope{ID: e.ID, Action: e.Action, Reply: true, Error: fmt.Sprintf("unknown action %q", e.Action)}, true
	}

	result, err := h(ctx, e)
	if !e.IsRequest() {
		return Envelope{}, false
	}

	reply := Envelope{ID: e.ID, Action: e.Action, Reply: true}
	if err != nil {
		reply.Error = err.Error()
		return reply, true
	}
	raw, encErr := encode(result)
	if encErr != nil {
		reply.Error = encErr.Error()
		return reply, true
	}
	reply.Payload = raw
	return reply, true
}
