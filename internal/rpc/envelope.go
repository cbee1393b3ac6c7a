package rpc

import (
	"encoding/json"

	"github.com/bft-labs/meetrec/internal/domain"
)

// Envelope is the wire frame exchanged between surfaces.
//
// A request carries an ID and expects exactly one reply with the same ID and
// Reply set. A notification has no ID and gets no reply. A cancel carries the
// ID of a request the sender stopped waiting for.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Action  domain.Action   `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reply   bool            `json:"reply,omitempty"`
	Cancel  bool            `json:"cancel,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// IsRequest reports whether e expects a reply.
func (e Envelope) IsRequest() bool {
	return e.ID != "" && !e.Reply && !e.Cancel
}

// IsCancel reports whether e withdraws an earlier request.
func (e Envelope) IsCancel() bool {
	return e.ID != "" && e.Cancel
}

// CancelOf builds the envelope withdrawing request id.
func CancelOf(id string, action domain.Action) Envelope {
	return Envelope{ID: id, Action: action, Cancel: true}
}

// Decode unmarshals the payload into out. An empty payload leaves out untouched.
func (e Envelope) Decode(out any) error {
	if out == nil || len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, out)
}

// Notification builds a notification envelope.
func Notification(action domain.Action, payload any) (Envelope, error) {
	raw, err := encode(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Action: action, Payload: raw}, nil
}

func encode(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return b, nil
}
