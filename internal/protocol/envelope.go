// Package protocol defines the JSON messages exchanged between the host and
// its clients. Every frame is an Envelope whose Type selects the payload.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/talgya/tradewinds/internal/errx"
)

// Envelope is the standard WebSocket message wrapper.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope with a JSON-encoded payload.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: data}, nil
}

// MustEnvelope is like NewEnvelope but panics on error.
func MustEnvelope(typ string, payload any) Envelope {
	e, err := NewEnvelope(typ, payload)
	if err != nil {
		panic(err)
	}
	return e
}

// Decode unmarshals the payload into v. A malformed payload is a rejected
// request, never a consistency failure.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errx.ErrBadPayload.With("type", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errx.ErrBadPayload.With("type", e.Type).Wrap(err)
	}
	return nil
}

// Encode marshals the whole envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Parse decodes a wire frame.
func Parse(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, errx.ErrBadPayload.Wrap(err)
	}
	if env.Type == "" {
		return Envelope{}, errx.ErrBadPayload.With("reason", "missing type")
	}
	return env, nil
}
