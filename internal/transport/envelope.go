package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned when a channel message is not an event envelope.
var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope is the JSON frame carried on the push channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEnvelope wraps data in an envelope for the named event.
func EncodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEnvelope parses a channel message.
func DecodeEnvelope(message []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	return &env, nil
}
