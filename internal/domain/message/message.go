package message

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Message interface {
	MessageType() string
}

// Envelope is the serialised form of a message on the bus.
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	TabID   int             `json:"tabId,omitempty"`   // Sender tab, zero for the coordinator
	ReplyTo string          `json:"replyTo,omitempty"` // Set by Request
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps msg. tabID identifies the sending tab, or 0.
func NewEnvelope(msg Message, tabID int) (*Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", msg.MessageType(), err)
	}

	return &Envelope{
		ID:      uuid.NewString(),
		Type:    msg.MessageType(),
		TabID:   tabID,
		Payload: payload,
	}, nil
}

// IsNull reports whether the envelope carries no payload or a JSON null.
func (e *Envelope) IsNull() bool {
	return e == nil || len(e.Payload) == 0 || string(e.Payload) == "null"
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](env *Envelope) (T, error) {
	var t T
	if env == nil {
		return t, fmt.Errorf("nil envelope")
	}
	err := json.Unmarshal(env.Payload, &t)
	return t, err
}
