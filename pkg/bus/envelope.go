package bus

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is a typed message passed on the messaging bus. Envelopes are
// JSON-serialized on the wire; the in-process fabric passes them by pointer
// but treats them as immutable after publish.
type Envelope struct {
	Sender         string         `json:"sender"`
	Recipient      string         `json:"recipient,omitempty"`
	Topic          string         `json:"topic"`
	Payload        map[string]any `json:"payload"`
	MessageID      string         `json:"message_id"`
	ReplyTo        string         `json:"reply_to,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// NewEnvelope creates an envelope with a fresh message id.
func NewEnvelope(sender, topic string, payload map[string]any) *Envelope {
	return &Envelope{
		Sender:    sender,
		Topic:     topic,
		Payload:   payload,
		MessageID: uuid.New().String(),
	}
}

// Reply builds a response envelope on the given topic, copying the
// conversation id and referencing the request's message id, so the
// requester's correlated wait resolves.
func (e *Envelope) Reply(sender, topic string, payload map[string]any) *Envelope {
	return &Envelope{
		Sender:         sender,
		Recipient:      e.Sender,
		Topic:          topic,
		Payload:        payload,
		MessageID:      uuid.New().String(),
		ReplyTo:        e.MessageID,
		ConversationID: e.ConversationID,
	}
}

// Marshal returns the wire form of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a wire-form envelope.
func Unmarshal(data []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return e, nil
}
