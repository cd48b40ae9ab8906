// Package protocol defines the wire envelope exchanged between an adapter
// and the engine: a single schema-versioned event type with a tagged-union
// body, so new message kinds can be added without breaking old decoders.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the fixed envelope version every Event carries.
const SchemaVersion = "robit.v1"

// Body is implemented by every concrete payload type. Kind returns the
// wire-level "type" discriminant used to route (de)serialization.
type Body interface {
	Kind() string
}

// Event is the outer envelope. Body is encoded as {"type": ..., "payload": ...}
// alongside the envelope's own fields, matching the teacher's flattened
// Source/Type/Payload event shape generalized into a full tagged union.
type Event struct {
	SchemaVersion string    `json:"schema_version"`
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	Body          Body      `json:"-"`
}

// New wraps body in an Event with a fresh id and the current schema version.
func New(body Body) Event {
	return Event{
		SchemaVersion: SchemaVersion,
		ID:            "evt-" + uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Body:          body,
	}
}

type wireEnvelope struct {
	SchemaVersion string          `json:"schema_version"`
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp,omitempty"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

// MarshalJSON flattens Body into the wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Body == nil {
		return nil, fmt.Errorf("protocol: event %s has no body", e.ID)
	}
	payload, err := json.Marshal(e.Body)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}
	return json.Marshal(wireEnvelope{
		SchemaVersion: e.SchemaVersion,
		ID:            e.ID,
		Timestamp:     e.Timestamp,
		Type:          e.Body.Kind(),
		Payload:       payload,
	})
}

// UnmarshalJSON dispatches on the "type" field to decode Payload into the
// matching concrete Body implementation.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("protocol: decode envelope: %w", err)
	}
	body, err := decodeBody(wire.Type, wire.Payload)
	if err != nil {
		return err
	}
	e.SchemaVersion = wire.SchemaVersion
	e.ID = wire.ID
	e.Timestamp = wire.Timestamp
	e.Body = body
	return nil
}

// Validate checks the envelope's own invariants, independent of Body.
func (e Event) Validate() error {
	if e.SchemaVersion != SchemaVersion {
		return fmt.Errorf("protocol: unsupported schema_version %q", e.SchemaVersion)
	}
	if e.ID == "" {
		return fmt.Errorf("protocol: event missing id")
	}
	if e.Body == nil {
		return fmt.Errorf("protocol: event missing body")
	}
	return nil
}

// Parse decodes and validates a single wire event.
func Parse(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

func decodeBody(kind string, payload json.RawMessage) (Body, error) {
	var body Body
	switch kind {
	case "message":
		body = &MessagePayload{}
	case "response":
		body = &ResponsePayload{}
	case "config_update":
		body = &ConfigUpdatePayload{}
	case "room_scope":
		body = &RoomScopePayload{}
	case "action_list_request":
		body = &ActionListRequestPayload{}
	case "action_list_result":
		body = &ActionListResultPayload{}
	case "approval_decision":
		body = &ApprovalDecisionPayload{}
	case "ping":
		body = &PingPayload{}
	case "pong":
		body = &PongPayload{}
	default:
		return nil, fmt.Errorf("protocol: unknown event type %q", kind)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, body); err != nil {
			return nil, fmt.Errorf("protocol: decode %s payload: %w", kind, err)
		}
	}
	return body, nil
}
