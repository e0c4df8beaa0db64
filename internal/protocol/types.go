package protocol

import "encoding/json"

// EventPrefix marks a control-event line on the child's stdout. Everything
// after the prefix is one JSON-encoded event object.
const EventPrefix = "__TRIGGER_EVENT__:"

// AckSentinel is the line written to the child's stdin to unblock a script
// that is waiting on an acknowledgment-requiring event.
const AckSentinel = "__ACK__"

// EventType is the discriminator tag of a control event.
type EventType string

const (
	EventHeartbeat      EventType = "heartbeat"
	EventWaitFor        EventType = "wait.for"
	EventWaitUntil      EventType = "wait.until"
	EventLog            EventType = "log"
	EventMetadataSet    EventType = "metadata.set"
	EventMetadataAppend EventType = "metadata.append"
)

// RequiresAck reports whether the child blocks on a stdin read after
// emitting an event of this type. Unknown types never require one.
func (t EventType) RequiresAck() bool {
	return t == EventWaitFor || t == EventWaitUntil
}

// Event is one decoded control event. Exactly one payload pointer is set,
// matching Type; for heartbeat and unrecognized types all payloads are nil.
// Unrecognized types are legal and handled as no-ops downstream.
type Event struct {
	Type      EventType
	WaitFor   *WaitForPayload
	WaitUntil *WaitUntilPayload
	Log       *LogPayload
	Metadata  *MetadataPayload
}

// WaitForPayload is a relative durable wait. All fields are optional and
// combinable; a payload with no fields set is legal and passed through.
type WaitForPayload struct {
	Seconds *int `json:"seconds,omitempty"`
	Minutes *int `json:"minutes,omitempty"`
	Hours   *int `json:"hours,omitempty"`
	Days    *int `json:"days,omitempty"`
	Weeks   *int `json:"weeks,omitempty"`
	Months  *int `json:"months,omitempty"`
	Years   *int `json:"years,omitempty"`
}

// IsZero reports whether no duration fields are present.
func (p *WaitForPayload) IsZero() bool {
	return p.Seconds == nil && p.Minutes == nil && p.Hours == nil &&
		p.Days == nil && p.Weeks == nil && p.Months == nil && p.Years == nil
}

// WaitUntilPayload is an absolute durable wait.
type WaitUntilPayload struct {
	// Timestamp is an ISO-8601 instant. It is kept as a string on the wire;
	// parsing happens at dispatch so a bad date is a handler failure, not a
	// malformed event.
	Timestamp string `json:"timestamp"`
}

// LogPayload is a structured log request from the script.
type LogPayload struct {
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// MetadataPayload carries a metadata.set or metadata.append mutation.
type MetadataPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
