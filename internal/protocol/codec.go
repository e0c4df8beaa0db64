package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeLine classifies one line of child stdout. It returns (event, true)
// for a well-formed control-event line, and (nil, false) for everything
// else. Decoding is deliberately non-fatal: a line carrying the event
// prefix but malformed JSON, or JSON that does not fit the variant shape,
// is reclassified as plain output rather than failing the invocation.
func DecodeLine(line string) (*Event, bool) {
	rest, found := strings.CutPrefix(line, EventPrefix)
	if !found {
		return nil, false
	}

	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal([]byte(rest), &envelope); err != nil || envelope.Type == "" {
		return nil, false
	}

	ev := &Event{Type: envelope.Type}
	switch envelope.Type {
	case EventHeartbeat:
		// No payload.
	case EventWaitFor:
		var p WaitForPayload
		if err := json.Unmarshal([]byte(rest), &p); err != nil {
			return nil, false
		}
		ev.WaitFor = &p
	case EventWaitUntil:
		// The timestamp is not validated here: a present-but-bad value is a
		// handler failure, and the ack the child is blocking on still flows.
		var p WaitUntilPayload
		if err := json.Unmarshal([]byte(rest), &p); err != nil {
			return nil, false
		}
		ev.WaitUntil = &p
	case EventLog:
		var p LogPayload
		if err := json.Unmarshal([]byte(rest), &p); err != nil {
			return nil, false
		}
		ev.Log = &p
	case EventMetadataSet, EventMetadataAppend:
		var p MetadataPayload
		if err := json.Unmarshal([]byte(rest), &p); err != nil || p.Key == "" {
			return nil, false
		}
		ev.Metadata = &p
	default:
		// Unknown tags are accepted; the dispatcher treats them as no-ops.
	}
	return ev, true
}

// EncodeLine renders an event as a prefixed wire line (without trailing
// newline). The inverse of DecodeLine for well-formed events; used by the
// script-side helper and by tests.
func EncodeLine(ev *Event) (string, error) {
	obj := map[string]any{"type": ev.Type}

	merge := func(payload any) error {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal(b, &fields); err != nil {
			return err
		}
		for k, v := range fields {
			obj[k] = v
		}
		return nil
	}

	var err error
	switch {
	case ev.WaitFor != nil:
		err = merge(ev.WaitFor)
	case ev.WaitUntil != nil:
		err = merge(ev.WaitUntil)
	case ev.Log != nil:
		err = merge(ev.Log)
	case ev.Metadata != nil:
		err = merge(ev.Metadata)
	}
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return EventPrefix + string(b), nil
}

// WriteAck writes the acknowledgment sentinel line to w. Each write is
// independent; the child reads exactly one line per blocking request, so
// redundant writes are harmless.
func WriteAck(w io.Writer) error {
	_, err := io.WriteString(w, AckSentinel+"\n")
	return err
}
