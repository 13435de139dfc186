package macro

import (
	"encoding/json"
	"fmt"
)

// Kind identifies an input event type.
type Kind string

const (
	KeyDown       Kind = "key_down"
	KeyUp         Kind = "key_up"
	PointerDown   Kind = "pointer_down"
	PointerUp     Kind = "pointer_up"
	PointerClick  Kind = "pointer_click"
	PointerMove   Kind = "pointer_move"
	PointerScroll Kind = "pointer_scroll"
)

// Event is one recorded input action. Timestamp is seconds relative to the
// recording start. Events are immutable once created; only the fields
// relevant to Kind are populated.
type Event struct {
	Kind      Kind    `json:"kind"`
	Timestamp float64 `json:"timestamp"`
	Key       string  `json:"key,omitempty"`
	Button    string  `json:"button,omitempty"`
	X         int     `json:"x,omitempty"`
	Y         int     `json:"y,omitempty"`
	Delta     int     `json:"delta,omitempty"`
}

// MarshalLog serializes an event log as a plain ordered list of records for
// the settings store.
func MarshalLog(events []Event) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}
	return json.Marshal(events)
}

// UnmarshalLog parses a serialized event log, validating event kinds so a
// corrupted store cannot inject unreplayable entries.
func UnmarshalLog(data []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse macro log: %v", err)
	}
	for i, ev := range events {
		switch ev.Kind {
		case KeyDown, KeyUp, PointerDown, PointerUp, PointerClick, PointerMove, PointerScroll:
		default:
			return nil, fmt.Errorf("macro log entry %d has unknown kind %q", i, ev.Kind)
		}
	}
	return events, nil
}
