package events

import "time"

// JSONEvent is the wire format for serialized events emitted with
// --json-events, one JSON object per line on stdout.
type JSONEvent struct {
	// Type identifies the event (e.g., "unit.started", "merge.completed")
	Type string `json:"type"`

	// Timestamp is when the event occurred (RFC3339 format)
	Timestamp time.Time `json:"timestamp"`

	// Unit is the unit ID this event relates to (omitted for run-scoped events)
	Unit string `json:"unit,omitempty"`

	// QueueIndex is the unit's dispatch position, omitted if not unit-scoped.
	QueueIndex *int `json:"queue_index,omitempty"`

	// Payload contains event-specific data (type varies by event)
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Error contains the error message if this is a failure event
	Error string `json:"error,omitempty"`
}

// ToJSONEvent converts an internal Event to the wire format JSONEvent.
func ToJSONEvent(e Event) JSONEvent {
	je := JSONEvent{
		Type:       string(e.Type),
		Timestamp:  e.Time,
		Unit:       e.Unit,
		QueueIndex: e.QueueIndex,
		Error:      e.Error,
	}

	if e.Payload != nil {
		switch p := e.Payload.(type) {
		case map[string]interface{}:
			je.Payload = p
		default:
			je.Payload = map[string]interface{}{"value": e.Payload}
		}
	}

	return je
}

// ToEvent converts a wire format JSONEvent back to an internal Event.
func (je JSONEvent) ToEvent() Event {
	var payload any
	if je.Payload != nil {
		payload = je.Payload
	}

	return Event{
		Type:       EventType(je.Type),
		Time:       je.Timestamp,
		Unit:       je.Unit,
		QueueIndex: je.QueueIndex,
		Payload:    payload,
		Error:      je.Error,
	}
}
