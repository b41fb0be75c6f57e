// Package events fans job progress out to streaming subscribers.
//
// Engines publish envelopes keyed by job id; each subscriber owns a queue
// the hub appends to under a single mutex. Subscribers drain their queue on
// a short poll interval, so a burst of per-file progress costs one mutex
// acquisition per publish rather than one channel send per subscriber.
package events

import (
	"encoding/json"
)

// Envelope type tags. A tag-less envelope (Type == "") carries full job
// state for the legacy streaming flow.
const (
	TypeAnalysisProgress   = "analysis_progress"
	TypeAnalysisComplete   = "analysis_complete"
	TypeAutoUploadStarting = "auto_upload_starting"
	TypeDeleteProgress     = "delete_progress"
	TypeDeleteComplete     = "delete_complete"
	TypeScanStarted        = "scan_started"
	TypeScanFolderComplete = "scan_folder_complete"
	TypeScanComplete       = "scan_complete"
	TypeError              = "error"
)

// Event is one envelope on a subscriber stream. Terminal marks the end of
// the stream for the publishing job; it is a hub-level signal and is not
// serialized.
type Event struct {
	Type     string
	Payload  map[string]any
	Terminal bool
}

// New returns a tagged envelope with an empty payload.
func New(typ string) Event {
	return Event{Type: typ, Payload: map[string]any{}}
}

// With sets a payload field and returns the envelope for chaining.
func (e Event) With(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	e.Payload[key] = value
	return e
}

// AsTerminal marks the envelope as the stream's last.
func (e Event) AsTerminal() Event {
	e.Terminal = true
	return e
}

// MarshalJSON flattens the envelope into a single JSON object with the
// type tag inlined as a "type" field.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		m[k] = v
	}
	if e.Type != "" {
		m["type"] = e.Type
	}
	return json.Marshal(m)
}

// copyPayload gives each subscriber queue its own top-level map, so a
// publisher mutating a reused payload cannot corrupt queued envelopes.
func (e Event) copyPayload() Event {
	if e.Payload == nil {
		return e
	}
	dup := make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		dup[k] = v
	}
	e.Payload = dup
	return e
}
