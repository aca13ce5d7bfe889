package models

import "time"

// Event is an opaque log entry attached to a task, or free-standing. It is
// durable beyond the task's success. Payload types embed EventMeta.
//
// The accessor is named EvtMeta, not EventMeta, so the promoted method is
// not shadowed by the embedded field of the same name.
type Event interface {
	EvtMeta() *EventMeta
}

// EventMeta carries the bookkeeping embedded in every event payload type.
type EventMeta struct {
	Description string `json:"description,omitempty"`

	id       int64
	occurred time.Time
}

// NewEventMeta returns meta for a freshly created event.
func NewEventMeta(description string) EventMeta {
	return EventMeta{Description: description}
}

// EvtMeta satisfies the Event interface for embedders.
func (m *EventMeta) EvtMeta() *EventMeta { return m }

// ID returns the event row id, 0 before the event is stored.
func (m *EventMeta) ID() int64 { return m.id }

// SetID records the event row id after an insert or load.
func (m *EventMeta) SetID(id int64) { m.id = id }

// Occurred returns the event timestamp from the row.
func (m *EventMeta) Occurred() time.Time { return m.occurred }

// SetOccurred records the event timestamp on load.
func (m *EventMeta) SetOccurred(t time.Time) { m.occurred = t }
