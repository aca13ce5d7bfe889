// Package tasks holds the built-in task and event payload types. Register
// wires them into a codec; applications embedding the scheduler add their
// own payloads the same way.
package tasks

import (
	"github.com/schedq/schedq/internal/codec"
	"github.com/schedq/schedq/internal/models"
)

// Payload type names as persisted inside task and event blobs. Changing one
// orphans every stored row of that type, so treat them as frozen.
const (
	TypeSendEmail = "send_email"
	TypeRunQuery  = "run_query"
	TypeNote      = "note"
)

// Register adds the built-in payload types to the codec.
func Register(c *codec.JSON) {
	c.RegisterTask(TypeSendEmail, func() models.Task { return &SendEmailTask{} })
	c.RegisterTask(TypeRunQuery, func() models.Task { return &RunQueryTask{} })
	c.RegisterEvent(TypeNote, func() models.Event { return &NoteEvent{} })
}

// NoteEvent is a plain text log entry attached to a task, or free-standing.
type NoteEvent struct {
	models.EventMeta
	Message string `json:"message"`
}

// NewNoteEvent creates a note with the given message.
func NewNoteEvent(message string) *NoteEvent {
	return &NoteEvent{
		EventMeta: models.NewEventMeta(message),
		Message:   message,
	}
}
