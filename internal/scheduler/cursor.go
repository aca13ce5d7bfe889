package scheduler

import (
	"github.com/schedq/schedq/internal/codec"
	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/storage"
)

// TasksCursor walks a snapshot of a task projection. Decoded payloads fall
// back to legacy placeholders so a cursor never fails on old rows. Selection
// state lives only on the cursor; it is not persisted.
type TasksCursor struct {
	rows     []storage.TaskRow
	pos      int
	codec    codec.Codec
	selected map[int64]bool
}

func newTasksCursor(rows []storage.TaskRow, c codec.Codec) *TasksCursor {
	return &TasksCursor{
		rows:     rows,
		pos:      -1,
		codec:    c,
		selected: make(map[int64]bool),
	}
}

// Count returns the number of rows in the snapshot.
func (c *TasksCursor) Count() int { return len(c.rows) }

// Next advances to the next row, reporting false past the end.
func (c *TasksCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Rewind moves the cursor back before the first row.
func (c *TasksCursor) Rewind() { c.pos = -1 }

func (c *TasksCursor) row() *storage.TaskRow { return &c.rows[c.pos] }

func (c *TasksCursor) ID() int64                 { return c.row().ID }
func (c *TasksCursor) QueueID() int64            { return c.row().QueueID }
func (c *TasksCursor) QueuedAt() string          { return models.FormatDate(c.row().QueuedAt) }
func (c *TasksCursor) RetryAt() string           { return models.FormatDate(c.row().RetryAt) }
func (c *TasksCursor) RetryCount() int           { return c.row().RetryCount }
func (c *TasksCursor) Priority() int64           { return c.row().Priority }
func (c *TasksCursor) Status() models.StatusCode { return c.row().Status }
func (c *TasksCursor) FailureReason() string     { return c.row().FailureReason }
func (c *TasksCursor) EventCount() int           { return c.row().EventCount }

// Task decodes the current row's payload. Rows whose payload the codec no
// longer understands come back as legacy placeholders carrying the original
// bytes.
func (c *TasksCursor) Task() models.Task {
	row := c.row()
	t, err := c.codec.DecodeTask(row.Payload)
	if err != nil {
		t = models.NewLegacyTask(row.Payload)
	}
	meta := t.Meta()
	meta.SetID(row.ID)
	meta.Retries = row.RetryCount
	return t
}

// TaskError decodes the current row's persisted exception, nil if the row
// has none or it cannot be decoded.
func (c *TasksCursor) TaskError() error {
	row := c.row()
	if len(row.Exception) == 0 {
		return nil
	}
	taskErr, err := c.codec.DecodeError(row.Exception)
	if err != nil {
		return nil
	}
	return taskErr
}

// SetSelected toggles the ephemeral selection mark for a task id.
func (c *TasksCursor) SetSelected(id int64, selected bool) {
	if selected {
		c.selected[id] = true
	} else {
		delete(c.selected, id)
	}
}

// Selected reports the ephemeral selection mark for a task id.
func (c *TasksCursor) Selected(id int64) bool { return c.selected[id] }

// EventsCursor walks a snapshot of an event projection, oldest first.
type EventsCursor struct {
	rows  []storage.EventRow
	pos   int
	codec codec.Codec
}

func newEventsCursor(rows []storage.EventRow, c codec.Codec) *EventsCursor {
	return &EventsCursor{rows: rows, pos: -1, codec: c}
}

// Count returns the number of rows in the snapshot.
func (c *EventsCursor) Count() int { return len(c.rows) }

// Next advances to the next row, reporting false past the end.
func (c *EventsCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Rewind moves the cursor back before the first row.
func (c *EventsCursor) Rewind() { c.pos = -1 }

func (c *EventsCursor) row() *storage.EventRow { return &c.rows[c.pos] }

func (c *EventsCursor) ID() int64 { return c.row().ID }

// TaskID returns the owning task id, 0 for free-standing events.
func (c *EventsCursor) TaskID() int64 { return c.row().TaskID }

func (c *EventsCursor) OccurredAt() string { return models.FormatDate(c.row().OccurredAt) }

// Event decodes the current row's payload, with a legacy placeholder
// fallback mirroring TasksCursor.Task.
func (c *EventsCursor) Event() models.Event {
	row := c.row()
	e, err := c.codec.DecodeEvent(row.Payload)
	if err != nil {
		e = models.NewLegacyEvent(row.Payload)
	}
	meta := e.EvtMeta()
	meta.SetID(row.ID)
	meta.SetOccurred(row.OccurredAt)
	return e
}
