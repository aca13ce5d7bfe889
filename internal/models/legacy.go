package models

// LegacyTask stands in for a task whose stored blob cannot be decoded. It
// carries the original bytes so nothing is lost; the scheduler never executes
// it, it is marked failed on first dispatch.
type LegacyTask struct {
	TaskMeta
	Raw []byte
}

// NewLegacyTask wraps undecodable task bytes in a placeholder.
func NewLegacyTask(raw []byte) *LegacyTask {
	return &LegacyTask{
		TaskMeta: NewTaskMeta("Legacy task placeholder"),
		Raw:      raw,
	}
}

// LegacyEvent stands in for an event whose stored blob cannot be decoded.
type LegacyEvent struct {
	EventMeta
	Raw []byte
}

// NewLegacyEvent wraps undecodable event bytes in a placeholder.
func NewLegacyEvent(raw []byte) *LegacyEvent {
	return &LegacyEvent{
		EventMeta: NewEventMeta("Legacy event placeholder"),
		Raw:       raw,
	}
}
