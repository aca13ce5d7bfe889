package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedq/schedq/internal/models"
)

type pingTask struct {
	models.TaskMeta
	Target string `json:"target"`
}

type pingEvent struct {
	models.EventMeta
	Result string `json:"result"`
}

func newTestCodec() *JSON {
	c := NewJSON()
	c.RegisterTask("ping", func() models.Task { return &pingTask{} })
	c.RegisterEvent("ping_result", func() models.Event { return &pingEvent{} })
	return c
}

func TestJSON_TaskRoundTrip(t *testing.T) {
	c := newTestCodec()
	in := &pingTask{
		TaskMeta: models.NewTaskMeta("ping example.com"),
		Target:   "example.com",
	}
	in.Retries = 3

	blob, err := c.EncodeTask(in)
	require.NoError(t, err)

	out, err := c.DecodeTask(blob)
	require.NoError(t, err)

	got, ok := out.(*pingTask)
	require.True(t, ok)
	assert.Equal(t, "example.com", got.Target)
	assert.Equal(t, "ping example.com", got.Meta().Description)
	assert.Equal(t, 3, got.Meta().Retries)
}

func TestJSON_DecodeTaskErrors(t *testing.T) {
	c := newTestCodec()

	_, err := c.DecodeTask([]byte("not json"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = c.DecodeTask([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = c.DecodeTask([]byte(`{"type":"nope","data":{}}`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestJSON_EncodeUnregisteredTask(t *testing.T) {
	c := NewJSON()
	_, err := c.EncodeTask(&pingTask{})
	assert.Error(t, err)
}

func TestJSON_LegacyTaskBytesPreserved(t *testing.T) {
	c := newTestCodec()
	raw := []byte("\x00\x01legacy serialized junk\xff")

	legacy := models.NewLegacyTask(raw)
	blob, err := c.EncodeTask(legacy)
	require.NoError(t, err)
	assert.Equal(t, raw, blob)
}

func TestJSON_EventRoundTrip(t *testing.T) {
	c := newTestCodec()
	in := &pingEvent{
		EventMeta: models.NewEventMeta("ping done"),
		Result:    "ok",
	}

	blob, err := c.EncodeEvent(in)
	require.NoError(t, err)

	out, err := c.DecodeEvent(blob)
	require.NoError(t, err)

	got, ok := out.(*pingEvent)
	require.True(t, ok)
	assert.Equal(t, "ok", got.Result)
}

func TestJSON_LegacyEventBytesPreserved(t *testing.T) {
	c := newTestCodec()
	raw := []byte{0x01, 0x02, 0x03}

	blob, err := c.EncodeEvent(models.NewLegacyEvent(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, blob)
}

func TestJSON_NewTask(t *testing.T) {
	c := newTestCodec()

	task, err := c.NewTask("PING", []byte(`{"target":"example.com"}`))
	require.NoError(t, err)
	got, ok := task.(*pingTask)
	require.True(t, ok)
	assert.Equal(t, "example.com", got.Target)

	// Client payloads rarely carry scheduling fields, so the task must come
	// out with fresh-task defaults rather than zero values.
	assert.Equal(t, models.TaskStateCreated, got.Meta().State)
	assert.Equal(t, models.DefaultRetryLimit, got.Meta().RetryLimit)
	assert.True(t, got.Meta().CanRetry())

	// A payload that does carry them wins over the defaults.
	task, err = c.NewTask("ping", []byte(`{"target":"example.org","retry_limit":2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, task.Meta().RetryLimit)

	_, err = c.NewTask("nope", nil)
	assert.Error(t, err)
}

func TestJSON_ErrorRoundTrip(t *testing.T) {
	c := newTestCodec()

	blob, err := c.EncodeError(&models.TaskError{Message: "boom"})
	require.NoError(t, err)

	got, err := c.DecodeError(blob)
	require.NoError(t, err)
	assert.EqualError(t, got, "boom")

	blob, err = c.EncodeError(nil)
	require.NoError(t, err)
	assert.Nil(t, blob)
}
