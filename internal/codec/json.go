package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/schedq/schedq/internal/models"
)

// envelope wraps a payload with its registered type name so decode can
// instantiate the right concrete type.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JSON is a Codec that serializes payloads as a JSON type envelope. Concrete
// payload types must be registered under a stable name before encode/decode.
type JSON struct {
	mu          sync.RWMutex
	taskByName  map[string]func() models.Task
	taskByType  map[reflect.Type]string
	eventByName map[string]func() models.Event
	eventByType map[reflect.Type]string
}

// NewJSON creates an empty JSON codec.
func NewJSON() *JSON {
	return &JSON{
		taskByName:  make(map[string]func() models.Task),
		taskByType:  make(map[reflect.Type]string),
		eventByName: make(map[string]func() models.Event),
		eventByType: make(map[reflect.Type]string),
	}
}

// RegisterTask registers a task payload type under a stable name.
// Names are normalized to lowercase for consistent lookups.
func (c *JSON) RegisterTask(name string, factory func() models.Task) {
	name = strings.ToLower(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskByName[name] = factory
	c.taskByType[reflect.TypeOf(factory())] = name
}

// RegisterEvent registers an event payload type under a stable name.
func (c *JSON) RegisterEvent(name string, factory func() models.Event) {
	name = strings.ToLower(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventByName[name] = factory
	c.eventByType[reflect.TypeOf(factory())] = name
}

// NewTask instantiates a registered task type and unmarshals data into it.
// Used by API surfaces that accept raw payloads from clients.
func (c *JSON) NewTask(name string, data []byte) (models.Task, error) {
	name = strings.ToLower(name)
	c.mu.RLock()
	factory, ok := c.taskByName[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", name)
	}

	t := factory()
	// Factories yield zero values; seed the scheduling defaults before the
	// client payload overlays them, or the task starts with retry limit 0
	// and fails on its first requeue.
	*t.Meta() = models.NewTaskMeta("")
	if len(data) > 0 {
		if err := json.Unmarshal(data, t); err != nil {
			return nil, fmt.Errorf("unmarshal task %q: %w", name, err)
		}
	}
	return t, nil
}

// EncodeTask serializes a task payload. Legacy placeholders pass their
// original bytes through untouched.
func (c *JSON) EncodeTask(t models.Task) ([]byte, error) {
	if legacy, ok := t.(*models.LegacyTask); ok {
		return legacy.Raw, nil
	}

	c.mu.RLock()
	name, ok := c.taskByType[reflect.TypeOf(t)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unregistered task type %T", t)
	}

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task %q: %w", name, err)
	}
	return json.Marshal(envelope{Type: name, Data: data})
}

// DecodeTask deserializes a task payload blob. Unknown type names and
// malformed blobs report ErrDecode.
func (c *JSON) DecodeTask(blob []byte) (models.Task, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrDecode)
	}

	c.mu.RLock()
	factory, ok := c.taskByName[env.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrDecode, env.Type)
	}

	t := factory()
	if err := json.Unmarshal(env.Data, t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return t, nil
}

// EncodeEvent serializes an event payload. Legacy placeholders pass their
// original bytes through untouched.
func (c *JSON) EncodeEvent(e models.Event) ([]byte, error) {
	if legacy, ok := e.(*models.LegacyEvent); ok {
		return legacy.Raw, nil
	}

	c.mu.RLock()
	name, ok := c.eventByType[reflect.TypeOf(e)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unregistered event type %T", e)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %q: %w", name, err)
	}
	return json.Marshal(envelope{Type: name, Data: data})
}

// DecodeEvent deserializes an event payload blob.
func (c *JSON) DecodeEvent(blob []byte) (models.Event, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrDecode)
	}

	c.mu.RLock()
	factory, ok := c.eventByName[env.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrDecode, env.Type)
	}

	e := factory()
	if err := json.Unmarshal(env.Data, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return e, nil
}

// EncodeError serializes an error for the task's exception column.
func (c *JSON) EncodeError(err error) ([]byte, error) {
	if err == nil {
		return nil, nil
	}
	return json.Marshal(models.TaskError{Message: err.Error()})
}

// DecodeError deserializes an exception blob.
func (c *JSON) DecodeError(blob []byte) (error, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var te models.TaskError
	if err := json.Unmarshal(blob, &te); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &te, nil
}
