package channel

import (
	"encoding/json"
	"sync"
)

// Memory is an in-process Channel used by tests and by the demo binary's
// offline mode. Emit plays the server's role: it delivers an event to every
// handler bound for its kind, but only when the key is subscribed, which
// mirrors how the real transport drops frames for channels you left.
type Memory struct {
	disp *dispatcher

	mu         sync.Mutex
	subscribed map[string]struct{}
	published  []Event
}

// NewMemory constructs an empty in-memory channel.
func NewMemory() *Memory {
	return &Memory{
		disp:       newDispatcher(),
		subscribed: make(map[string]struct{}),
	}
}

func (m *Memory) Subscribe(key string) error {
	m.mu.Lock()
	m.subscribed[key] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Unsubscribe(key string) error {
	m.mu.Lock()
	delete(m.subscribed, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Bind(kind EventKind, h Handler) *Binding {
	return m.disp.bind(kind, h)
}

func (m *Memory) Publish(key string, kind EventKind, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.published = append(m.published, Event{Kind: kind, Channel: key, Data: raw})
	m.mu.Unlock()
	return nil
}

// Subscribed reports whether a key is currently joined.
func (m *Memory) Subscribed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscribed[key]
	return ok
}

// Published returns every event sent through Publish, in order.
func (m *Memory) Published() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.published...)
}

// Emit delivers a server-side event. Frames for unsubscribed keys are
// dropped, exactly like the transport would.
func (m *Memory) Emit(key string, kind EventKind, data interface{}) error {
	m.mu.Lock()
	_, ok := m.subscribed[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.disp.dispatch(Event{Kind: kind, Channel: key, Data: raw})
	return nil
}
