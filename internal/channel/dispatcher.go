package channel

import (
	"sync"
)

// Handler receives decoded events for the kind it was bound to.
type Handler func(ev Event)

// Binding is the handle returned by Bind; calling Unbind removes exactly the
// handler that Bind registered.
type Binding struct {
	d    *dispatcher
	kind EventKind
	id   int
}

// Unbind removes the handler. Safe to call more than once.
func (b *Binding) Unbind() {
	if b == nil || b.d == nil {
		return
	}
	b.d.remove(b.kind, b.id)
	b.d = nil
}

// dispatcher is the bind/unbind registry shared by the websocket client and
// the in-memory channel. Handlers are keyed by kind, then by a monotonic id
// so two bindings of the same function stay distinguishable.
type dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventKind]map[int]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[EventKind]map[int]Handler)}
}

func (d *dispatcher) bind(kind EventKind, h Handler) *Binding {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	set := d.handlers[kind]
	if set == nil {
		set = make(map[int]Handler)
		d.handlers[kind] = set
	}
	set[d.nextID] = h

	return &Binding{d: d, kind: kind, id: d.nextID}
}

func (d *dispatcher) remove(kind EventKind, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set, ok := d.handlers[kind]; ok {
		delete(set, id)
	}
}

// dispatch invokes every handler bound to the event's kind, on the caller's
// goroutine. Unknown kinds are dropped silently.
func (d *dispatcher) dispatch(ev Event) {
	if ev.Kind == EventUnknown {
		return
	}

	d.mu.RLock()
	set := d.handlers[ev.Kind]
	hs := make([]Handler, 0, len(set))
	for _, h := range set {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}
