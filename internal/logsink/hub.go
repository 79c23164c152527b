package logsink

import (
	"sync"
)

// Hub is an in-memory pub/sub with a small ring buffer for late subscribers.
type Hub struct {
	mu    sync.Mutex
	ring  []Entry
	start int
	size  int

	subs      map[int]chan Entry
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Entry, capacity),
		subs: make(map[int]chan Entry),
	}
}

func (h *Hub) Publish(e Entry) {
	h.mu.Lock()
	h.pushLocked(e)
	for _, ch := range h.subs {
		// Don't let slow subscribers block the supervisor's stream pumps.
		select {
		case ch <- e:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Subscribe() (<-chan Entry, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Entry, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Snapshot returns the buffered entries, oldest-first.
func (h *Hub) Snapshot() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.ring[(h.start+i)%len(h.ring)])
	}
	return out
}

func (h *Hub) pushLocked(e Entry) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = e
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = e
	h.start = (h.start + 1) % capacity
}
