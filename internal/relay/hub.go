package relay

import "sync"

// Hub tracks live connections so they can be counted and closed on shutdown.
type Hub struct {
	mu    sync.Mutex
	conns map[Transport]string // transport -> session code
}

func NewHub() *Hub {
	return &Hub{conns: make(map[Transport]string)}
}

// Register adds a connection and returns a function that removes it.
func (h *Hub) Register(code string, t Transport) func() {
	h.mu.Lock()
	h.conns[t] = code
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.conns, t)
		h.mu.Unlock()
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CountFor returns the number of live connections to a session.
func (h *Hub) CountFor(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.conns {
		if c == code {
			n++
		}
	}
	return n
}

// Sessions returns the number of live connections per session code.
func (h *Hub) Sessions() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.conns))
	for _, code := range h.conns {
		out[code]++
	}
	return out
}

// CloseAll closes every connection with the given code.
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.Lock()
	conns := make([]Transport, 0, len(h.conns))
	for t := range h.conns {
		conns = append(conns, t)
	}
	h.mu.Unlock()

	for _, t := range conns {
		t.Close(code, reason)
	}
}
