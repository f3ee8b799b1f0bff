package registry

import "sync"

// watchBuffer is the channel depth for each watcher. A watcher that
// falls this far behind starts dropping messages rather than blocking
// the writer.
const watchBuffer = 16

// hub fans appended messages out to per-user watchers.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Message
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]chan Message)}
}

// subscribe registers a watcher for a user's messages. The returned
// cancel func unregisters it and closes the channel.
func (h *hub) subscribe(userID string) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Message, watchBuffer)
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Message)
	}
	h.subs[userID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[userID][id]; ok {
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers msg to every watcher of userID without blocking.
func (h *hub) publish(userID string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[userID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// count returns the number of active watchers across all users.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}
