package overlay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/MrWong99/livenote/internal/session"
)

// clientBuffer is the number of encoded events queued per client before new
// events are dropped for it.
const clientBuffer = 64

// replayed lists the event types whose latest value is sent to a client on
// connect, in this order.
var replayed = []session.EventType{
	session.EventStatus,
	session.EventTranscript,
	session.EventKeywords,
	session.EventInfo,
}

// hub fans encoded events out to connected clients. Each event carries the
// full current view, so a client that falls behind loses intermediate
// states only.
type hub struct {
	mu      sync.RWMutex
	clients map[uint64]chan []byte
	nextID  uint64
	last    map[session.EventType][]byte
}

func newHub() *hub {
	return &hub{
		clients: make(map[uint64]chan []byte),
		last:    make(map[session.EventType][]byte),
	}
}

// broadcast encodes ev once and queues it for every client.
func (h *hub) broadcast(ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("overlay: encode event", "type", ev.Type, "err", err)
		return
	}

	h.mu.Lock()
	if ev.Type != session.EventError {
		h.last[ev.Type] = data
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.clients {
		select {
		case ch <- data:
		default:
			slog.Debug("overlay: client too slow, event dropped", "client", id, "type", ev.Type)
		}
	}
}

// add registers a client and primes its queue with the latest state.
func (h *hub) add() (uint64, <-chan []byte) {
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, typ := range replayed {
		if data, ok := h.last[typ]; ok {
			ch <- data
		}
	}
	id := h.nextID
	h.nextID++
	h.clients[id] = ch
	return id, ch
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
