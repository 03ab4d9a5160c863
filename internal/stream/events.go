package stream

import (
	"sync"

	"github.com/udisondev/worldstream/internal/parcel"
)

// EventType names a world change.
type EventType string

const (
	EventSpawned      EventType = "spawned"
	EventDespawned    EventType = "despawned"
	EventLevelChanged EventType = "level_changed"
	EventMoved        EventType = "moved"
	EventRejected     EventType = "rejected"
)

// Event is published to subscribers after each world change.
type Event struct {
	Type      EventType       `json:"type"`
	Instance  uint64          `json:"instance,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Name      string          `json:"name,omitempty"`
	Parcels   []parcel.Parcel `json:"parcels,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Level     int             `json:"level"`
	Position  parcel.Point    `json:"position"`
	Parcel    parcel.Parcel   `json:"parcel"`
	// Command and Error describe a rejected command.
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

type hub struct {
	mu     sync.Mutex
	size   int
	subs   map[int]chan Event
	nextID int
}

func newHub(size int) *hub {
	return &hub{size: size, subs: make(map[int]chan Event)}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.size)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
}

// publish never blocks. Subscribers that fall behind lose events.
func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
