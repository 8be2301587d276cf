package events

import (
	"sync"

	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/observability"
)

// Hub fans room change events out to subscribers. Each subscription covers
// one (room, kind) stream and is released through its handle; a released or
// nil handle closes as a no-op.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[models.EventKind]map[uint64]func(models.RoomEvent)
	nextID uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[models.EventKind]map[uint64]func(models.RoomEvent)),
	}
}

// Subscription is the cancellation handle for one stream.
type Subscription struct {
	hub  *Hub
	room string
	kind models.EventKind
	id   uint64
	once sync.Once
}

// Close releases the subscription. Safe to call on a nil handle and safe to
// call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.remove(s.room, s.kind, s.id)
		observability.DecSubscriptions(string(s.kind))
	})
}

// Subscribe registers fn for events of the given kind in the given room.
func (h *Hub) Subscribe(roomID string, kind models.EventKind, fn func(models.RoomEvent)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[roomID]; !ok {
		h.subs[roomID] = make(map[models.EventKind]map[uint64]func(models.RoomEvent))
	}
	if _, ok := h.subs[roomID][kind]; !ok {
		h.subs[roomID][kind] = make(map[uint64]func(models.RoomEvent))
	}

	h.nextID++
	id := h.nextID
	h.subs[roomID][kind][id] = fn

	observability.IncSubscriptions(string(kind))
	return &Subscription{hub: h, room: roomID, kind: kind, id: id}
}

// Publish delivers the event to every subscriber of its (room, kind) stream.
// Callbacks run on the publisher's goroutine, in line with the event-loop
// delivery model of the stream contract.
func (h *Hub) Publish(ev models.RoomEvent) {
	h.mu.RLock()
	var fns []func(models.RoomEvent)
	if kinds, ok := h.subs[ev.RoomID]; ok {
		for _, fn := range kinds[ev.Kind] {
			fns = append(fns, fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	observability.IncRoomEvent(string(ev.Kind))
}

// SubscriberCount reports the number of live subscriptions for a room across
// all kinds.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, subs := range h.subs[roomID] {
		total += len(subs)
	}
	return total
}

func (h *Hub) remove(roomID string, kind models.EventKind, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kinds, ok := h.subs[roomID]
	if !ok {
		return
	}
	if subs, ok := kinds[kind]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		delete(h.subs, roomID)
	}
}
