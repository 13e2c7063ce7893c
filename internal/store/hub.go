package store

import (
	"sync"

	"github.com/dmitrijs2005/hawachat/internal/models"
)

// Hub is the live-push side of a store: one feed for the message
// collection and one feed per watched user id.
type Hub struct {
	messages Feed[[]models.Message]

	mu    sync.Mutex
	users map[string]*Feed[*models.User]
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{users: make(map[string]*Feed[*models.User])}
}

// SubscribeMessages seeds fn with snapshot and registers it for later ones.
// Callers hold their store lock so no committed change can slip between
// the seed and the registration.
func (h *Hub) SubscribeMessages(seq uint64, snapshot []models.Message, fn SnapshotFunc) Unsubscribe {
	return h.messages.Subscribe(seq, snapshot, func(s []models.Message) { fn(s, nil) })
}

// PublishMessages pushes a new full snapshot.
func (h *Hub) PublishMessages(seq uint64, snapshot []models.Message) {
	h.messages.Publish(seq, snapshot)
}

// SubscribeUser seeds fn with the current record of id (nil when absent).
func (h *Hub) SubscribeUser(seq uint64, id string, current *models.User, fn UserFunc) Unsubscribe {
	h.mu.Lock()
	f, ok := h.users[id]
	if !ok {
		f = &Feed[*models.User]{}
		h.users[id] = f
	}
	h.mu.Unlock()

	return f.Subscribe(seq, current, fn)
}

// PublishUser pushes the new record of a user to its watchers, if any.
func (h *Hub) PublishUser(seq uint64, u models.User) {
	h.mu.Lock()
	f, ok := h.users[u.ID]
	h.mu.Unlock()
	if !ok {
		return
	}
	c := u.Clone()
	f.Publish(seq, &c)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.messages.Close()

	h.mu.Lock()
	users := h.users
	h.users = make(map[string]*Feed[*models.User])
	h.mu.Unlock()

	for _, f := range users {
		f.Close()
	}
}
