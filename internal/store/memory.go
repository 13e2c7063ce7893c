package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process realtime store. Message ids are UUIDv7, so they
// sort by creation time.
type Memory struct {
	mu       sync.Mutex
	users    map[string]models.User
	order    []string
	messages []models.Message
	seq      uint64
	hub      *Hub

	now   func() time.Time
	newID func() string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]models.User),
		hub:   NewHub(),
		now:   time.Now,
		newID: newMessageID,
	}
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (m *Memory) PutUser(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return common.ErrorValidation
	}

	m.mu.Lock()
	if _, ok := m.users[user.ID]; !ok {
		m.order = append(m.order, user.ID)
	}
	m.users[user.ID] = user.Clone()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	m.hub.PublishUser(seq, user)
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return models.User{}, common.ErrorNotFound
	}
	return u.Clone(), nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.User, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.users[id].Clone())
	}
	return out, nil
}

func (m *Memory) UpdatePresence(ctx context.Context, id string, online bool) error {
	m.mu.Lock()
	u, ok := m.users[id]
	if !ok {
		m.mu.Unlock()
		return common.ErrorNotFound
	}
	u.IsOnline = online
	u.LastSeen = m.now()
	m.users[id] = u
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	m.hub.PublishUser(seq, u)
	return nil
}

func (m *Memory) SubscribeUser(ctx context.Context, id string, fn UserFunc) (Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *models.User
	if u, ok := m.users[id]; ok {
		c := u.Clone()
		current = &c
	}
	return m.hub.SubscribeUser(m.seq, id, current, fn), nil
}

func (m *Memory) AppendMessage(ctx context.Context, draft models.Draft) (string, error) {
	m.mu.Lock()
	msg := draft.Materialize(m.newID(), m.now())
	m.messages = append(m.messages, msg)
	seq, snap := m.commitLocked()
	m.mu.Unlock()

	m.hub.PublishMessages(seq, snap)
	return msg.ID, nil
}

func (m *Memory) UpdateMessageStatus(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return common.ErrorValidation
	}

	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return common.ErrorNotFound
	}
	if !m.messages[i].Advance(status) {
		m.mu.Unlock()
		return nil
	}
	seq, snap := m.commitLocked()
	m.mu.Unlock()

	m.hub.PublishMessages(seq, snap)
	return nil
}

func (m *Memory) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return common.ErrorNotFound
	}
	m.messages = slices.Delete(m.messages, i, i+1)
	seq, snap := m.commitLocked()
	m.mu.Unlock()

	m.hub.PublishMessages(seq, snap)
	return nil
}

func (m *Memory) SubscribeMessages(ctx context.Context, fn SnapshotFunc) (Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hub.SubscribeMessages(m.seq, slices.Clone(m.messages), fn), nil
}

// Close drops all subscribers. Data stays readable.
func (m *Memory) Close() error {
	m.hub.Close()
	return nil
}

func (m *Memory) indexLocked(id string) int {
	return slices.IndexFunc(m.messages, func(msg models.Message) bool { return msg.ID == id })
}

func (m *Memory) commitLocked() (uint64, []models.Message) {
	m.seq++
	return m.seq, slices.Clone(m.messages)
}
