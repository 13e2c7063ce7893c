// Package sqlstore implements store.Store over database/sql for SQLite and
// PostgreSQL. Live updates are pushed from this process after every
// committed write, so a single process must own the database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/dbx"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/dmitrijs2005/hawachat/internal/store"
	"github.com/google/uuid"
)

type Store struct {
	db       *sql.DB
	users    *UserRepository
	messages *MessageRepository
	log      logging.Logger

	// mu serializes writes with subscription seeding so snapshots are
	// published in commit order.
	mu  sync.Mutex
	seq uint64
	hub *store.Hub

	now   func() time.Time
	newID func() string
}

var _ store.Store = (*Store)(nil)

// New wraps an already migrated database.
func New(db *sql.DB, log logging.Logger) *Store {
	return &Store{
		db:       db,
		users:    NewUserRepository(db),
		messages: NewMessageRepository(db),
		log:      log.With("module", "sqlstore"),
		hub:      store.NewHub(),
		now:      time.Now,
		newID: func() string {
			id, err := uuid.NewV7()
			if err != nil {
				return uuid.NewString()
			}
			return id.String()
		},
	}
}

// Open connects, migrates and wraps the database.
func Open(ctx context.Context, d Dialect, dsn string, log logging.Logger) (*Store, error) {
	db, err := OpenDB(ctx, d, dsn)
	if err != nil {
		return nil, err
	}
	return New(db, log), nil
}

func (s *Store) PutUser(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return common.ErrorValidation
	}

	s.mu.Lock()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewUserRepository(tx)
		if err := repo.Upsert(ctx, user, s.now()); err != nil {
			return err
		}
		for i, viewer := range user.ConsentedViewers {
			if err := repo.AddConsent(ctx, user.ID, viewer, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	seq, saved, err := s.userCommittedLocked(ctx, user.ID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.PublishUser(seq, saved)
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.users.Get(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *Store) UpdatePresence(ctx context.Context, id string, online bool) error {
	s.mu.Lock()
	if err := s.users.SetPresence(ctx, id, online, s.now()); err != nil {
		s.mu.Unlock()
		return err
	}
	seq, saved, err := s.userCommittedLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.PublishUser(seq, saved)
	return nil
}

func (s *Store) SubscribeUser(ctx context.Context, id string, fn store.UserFunc) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *models.User
	u, err := s.users.Get(ctx, id)
	switch {
	case err == nil:
		current = &u
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}
	return s.hub.SubscribeUser(s.seq, id, current, fn), nil
}

func (s *Store) AppendMessage(ctx context.Context, draft models.Draft) (string, error) {
	msg := draft.Materialize(s.newID(), s.now())

	s.mu.Lock()
	if err := s.messages.Insert(ctx, msg); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.commitMessagesLocked(ctx)
	return msg.ID, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return common.ErrorValidation
	}

	s.mu.Lock()
	changed, err := s.messages.AdvanceStatus(ctx, id, status)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	s.commitMessagesLocked(ctx)
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.messages.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		return err
	}
	s.commitMessagesLocked(ctx)
	return nil
}

func (s *Store) SubscribeMessages(ctx context.Context, fn store.SnapshotFunc) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.messages.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.hub.SubscribeMessages(s.seq, snap, fn), nil
}

// Close drops subscribers and closes the database.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func (s *Store) userCommittedLocked(ctx context.Context, id string) (uint64, models.User, error) {
	s.seq++
	u, err := s.users.Get(ctx, id)
	return s.seq, u, err
}

// commitMessagesLocked releases s.mu. The write already committed, so a
// failed reload only costs subscribers this one snapshot.
func (s *Store) commitMessagesLocked(ctx context.Context) {
	s.seq++
	seq := s.seq
	snap, err := s.messages.List(ctx)
	s.mu.Unlock()

	if err != nil {
		s.log.Error(ctx, "reload messages after write", "error", err)
		return
	}
	s.hub.PublishMessages(seq, snap)
}
