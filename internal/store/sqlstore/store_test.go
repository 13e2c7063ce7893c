package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbCounter atomic.Int64

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:sqlstore_%d?mode=memory&cache=shared", dbCounter.Add(1))
	s, err := Open(context.Background(), DialectSQLite, dsn, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type lastSnapshot struct {
	mu   sync.Mutex
	msgs []models.Message
	err  error
	n    int
}

func (l *lastSnapshot) fn(m []models.Message, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs, l.err = m, err
	l.n++
}

func (l *lastSnapshot) get() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.msgs
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestRunMigrations_PropagatesGooseError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return errors.New("boom")
	}

	err := RunMigrations(context.Background(), nil, DialectPostgres)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "postgres", gotDir)
}

func TestStore_UsersRoundTripWithConsents(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutUser(ctx, models.User{ID: "u_1", Name: "Ann", Phone: "01111973405", Role: models.RoleUser, Avatar: "A"}))
	require.NoError(t, s.PutUser(ctx, models.User{ID: "u_2", Name: "Bob", Phone: "222"}))
	require.NoError(t, s.PutUser(ctx, models.User{ID: "u_1", Name: "Ann", Phone: "01111973405", Role: models.RoleUser, Avatar: "A", ConsentedViewers: []string{"u_2"}}))
	require.NoError(t, s.PutUser(ctx, models.User{ID: "u_1", Name: "Ann", Phone: "01111973405", Role: models.RoleUser, Avatar: "A", ConsentedViewers: []string{"u_2"}}))

	u, err := s.GetUser(ctx, "u_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u_2"}, u.ConsentedViewers)
	assert.Equal(t, models.RoleUser, u.Role)

	list, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u_1", list[0].ID)

	_, err = s.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, s.PutUser(ctx, models.User{}), common.ErrorValidation)
}

func TestStore_PresenceAndUserSubscription(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		last *models.User
		hits int
	)
	unsub, err := s.SubscribeUser(ctx, "u_1", func(u *models.User) {
		mu.Lock()
		last = u
		hits++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return hits == 1 && last == nil }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.PutUser(ctx, models.User{ID: "u_1", Name: "Ann"}))
	require.NoError(t, s.UpdatePresence(ctx, "u_1", true))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && last.IsOnline && !last.LastSeen.IsZero()
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.UpdatePresence(ctx, "ghost", true), common.ErrorNotFound)
}

func TestStore_MessageLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	var snap lastSnapshot
	unsub, err := s.SubscribeMessages(ctx, snap.fn)
	require.NoError(t, err)
	defer unsub()

	id1, err := s.AppendMessage(ctx, models.Draft{From: "a", To: "b", Text: "one", Type: models.MessageTypeText})
	require.NoError(t, err)
	id2, err := s.AppendMessage(ctx, models.Draft{From: "ai", To: "a", Text: "two", Type: models.MessageTypeAI, IsRead: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(snap.get()) == 2 }, time.Second, 5*time.Millisecond)
	got := snap.get()
	assert.Equal(t, id1, got[0].ID)
	assert.Equal(t, id2, got[1].ID)
	assert.Equal(t, models.StatusSent, got[0].Status)
	assert.False(t, got[0].IsRead)
	assert.True(t, got[1].IsRead)

	require.NoError(t, s.UpdateMessageStatus(ctx, id1, models.StatusRead))
	require.NoError(t, s.UpdateMessageStatus(ctx, id1, models.StatusDelivered))
	assert.ErrorIs(t, s.UpdateMessageStatus(ctx, "ghost", models.StatusRead), common.ErrorNotFound)

	require.Eventually(t, func() bool {
		m := snap.get()
		return len(m) == 2 && m[0].Status == models.StatusRead && m[0].IsRead
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.DeleteMessage(ctx, id2))
	require.Eventually(t, func() bool { return len(snap.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.DeleteMessage(ctx, id2), common.ErrorNotFound)
}

func TestStore_LateSubscriberGetsCurrentSnapshot(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, models.Draft{From: "a", To: "b", Text: "x", Type: models.MessageTypeText})
	require.NoError(t, err)

	var snap lastSnapshot
	unsub, err := s.SubscribeMessages(ctx, snap.fn)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return len(snap.get()) == 1 }, time.Second, 5*time.Millisecond)
}
