// Package store declares the realtime store contracts the messaging core
// depends on, plus an in-process implementation.
//
// Every implementation pushes a full snapshot to subscribers right after
// subscription and after every committed change. Snapshots replace, they
// never patch.
package store

import (
	"context"

	"github.com/dmitrijs2005/hawachat/internal/models"
)

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// SnapshotFunc receives the full message collection in store insertion
// order. A non-nil err means the stream broke; snapshot is nil then.
type SnapshotFunc func(snapshot []models.Message, err error)

// UserFunc receives the current user record, or nil when it is absent.
type UserFunc func(user *models.User)

// IdentityStore holds user records, presence and consent lists.
type IdentityStore interface {
	PutUser(ctx context.Context, user models.User) error
	// GetUser returns common.ErrorNotFound when the id is unknown.
	GetUser(ctx context.Context, id string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdatePresence(ctx context.Context, id string, online bool) error
	SubscribeUser(ctx context.Context, id string, fn UserFunc) (Unsubscribe, error)
}

// MessageStore is the append-only realtime message collection.
type MessageStore interface {
	// AppendMessage assigns id and creation time; status starts at sent.
	AppendMessage(ctx context.Context, draft models.Draft) (string, error)
	// UpdateMessageStatus moves a message forward. Backward or repeated
	// moves are silent no-ops; an unknown id yields common.ErrorNotFound.
	UpdateMessageStatus(ctx context.Context, id string, status models.Status) error
	DeleteMessage(ctx context.Context, id string) error
	SubscribeMessages(ctx context.Context, fn SnapshotFunc) (Unsubscribe, error)
}

// Store is the full realtime store surface.
type Store interface {
	IdentityStore
	MessageStore
	Close() error
}
