package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/dbx"
	"github.com/dmitrijs2005/hawachat/internal/models"
)

// UserRepository maps users and their consent lists onto SQL tables.
type UserRepository struct {
	db dbx.DBTX
}

func NewUserRepository(db dbx.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert writes the user row. joined_at is only set on first insert.
func (r *UserRepository) Upsert(ctx context.Context, u models.User, joinedAt time.Time) error {
	query :=
		`INSERT INTO users (id, name, phone, is_online, last_seen, status, bio, avatar, role, is_verified, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		 name = excluded.name, phone = excluded.phone, is_online = excluded.is_online,
		 last_seen = excluded.last_seen, status = excluded.status, bio = excluded.bio,
		 avatar = excluded.avatar, role = excluded.role, is_verified = excluded.is_verified
		 `

	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Phone, u.IsOnline, toMicros(u.LastSeen), u.Status, u.Bio, u.Avatar, string(u.Role), u.IsVerified,
		joinedAt.UnixMicro())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AddConsent records viewerID as allowed to see the user's phone.
// Existing grants are left untouched.
func (r *UserRepository) AddConsent(ctx context.Context, userID, viewerID string, pos int) error {
	query :=
		`INSERT INTO user_consents (user_id, viewer_id, pos)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, viewer_id) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, viewerID, pos); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (models.User, error) {
	query :=
		`SELECT id, name, phone, is_online, last_seen, status, bio, avatar, role, is_verified
		 FROM users WHERE id = $1
		 `

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, common.ErrorNotFound
		}
		return models.User{}, fmt.Errorf("db error: %w", err)
	}

	consents, err := r.consents(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	u.ConsentedViewers = consents[id]
	return u, nil
}

// List returns users in the order they first appeared.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query :=
		`SELECT id, name, phone, is_online, last_seen, status, bio, avatar, role, is_verified
		 FROM users ORDER BY joined_at, id
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	consents, err := r.consents(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].ConsentedViewers = consents[out[i].ID]
	}
	return out, nil
}

// SetPresence updates the online flag; common.ErrorNotFound for unknown ids.
func (r *UserRepository) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	query :=
		`UPDATE users SET is_online = $1, last_seen = $2
		 WHERE id = $3
		 `

	res, err := r.db.ExecContext(ctx, query, online, at.UnixMicro(), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// consents loads consent lists keyed by user id; an empty userID loads all.
func (r *UserRepository) consents(ctx context.Context, userID string) (map[string][]string, error) {
	query := `SELECT user_id, viewer_id FROM user_consents ORDER BY user_id, pos, viewer_id`
	args := []any{}
	if userID != "" {
		query = `SELECT user_id, viewer_id FROM user_consents WHERE user_id = $1 ORDER BY user_id, pos, viewer_id`
		args = append(args, userID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var uid, viewer string
		if err := rows.Scan(&uid, &viewer); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[uid] = append(out[uid], viewer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (models.User, error) {
	var (
		u        models.User
		lastSeen int64
		role     string
	)
	err := s.Scan(&u.ID, &u.Name, &u.Phone, &u.IsOnline, &lastSeen, &u.Status, &u.Bio, &u.Avatar, &role, &u.IsVerified)
	if err != nil {
		return models.User{}, err
	}
	u.LastSeen = fromMicros(lastSeen)
	u.Role = models.Role(role)
	return u, nil
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v)
}
