package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/dbx"
	"github.com/dmitrijs2005/hawachat/internal/models"
)

// MessageRepository keeps messages in insertion order (seq column).
type MessageRepository struct {
	db dbx.DBTX
}

func NewMessageRepository(db dbx.DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Insert(ctx context.Context, m models.Message) error {
	query :=
		`INSERT INTO messages (id, from_id, to_id, body, created_at, type, is_read, status, file_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.From, m.To, m.Text, m.CreatedAt.UnixMicro(), string(m.Type), m.IsRead, string(m.Status), m.Attachment)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MessageRepository) List(ctx context.Context) ([]models.Message, error) {
	query :=
		`SELECT id, from_id, to_id, body, created_at, type, is_read, status, file_data
		 FROM messages ORDER BY seq
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var (
			m         models.Message
			createdAt int64
			typ, st   string
		)
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &createdAt, &typ, &m.IsRead, &st, &m.Attachment); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		m.CreatedAt = fromMicros(createdAt)
		m.Type = models.MessageType(typ)
		m.Status = models.Status(st)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// AdvanceStatus moves a message forward and reports whether a row changed.
// The rank guard lives in the WHERE clause so concurrent writers can never
// move a status backward. An unknown id yields common.ErrorNotFound.
func (r *MessageRepository) AdvanceStatus(ctx context.Context, id string, status models.Status) (bool, error) {
	query :=
		`UPDATE messages SET status = $1, is_read = (is_read OR $2)
		 WHERE id = $3 AND (CASE status WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE 0 END) < $4
		 `

	res, err := r.db.ExecContext(ctx, query, string(status), status == models.StatusRead, id, status.Rank())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	ok, err := r.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, common.ErrorNotFound
	}
	return false, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM messages WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
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

func (r *MessageRepository) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = $1`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}
