package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bank-report-review/internal/model"
)

// SessionRepo persists active sessions in the sessions table.  Timestamps
// are stored as unix seconds; an expires_at of 0 means no expiry.
type SessionRepo struct{ db *sqlx.DB }

func NewSessionRepo(db *sqlx.DB) *SessionRepo { return &SessionRepo{db: db} }

type sessionRow struct {
	Token     string `db:"token"`
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	Role      string `db:"role"`
	CreatedAt int64  `db:"created_at"`
	ExpiresAt int64  `db:"expires_at"`
}

// Insert stores a new session record.
func (r *SessionRepo) Insert(ctx context.Context, s model.SessionRecord) error {
	var exp int64
	if !s.ExpiresAt.IsZero() {
		exp = s.ExpiresAt.Unix()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, username, role, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		s.ID, s.UserID, s.Username, s.Role, s.CreatedAt.Unix(), exp)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Delete removes a session.  Deleting an unknown id is not an error.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", id)
	return err
}

// ListActive returns the sessions not expired at now and removes the
// expired ones.
func (r *SessionRepo) ListActive(ctx context.Context, now time.Time) ([]model.SessionRecord, error) {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at > 0 AND expires_at <= ?", now.Unix()); err != nil {
		return nil, err
	}
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows,
		"SELECT token, user_id, username, role, created_at, expires_at FROM sessions ORDER BY created_at"); err != nil {
		return nil, err
	}
	out := make([]model.SessionRecord, 0, len(rows))
	for _, row := range rows {
		rec := model.SessionRecord{
			ID:        row.Token,
			UserID:    row.UserID,
			Username:  row.Username,
			Role:      row.Role,
			CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		}
		if row.ExpiresAt > 0 {
			rec.ExpiresAt = time.Unix(row.ExpiresAt, 0).UTC()
		}
		out = append(out, rec)
	}
	return out, nil
}
