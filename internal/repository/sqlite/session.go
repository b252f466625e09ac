package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/repository"
)

var _ repository.SessionRepository = (*SessionDB)(nil)

// SessionDB stores session records in the sessions table.
type SessionDB struct {
	conn *sql.DB
}

func (s *SessionDB) Create(ctx context.Context, session *model.Session) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.CreatedAt.UnixMilli(),
		session.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session: %w", translateError(err, "creating session"))
	}
	return nil
}

func (s *SessionDB) Get(ctx context.Context, id string) (*model.Session, error) {
	var (
		session             model.Session
		createdAt, expireAt int64
	)

	err := s.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&session.ID, &session.UserID, &createdAt, &expireAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", "(redacted)")
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", translateError(err, "looking up session"))
	}

	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	session.ExpiresAt = time.UnixMilli(expireAt).UTC()
	return &session, nil
}

// Delete removes a session. Deleting a session that doesn't exist is not an
// error: logging out twice should succeed both times.
func (s *SessionDB) Delete(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", translateError(err, "deleting session"))
	}
	return nil
}

func (s *SessionDB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", translateError(err, "purging sessions"))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", apperror.StoreUnavailable("purging sessions", err))
	}
	return n, nil
}
