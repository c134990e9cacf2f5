package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/types"
)

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db db.DBTX
}

func NewSessionRepository(conn db.DBTX) *SessionRepository {
	return &SessionRepository{db: conn}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	const query = `
		INSERT INTO sessions (account_id, address, token, created_at, last_activity, expires_at, valid)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		session.AccountID,
		session.Address,
		session.Token,
		session.CreatedAt,
		session.LastActivity,
		session.ExpiresAt,
	).Scan(&session.ID); err != nil {
		return types.Session{}, translate(err)
	}
	session.Valid = true
	return session, nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (types.Session, error) {
	const query = `
		SELECT id, account_id, address, token, created_at, last_activity, expires_at, valid
		FROM sessions
		WHERE token = $1`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&session.ID,
		&session.AccountID,
		&session.Address,
		&session.Token,
		&session.CreatedAt,
		&session.LastActivity,
		&session.ExpiresAt,
		&session.Valid,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

// Touch records activity on a session.
func (r *SessionRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return execOne(ctx, r.db, `UPDATE sessions SET last_activity = $1 WHERE id = $2`, at, id)
}

// Invalidate marks the session with token as unusable. It reports whether a
// valid session was changed.
func (r *SessionRepository) Invalidate(ctx context.Context, token string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET valid = FALSE WHERE token = $1 AND valid`, token)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// InvalidateAccount marks every session of an account as unusable.
func (r *SessionRepository) InvalidateAccount(ctx context.Context, accountID int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET valid = FALSE WHERE account_id = $1 AND valid`, accountID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PurgeExpired deletes sessions that expired or were invalidated before now.
func (r *SessionRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1 OR NOT valid`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
