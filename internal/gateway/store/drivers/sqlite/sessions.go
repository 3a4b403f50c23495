package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/pkg/idx"
)

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, token_fp, subject_id, scopes, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.TokenFP, s.SubjectID, joinScopes(s.Scopes),
		s.CreatedAt.UnixMilli(), s.ExpiresAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *sessionsRepo) GetSessionByTokenFP(ctx context.Context, fp string, now time.Time) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, token_fp, subject_id, scopes, created_at, expires_at
		FROM sessions
		WHERE token_fp = ? AND expires_at > ?`, fp, now.UnixMilli())

	var (
		s         domain.Session
		id        string
		scopes    string
		createdAt int64
		expiresAt int64
	)
	err := row.Scan(&id, &s.TokenFP, &s.SubjectID, &scopes, &createdAt, &expiresAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	s.ID, err = idx.Parse(id)
	if err != nil {
		return domain.Session{}, err
	}
	s.Scopes = splitScopes(scopes)
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return s, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, fp string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_fp = ?`, fp)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
