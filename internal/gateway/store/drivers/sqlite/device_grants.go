package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/pkg/idx"
)

type deviceGrantsRepo struct {
	db dbtx
}

func (r *deviceGrantsRepo) CreateDeviceGrant(ctx context.Context, g domain.DeviceGrant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_grants (
			id, device_code_fp, user_code, scopes, status,
			subject_id, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID.String(), g.DeviceCodeFP, g.UserCode, joinScopes(g.Scopes),
		string(g.Status), g.SubjectID, g.CreatedAt.UnixMilli(), g.ExpiresAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *deviceGrantsRepo) GetDeviceGrantByDeviceCodeFP(ctx context.Context, fp string) (domain.DeviceGrant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, device_code_fp, user_code, scopes, status,
		       subject_id, created_at, expires_at, resolved_at
		FROM device_grants
		WHERE device_code_fp = ?`, fp)
	return scanDeviceGrant(row)
}

func (r *deviceGrantsRepo) GetDeviceGrantByUserCode(ctx context.Context, userCode string) (domain.DeviceGrant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, device_code_fp, user_code, scopes, status,
		       subject_id, created_at, expires_at, resolved_at
		FROM device_grants
		WHERE user_code = ?`, userCode)
	return scanDeviceGrant(row)
}

func (r *deviceGrantsRepo) ResolveDeviceGrant(
	ctx context.Context,
	userCode string,
	status domain.GrantStatus,
	subjectID string,
	now time.Time,
) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE device_grants
		SET status = ?, subject_id = ?, resolved_at = ?
		WHERE user_code = ? AND status = 'pending' AND expires_at > ?`,
		string(status), subjectID, now.UnixMilli(), userCode, now.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *deviceGrantsRepo) ConsumeDeviceGrant(ctx context.Context, deviceCodeFP string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE device_grants
		SET status = 'consumed'
		WHERE device_code_fp = ? AND status = 'authorized' AND expires_at > ?`,
		deviceCodeFP, now.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *deviceGrantsRepo) DeleteExpiredDeviceGrants(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM device_grants WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanDeviceGrant(row *sql.Row) (domain.DeviceGrant, error) {
	var (
		g          domain.DeviceGrant
		id         string
		scopes     string
		status     string
		createdAt  int64
		expiresAt  int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(&id, &g.DeviceCodeFP, &g.UserCode, &scopes, &status,
		&g.SubjectID, &createdAt, &expiresAt, &resolvedAt)
	if err != nil {
		return domain.DeviceGrant{}, mapNotFound(err)
	}

	g.ID, err = idx.Parse(id)
	if err != nil {
		return domain.DeviceGrant{}, err
	}
	g.Scopes = splitScopes(scopes)
	g.Status = domain.GrantStatus(status)
	g.CreatedAt = time.UnixMilli(createdAt).UTC()
	g.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if resolvedAt.Valid {
		g.ResolvedAt = time.UnixMilli(resolvedAt.Int64).UTC()
	}
	return g, nil
}
