package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/models"
)

// CreateUser inserts a user row. Used by provisioning, not the request path.
func (mc *MySQLClient) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "mysql.create_user",
		trace.WithAttributes(attribute.String("user_id", user.ID)),
	)
	defer span.End()

	query := `INSERT INTO users (id, username, quota, used_space, is_active, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := mc.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Quota, user.UsedSpace, user.IsActive, user.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user row by ID.
func (mc *MySQLClient) GetUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_user",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	query := `SELECT id, username, quota, used_space, is_active, created_at
			  FROM users WHERE id = ?`

	var user models.User
	err := mc.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Quota,
		&user.UsedSpace,
		&user.IsActive,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.NotFound("user")
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// GetQuota reads the user's current quota counters.
func (mc *MySQLClient) GetQuota(ctx context.Context, userID string) (models.QuotaInfo, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_quota",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	query := `SELECT quota, used_space FROM users WHERE id = ?`

	var q models.QuotaInfo
	err := mc.db.QueryRowContext(ctx, query, userID).Scan(&q.Quota, &q.Used)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return models.QuotaInfo{}, apperr.NotFound("user")
	} else if err != nil {
		span.RecordError(err)
		return models.QuotaInfo{}, fmt.Errorf("failed to query quota: %w", err)
	}

	q.Available = q.Quota - q.Used
	if q.Available < 0 {
		q.Available = 0
	}
	return q, nil
}

// ReserveSpace commits n bytes against the user's ceiling as a single
// conditional update, so concurrent uploads cannot jointly overshoot.
func (mc *MySQLClient) ReserveSpace(ctx context.Context, userID string, n int64) error {
	ctx, span := tracer.Start(ctx, "mysql.reserve_space",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int64("bytes", n),
		),
	)
	defer span.End()

	// A zero-byte reservation would not change the row, and the driver
	// reports changed rows, so it would be indistinguishable from a
	// rejection below. Probe the user instead so a missing account still
	// reads as NotFound.
	if n == 0 {
		_, err := mc.GetQuota(ctx, userID)
		return err
	}

	query := `UPDATE users SET used_space = used_space + ?
			  WHERE id = ? AND used_space + ? <= quota`

	res, err := mc.db.ExecContext(ctx, query, n, userID, n)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to reserve space: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to reserve space: %w", err)
	}
	if affected == 0 {
		// Either the user is gone or the reservation does not fit;
		// re-read to report which.
		q, qerr := mc.GetQuota(ctx, userID)
		if qerr != nil {
			return qerr
		}
		span.SetAttributes(attribute.Bool("quota_exceeded", true))
		return apperr.QuotaExceeded(q.Quota, q.Used)
	}

	return nil
}

// ReleaseSpace returns n bytes to the user's headroom, flooring the
// counter at zero.
func (mc *MySQLClient) ReleaseSpace(ctx context.Context, userID string, n int64) error {
	ctx, span := tracer.Start(ctx, "mysql.release_space",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int64("bytes", n),
		),
	)
	defer span.End()

	query := `UPDATE users SET used_space = GREATEST(used_space - ?, 0) WHERE id = ?`

	// RowsAffected is not checked: the driver reports changed rows, and
	// a release that leaves the counter at zero changes nothing.
	if _, err := mc.db.ExecContext(ctx, query, n, userID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release space: %w", err)
	}
	return nil
}
