package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/models"
)

const fileColumns = `id, user_id, folder_id, filename, original_name, mime_type, size, s3_key, s3_bucket, is_deleted, deleted_at, created_at`

// CreateFile inserts a file row after the object write has been
// acknowledged by the store.
func (mc *MySQLClient) CreateFile(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "mysql.create_file",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.Int64("size", file.Size),
		),
	)
	defer span.End()

	query := `INSERT INTO files (` + fileColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := mc.db.ExecContext(ctx, query,
		file.ID, file.UserID, file.FolderID, file.Filename, file.OriginalName,
		file.MimeType, file.Size, file.S3Key, file.S3Bucket,
		file.IsDeleted, file.DeletedAt, file.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// GetFile retrieves a live file scoped to its owner.
func (mc *MySQLClient) GetFile(ctx context.Context, fileID, userID string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_file",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files
			  WHERE id = ? AND user_id = ? AND is_deleted = 0`

	var f models.File
	err := mc.db.QueryRowContext(ctx, query, fileID, userID).Scan(
		&f.ID,
		&f.UserID,
		&f.FolderID,
		&f.Filename,
		&f.OriginalName,
		&f.MimeType,
		&f.Size,
		&f.S3Key,
		&f.S3Bucket,
		&f.IsDeleted,
		&f.DeletedAt,
		&f.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.NotFound("file")
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query file: %w", err)
	}

	return &f, nil
}

// ListFiles returns one page of live files in folderID (nil for root
// level), ordered by filename.
func (mc *MySQLClient) ListFiles(ctx context.Context, userID string, folderID *string, limit, offset int) ([]models.FileSummary, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_files",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	query := `SELECT id, filename, size, mime_type FROM files
			  WHERE user_id = ? AND is_deleted = 0 AND `
	args := []any{userID}
	if folderID == nil {
		query += `folder_id IS NULL`
	} else {
		query += `folder_id = ?`
		args = append(args, *folderID)
	}
	query += ` ORDER BY filename ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var out []models.FileSummary
	for rows.Next() {
		var s models.FileSummary
		if err := rows.Scan(&s.ID, &s.Filename, &s.Size, &s.MimeType); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(out)))
	return out, nil
}

// CountFiles returns the stable total behind ListFiles pagination.
func (mc *MySQLClient) CountFiles(ctx context.Context, userID string, folderID *string) (int64, error) {
	ctx, span := tracer.Start(ctx, "mysql.count_files",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	query := `SELECT COUNT(*) FROM files WHERE user_id = ? AND is_deleted = 0 AND `
	args := []any{userID}
	if folderID == nil {
		query += `folder_id IS NULL`
	} else {
		query += `folder_id = ?`
		args = append(args, *folderID)
	}

	var total int64
	if err := mc.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return total, nil
}

// SoftDeleteFile flags a live file deleted. The object must already be
// gone from the store when this commits.
func (mc *MySQLClient) SoftDeleteFile(ctx context.Context, fileID, userID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "mysql.soft_delete_file",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	query := `UPDATE files SET is_deleted = 1, deleted_at = ?
			  WHERE id = ? AND user_id = ? AND is_deleted = 0`

	res, err := mc.db.ExecContext(ctx, query, at, fileID, userID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("file")
	}
	return nil
}
