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

const folderColumns = `id, user_id, parent_id, name, path, is_deleted, deleted_at, created_at, updated_at`

func scanFolder(row *sql.Row) (*models.Folder, error) {
	var f models.Folder
	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.ParentID,
		&f.Name,
		&f.Path,
		&f.IsDeleted,
		&f.DeletedAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFolder inserts a folder row.
func (mc *MySQLClient) CreateFolder(ctx context.Context, folder *models.Folder) error {
	ctx, span := tracer.Start(ctx, "mysql.create_folder",
		trace.WithAttributes(
			attribute.String("folder_id", folder.ID),
			attribute.String("path", folder.Path),
		),
	)
	defer span.End()

	query := `INSERT INTO folders (` + folderColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := mc.db.ExecContext(ctx, query,
		folder.ID, folder.UserID, folder.ParentID, folder.Name, folder.Path,
		folder.IsDeleted, folder.DeletedAt, folder.CreatedAt, folder.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		// The unique index on live (user_id, path) is the backstop for
		// the service-level existence check, which races concurrent
		// creates.
		if isDuplicateKey(err) {
			return apperr.Conflict("a folder already exists at " + folder.Path)
		}
		return fmt.Errorf("failed to insert folder: %w", err)
	}
	return nil
}

// GetFolder retrieves a live folder scoped to its owner. Foreign or
// soft-deleted folders read as not found.
func (mc *MySQLClient) GetFolder(ctx context.Context, folderID, userID string) (*models.Folder, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_folder",
		trace.WithAttributes(attribute.String("folder_id", folderID)),
	)
	defer span.End()

	query := `SELECT ` + folderColumns + ` FROM folders
			  WHERE id = ? AND user_id = ? AND is_deleted = 0`

	folder, err := scanFolder(mc.db.QueryRowContext(ctx, query, folderID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.NotFound("folder")
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query folder: %w", err)
	}

	return folder, nil
}

// FolderPathExists reports whether a live folder occupies (userID, path).
// Soft-deleted rows do not block path reuse.
func (mc *MySQLClient) FolderPathExists(ctx context.Context, userID, path string) (bool, error) {
	ctx, span := tracer.Start(ctx, "mysql.folder_path_exists",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	query := `SELECT 1 FROM folders WHERE user_id = ? AND path = ? AND is_deleted = 0 LIMIT 1`

	var one int
	err := mc.db.QueryRowContext(ctx, query, userID, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check folder path: %w", err)
	}
	return true, nil
}

// ListFolders returns one page of live direct children of parentID
// (nil for root level), ordered by name, annotated with their live file
// counts.
func (mc *MySQLClient) ListFolders(ctx context.Context, userID string, parentID *string, limit, offset int) ([]models.FolderSummary, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_folders",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	query := `SELECT f.id, f.name, f.path, f.created_at,
				(SELECT COUNT(*) FROM files fi
				 WHERE fi.folder_id = f.id AND fi.user_id = f.user_id AND fi.is_deleted = 0) AS file_count
			  FROM folders f
			  WHERE f.user_id = ? AND f.is_deleted = 0 AND `

	args := []any{userID}
	if parentID == nil {
		query += `f.parent_id IS NULL`
	} else {
		query += `f.parent_id = ?`
		args = append(args, *parentID)
	}
	query += ` ORDER BY f.name ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var out []models.FolderSummary
	for rows.Next() {
		var s models.FolderSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Path, &s.CreatedAt, &s.FileCount); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}

	span.SetAttributes(attribute.Int("folder_count", len(out)))
	return out, nil
}

// CountFolders returns the stable total behind ListFolders pagination.
func (mc *MySQLClient) CountFolders(ctx context.Context, userID string, parentID *string) (int64, error) {
	ctx, span := tracer.Start(ctx, "mysql.count_folders",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	query := `SELECT COUNT(*) FROM folders WHERE user_id = ? AND is_deleted = 0 AND `
	args := []any{userID}
	if parentID == nil {
		query += `parent_id IS NULL`
	} else {
		query += `parent_id = ?`
		args = append(args, *parentID)
	}

	var total int64
	if err := mc.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count folders: %w", err)
	}
	return total, nil
}

// CountChildren returns the live direct child folder and file counts,
// the emptiness gate for folder deletion.
func (mc *MySQLClient) CountChildren(ctx context.Context, folderID, userID string) (folders, files int64, err error) {
	ctx, span := tracer.Start(ctx, "mysql.count_children",
		trace.WithAttributes(attribute.String("folder_id", folderID)),
	)
	defer span.End()

	query := `SELECT
				(SELECT COUNT(*) FROM folders WHERE parent_id = ? AND user_id = ? AND is_deleted = 0),
				(SELECT COUNT(*) FROM files WHERE folder_id = ? AND user_id = ? AND is_deleted = 0)`

	err = mc.db.QueryRowContext(ctx, query, folderID, userID, folderID, userID).Scan(&folders, &files)
	if err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("failed to count children: %w", err)
	}
	return folders, files, nil
}

// RenameFolderTree updates the folder's name and path and rewrites every
// descendant's path prefix in one transaction, so readers never observe
// a half-renamed subtree.
func (mc *MySQLClient) RenameFolderTree(ctx context.Context, folderID, userID, newName, oldPath, newPath string) error {
	ctx, span := tracer.Start(ctx, "mysql.rename_folder_tree",
		trace.WithAttributes(
			attribute.String("folder_id", folderID),
			attribute.String("old_path", oldPath),
			attribute.String("new_path", newPath),
		),
	)
	defer span.End()

	tx, err := mc.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to begin rename transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	res, err := tx.ExecContext(ctx,
		`UPDATE folders SET name = ?, path = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND is_deleted = 0`,
		newName, newPath, now, folderID, userID)
	if err != nil {
		span.RecordError(err)
		if isDuplicateKey(err) {
			return apperr.Conflict("a folder already exists at " + newPath)
		}
		return fmt.Errorf("failed to rename folder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to rename folder: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("folder")
	}

	// Substitute the old prefix in every descendant path. SUBSTRING and
	// CHAR_LENGTH both count characters, so the cut point is computed
	// server-side; a Go byte length would overshoot on multi-byte names.
	_, err = tx.ExecContext(ctx,
		`UPDATE folders SET path = CONCAT(?, SUBSTRING(path, CHAR_LENGTH(?) + 1)), updated_at = ?
		 WHERE user_id = ? AND path LIKE ? ESCAPE '\\'`,
		newPath, oldPath, now, userID, escapeLike(oldPath)+"/%")
	if err != nil {
		span.RecordError(err)
		if isDuplicateKey(err) {
			return apperr.Conflict("a folder already exists at " + newPath)
		}
		return fmt.Errorf("failed to rewrite descendant paths: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit rename: %w", err)
	}
	return nil
}

// SoftDeleteFolder flags a live folder deleted.
func (mc *MySQLClient) SoftDeleteFolder(ctx context.Context, folderID, userID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "mysql.soft_delete_folder",
		trace.WithAttributes(attribute.String("folder_id", folderID)),
	)
	defer span.End()

	query := `UPDATE folders SET is_deleted = 1, deleted_at = ?, updated_at = ?
			  WHERE id = ? AND user_id = ? AND is_deleted = 0`

	res, err := mc.db.ExecContext(ctx, query, at, at, folderID, userID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("folder")
	}
	return nil
}
