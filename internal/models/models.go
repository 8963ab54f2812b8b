package models

import "time"

// User owns folders and files and carries the quota counters.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Quota     int64     `json:"quota"`
	UsedSpace int64     `json:"used_space"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Folder is a node in the per-user materialized-path tree. Path is the
// full location ("/docs/2024") and must always equal the parent's path
// plus "/" plus Name; ParentID nil means root level.
type Folder struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ParentID  *string    `json:"parent_id,omitempty"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// File is the metadata row for one object in the store. S3Key addresses
// exactly one object for the lifetime of the live record. Rows are
// cached as JSON, so every field carries a tag; API responses use
// FileSummary instead of this struct.
type File struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	FolderID     *string    `json:"folder_id,omitempty"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"original_name"`
	MimeType     string     `json:"mime_type"`
	Size         int64      `json:"size"`
	S3Key        string     `json:"s3_key"`
	S3Bucket     string     `json:"s3_bucket"`
	IsDeleted    bool       `json:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// QuotaInfo summarizes a user's storage consumption.
type QuotaInfo struct {
	Quota     int64 `json:"quota"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// FolderSummary is a listing row: a child folder annotated with its
// direct non-deleted file count.
type FolderSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	FileCount int64     `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
}

// FileSummary is the per-file result of an upload and the listing row
// for folder contents.
type FileSummary struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}
