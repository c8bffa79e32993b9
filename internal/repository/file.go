package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/stowbox/stowbox/internal/access"
	"github.com/stowbox/stowbox/internal/model"
)

// Common errors for file repository operations.
var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileExists   = errors.New("file already exists")
)

// FilePage is a listing result. Total counts matches before the limit.
type FilePage struct {
	Files []*model.File
	Total int
}

// CreateFile inserts a file record.
func (r *Repository) CreateFile(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	shared := f.SharedWith
	if shared == nil {
		shared = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		f.ID,
		f.Name,
		string(f.Type),
		f.Extension,
		f.SizeBytes,
		f.URL,
		f.OwnerID,
		f.AccountID,
		pq.Array(shared),
		f.BucketObjectID,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFileExists
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// ListFiles returns the files matching q.
func (r *Repository) ListFiles(ctx context.Context, q access.Query) (*FilePage, error) {
	query, args, err := compileSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	page := &FilePage{Files: []*model.File{}}
	for rows.Next() {
		var total int
		f, err := scanFile(rows, &total)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		page.Files = append(page.Files, f)
		page.Total = total
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	return page, nil
}

// FindFile returns the single file matching q plus IDIs{id}.
func (r *Repository) FindFile(ctx context.Context, q access.Query, id string) (*model.File, error) {
	page, err := r.ListFiles(ctx, q.Where(access.IDIs{FileID: id}).WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(page.Files) == 0 {
		return nil, ErrFileNotFound
	}
	return page.Files[0], nil
}

// RenameFile sets a file's name if it is owned by ownerID.
func (r *Repository) RenameFile(ctx context.Context, id, ownerID, name string, now time.Time) (*model.File, error) {
	query := `
		UPDATE files
		SET name = $3, updated_at = $4
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + fileColumns

	f, err := scanFile(r.pool.QueryRow(ctx, query, id, ownerID, name, now), nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to rename file: %w", err)
	}
	return f, nil
}

// UpdateSharing replaces a file's share list if it is owned by ownerID.
func (r *Repository) UpdateSharing(ctx context.Context, id, ownerID string, emails []string, now time.Time) (*model.File, error) {
	query := `
		UPDATE files
		SET shared_with = $3, updated_at = $4
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + fileColumns

	if emails == nil {
		emails = []string{}
	}

	f, err := scanFile(r.pool.QueryRow(ctx, query, id, ownerID, pq.Array(emails), now), nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to update sharing: %w", err)
	}
	return f, nil
}

// DeleteFile removes a file record if it is owned by ownerID.
func (r *Repository) DeleteFile(ctx context.Context, id, ownerID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// ReferencedBlobs returns the subset of blobIDs that some file record points to.
func (r *Repository) ReferencedBlobs(ctx context.Context, blobIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(blobIDs))
	if len(blobIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT bucket_object_id FROM files WHERE bucket_object_id = ANY($1)`,
		pq.Array(blobIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query referenced blobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan blob id: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blob ids: %w", err)
	}

	return out, nil
}

// scanFile scans a file row. When total is non-nil the trailing window count is scanned into it.
func scanFile(row pgx.Row, total *int) (*model.File, error) {
	var (
		f      model.File
		typ    string
		shared []string
	)
	dest := []any{
		&f.ID,
		&f.Name,
		&typ,
		&f.Extension,
		&f.SizeBytes,
		&f.URL,
		&f.OwnerID,
		&f.AccountID,
		&shared,
		&f.BucketObjectID,
		&f.CreatedAt,
		&f.UpdatedAt,
	}
	if total != nil {
		dest = append(dest, total)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	f.Type = model.FileType(typ)
	f.SharedWith = shared
	return &f, nil
}
