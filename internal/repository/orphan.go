package repository

import (
	"context"
	"fmt"

	"github.com/stowbox/stowbox/internal/model"
)

// RecordOrphan notes a blob that has no metadata record. Recording the same blob twice keeps the first note.
func (r *Repository) RecordOrphan(ctx context.Context, o *model.OrphanedBlob) error {
	query := `
		INSERT INTO orphaned_blobs (blob_id, reason, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (blob_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, o.BlobID, string(o.Reason), o.RecordedAt); err != nil {
		return fmt.Errorf("failed to record orphan: %w", err)
	}
	return nil
}

// ListOrphans returns up to limit recorded orphans, oldest first.
func (r *Repository) ListOrphans(ctx context.Context, limit int) ([]*model.OrphanedBlob, error) {
	query := `
		SELECT blob_id, reason, recorded_at
		FROM orphaned_blobs
		ORDER BY recorded_at ASC, blob_id ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}
	defer rows.Close()

	var out []*model.OrphanedBlob
	for rows.Next() {
		var (
			o      model.OrphanedBlob
			reason string
		)
		if err := rows.Scan(&o.BlobID, &reason, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan orphan: %w", err)
		}
		o.Reason = model.OrphanReason(reason)
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphans: %w", err)
	}

	return out, nil
}

// DeleteOrphan removes an orphan note once its blob is gone.
func (r *Repository) DeleteOrphan(ctx context.Context, blobID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM orphaned_blobs WHERE blob_id = $1`, blobID); err != nil {
		return fmt.Errorf("failed to delete orphan: %w", err)
	}
	return nil
}
