package service

import (
	"context"
	"fmt"

	"github.com/stowbox/stowbox/internal/access"
	"github.com/stowbox/stowbox/internal/model"
)

// Usage recomputes the caller's storage usage from every file they own.
// Shared files count only against their owner.
func (s *FileService) Usage(ctx context.Context, caller *model.User) (*model.UsageReport, error) {
	page, err := s.files.ListFiles(ctx, access.OwnedBy(access.IdentityOf(caller)))
	if err != nil {
		return nil, fmt.Errorf("%w: list owned files: %w", ErrStoreRead, err)
	}
	return ComputeUsage(page.Files, s.opts.CapacityBytes), nil
}

// ComputeUsage folds files into per-category totals. Every category is present.
func ComputeUsage(files []*model.File, capacity int64) *model.UsageReport {
	report := &model.UsageReport{
		Categories:    make(map[model.FileType]model.CategoryUsage, len(model.FileTypes)),
		CapacityBytes: capacity,
	}
	for _, t := range model.FileTypes {
		report.Categories[t] = model.CategoryUsage{}
	}

	for _, f := range files {
		t := f.Type
		if !t.IsValid() {
			t = model.FileTypeOther
		}
		cat := report.Categories[t]
		cat.TotalBytes += f.SizeBytes
		if cat.LatestUpdate == nil || f.UpdatedAt.After(*cat.LatestUpdate) {
			updated := f.UpdatedAt
			cat.LatestUpdate = &updated
		}
		report.Categories[t] = cat
		report.UsedBytes += f.SizeBytes
	}

	report.AvailableBytes = max(0, capacity-report.UsedBytes)
	return report
}
