package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/stowbox/stowbox/internal/access"
	"github.com/stowbox/stowbox/internal/cache"
	"github.com/stowbox/stowbox/internal/metrics"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/objectstore"
	"github.com/stowbox/stowbox/internal/repository"
)

// FileStore is the document store for file metadata.
type FileStore interface {
	CreateFile(ctx context.Context, f *model.File) error
	ListFiles(ctx context.Context, q access.Query) (*repository.FilePage, error)
	FindFile(ctx context.Context, q access.Query, id string) (*model.File, error)
	RenameFile(ctx context.Context, id, ownerID, name string, now time.Time) (*model.File, error)
	UpdateSharing(ctx context.Context, id, ownerID string, emails []string, now time.Time) (*model.File, error)
	DeleteFile(ctx context.Context, id, ownerID string) error
	RecordOrphan(ctx context.Context, o *model.OrphanedBlob) error
}

// ListingCache caches listing pages per viewer.
type ListingCache interface {
	GetListing(ctx context.Context, viewer, queryKey string) (*cache.ListingPage, int64, error)
	SetListing(ctx context.Context, viewer string, version int64, queryKey string, page *cache.ListingPage, ttl time.Duration) error
	InvalidateListings(ctx context.Context, viewers ...string) error
}

// FileOptions are the storage limits.
type FileOptions struct {
	MaxFileSize       int64
	CapacityBytes     int64
	UploadConcurrency int
	ListingTTL        time.Duration
}

// FileService coordinates file transactions across the object store and the document store.
type FileService struct {
	files    FileStore
	blobs    objectstore.Store
	urls     objectstore.URLBuilder
	listings ListingCache
	opts     FileOptions
	metrics  metrics.Recorder
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewFileService creates a new FileService. listings may be nil to disable listing caching.
func NewFileService(files FileStore, blobs objectstore.Store, urls objectstore.URLBuilder, listings ListingCache, opts FileOptions, recorder metrics.Recorder, logger *slog.Logger) *FileService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = 4
	}
	if opts.ListingTTL <= 0 {
		opts.ListingTTL = cache.DefaultListingTTL
	}
	return &FileService{
		files:    files,
		blobs:    blobs,
		urls:     urls,
		listings: listings,
		opts:     opts,
		metrics:  recorder,
		logger:   logger.With("component", "files"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver installs a hook that sees every upload and delete transition.
func (s *FileService) SetObserver(o Observer) {
	s.observer = o
}

// UploadInput is one file to upload.
type UploadInput struct {
	Name    string
	Size    int64
	Content io.Reader
}

// UploadResult is the per-file outcome of a batch upload.
type UploadResult struct {
	Name string
	File *model.File
	Err  error
}

// Upload stores one file: blob first, then metadata, deleting the blob if the metadata write fails.
func (s *FileService) Upload(ctx context.Context, owner *model.User, in UploadInput) (*model.File, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Size < 0 || in.Content == nil {
		return nil, fmt.Errorf("%w: file name and content are required", ErrInvalidInput)
	}
	if in.Size > s.opts.MaxFileSize {
		s.metrics.IncUploadRejected()
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, name, in.Size, s.opts.MaxFileSize)
	}

	// The protocol runs to completion even if the client goes away.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	blobID := uuid.NewString()
	tx := newTransaction(TxUpload, blobID, s.observer)

	if err := s.blobs.Put(ctx, blobID, name, in.Content, in.Size); err != nil {
		tx.advance(StateFailed)
		s.metrics.IncUpload(metrics.OutcomeFailed)
		s.logger.ErrorContext(ctx, "blob write failed",
			slog.String("blob_id", blobID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: put blob: %w", ErrStoreWrite, err)
	}
	tx.advance(StateMetadataPending)

	typ, ext := model.ClassifyName(name)
	now := s.now()
	f := &model.File{
		ID:             ulid.Make().String(),
		Name:           name,
		Type:           typ,
		Extension:      ext,
		SizeBytes:      in.Size,
		URL:            s.urls.ViewURL(blobID),
		OwnerID:        owner.ID,
		AccountID:      owner.AccountID,
		SharedWith:     []string{},
		BucketObjectID: blobID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.files.CreateFile(ctx, f); err != nil {
		tx.advance(StateFailed)
		s.logger.ErrorContext(ctx, "metadata write failed, compensating",
			slog.String("blob_id", blobID),
			slog.String("error", err.Error()),
		)
		s.compensate(ctx, tx)
		return nil, fmt.Errorf("%w: create metadata: %w", ErrStoreWrite, err)
	}

	tx.advance(StateCommitted)
	s.metrics.IncUpload(metrics.OutcomeCommitted)
	s.metrics.AddBytesStored(f.SizeBytes)
	s.metrics.ObserveUploadDuration(time.Since(start))
	s.invalidate(ctx, owner.Email)

	return f, nil
}

// compensate deletes a blob whose metadata write failed.
func (s *FileService) compensate(ctx context.Context, tx *transaction) {
	tx.advance(StateCompensating)

	err := s.blobs.Delete(ctx, tx.blobID)
	if err == nil || errors.Is(err, objectstore.ErrBlobNotFound) {
		tx.advance(StateCompensated)
		s.metrics.IncUpload(metrics.OutcomeCompensated)
		return
	}

	tx.advance(StateOrphaned)
	s.metrics.IncUpload(metrics.OutcomeOrphaned)
	s.recordOrphan(ctx, tx.blobID, model.OrphanCompensationFailed, err)
}

// UploadBatch uploads files concurrently. Each file runs its own protocol; one failure does not affect the others.
func (s *FileService) UploadBatch(ctx context.Context, owner *model.User, inputs []UploadInput) []UploadResult {
	results := make([]UploadResult, len(inputs))

	var g errgroup.Group
	g.SetLimit(s.opts.UploadConcurrency)
	for i, in := range inputs {
		results[i].Name = in.Name
		if in.Size > s.opts.MaxFileSize {
			s.metrics.IncUploadRejected()
			results[i].Err = fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, in.Name, in.Size, s.opts.MaxFileSize)
			continue
		}
		g.Go(func() error {
			f, err := s.Upload(ctx, owner, in)
			results[i].File = f
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Delete removes a file owned by caller: metadata first, then the blob.
// A blob that cannot be deleted afterwards is recorded as an orphan and the call still succeeds.
func (s *FileService) Delete(ctx context.Context, caller *model.User, fileID string) error {
	ctx = context.WithoutCancel(ctx)

	f, err := s.ownedFile(ctx, caller, fileID)
	if err != nil {
		return err
	}

	tx := newTransaction(TxDelete, f.BucketObjectID, s.observer)
	tx.advance(StateMetadataPending)

	if err := s.files.DeleteFile(ctx, f.ID, caller.ID); err != nil {
		tx.advance(StateFailed)
		s.metrics.IncDelete(metrics.OutcomeFailed)
		if errors.Is(err, repository.ErrFileNotFound) {
			return ErrFileNotFound
		}
		s.logger.ErrorContext(ctx, "metadata delete failed",
			slog.String("file_id", f.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: delete metadata: %w", ErrStoreWrite, err)
	}
	tx.advance(StateBlobPending)
	s.metrics.AddBytesStored(-f.SizeBytes)
	s.invalidate(ctx, f.Audience(caller.Email)...)

	if err := s.blobs.Delete(ctx, f.BucketObjectID); err != nil && !errors.Is(err, objectstore.ErrBlobNotFound) {
		tx.advance(StateOrphaned)
		s.metrics.IncDelete(metrics.OutcomeOrphaned)
		s.recordOrphan(ctx, f.BucketObjectID, model.OrphanDeleteLeaked, err)
		return nil
	}

	tx.advance(StateCommitted)
	s.metrics.IncDelete(metrics.OutcomeCommitted)
	return nil
}

// List returns the files visible to caller, narrowed by opts.
func (s *FileService) List(ctx context.Context, caller *model.User, opts access.Options) (*repository.FilePage, error) {
	q := access.Build(access.IdentityOf(caller), opts)
	key := q.Key()
	viewer := strings.ToLower(caller.Email)

	// cacheable is set only when the viewer's listing version is known; the
	// page is then stored under that version, never a later one.
	var (
		version   int64
		cacheable bool
	)
	if s.listings != nil {
		page, v, err := s.listings.GetListing(ctx, viewer, key)
		switch {
		case err == nil:
			s.metrics.IncListingCacheHit()
			return &repository.FilePage{Files: page.Files, Total: page.Total}, nil
		case errors.Is(err, cache.ErrCacheMiss):
			version, cacheable = v, true
		default:
			s.logger.WarnContext(ctx, "listing cache read failed", slog.String("error", err.Error()))
		}
		s.metrics.IncListingCacheMiss()
	}

	page, err := s.files.ListFiles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %w", ErrStoreRead, err)
	}

	if cacheable {
		cached := &cache.ListingPage{Files: page.Files, Total: page.Total}
		if err := s.listings.SetListing(ctx, viewer, version, key, cached, s.opts.ListingTTL); err != nil {
			s.logger.WarnContext(ctx, "listing cache write failed", slog.String("error", err.Error()))
		}
	}

	return page, nil
}

// ownedFile loads a file through the caller's visibility scope and checks ownership.
func (s *FileService) ownedFile(ctx context.Context, caller *model.User, fileID string) (*model.File, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, ErrFileNotFound
	}
	f, err := s.files.FindFile(ctx, access.ForCaller(access.IdentityOf(caller)), fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("%w: find file: %w", ErrStoreRead, err)
	}
	if !f.IsOwnedBy(caller.ID) {
		return nil, ErrForbidden
	}
	return f, nil
}

func (s *FileService) recordOrphan(ctx context.Context, blobID string, reason model.OrphanReason, cause error) {
	s.logger.ErrorContext(ctx, ErrOrphanedBlob.Error(),
		slog.String("blob_id", blobID),
		slog.String("reason", string(reason)),
		slog.String("error", cause.Error()),
	)
	err := s.files.RecordOrphan(ctx, &model.OrphanedBlob{
		BlobID:     blobID,
		Reason:     reason,
		RecordedAt: s.now(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record orphaned blob",
			slog.String("blob_id", blobID),
			slog.String("error", err.Error()),
		)
	}
}

// invalidate marks the listings of viewers stale. Failures are logged only.
func (s *FileService) invalidate(ctx context.Context, viewers ...string) {
	if s.listings == nil || len(viewers) == 0 {
		return
	}
	if err := s.listings.InvalidateListings(ctx, viewers...); err != nil {
		s.logger.WarnContext(ctx, "listing invalidation failed", slog.String("error", err.Error()))
	}
}
