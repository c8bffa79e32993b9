package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowbox/stowbox/internal/access"
	"github.com/stowbox/stowbox/internal/metrics"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/objectstore"
	"github.com/stowbox/stowbox/internal/repository"
)

const mb = 1 << 20

var (
	userU = &model.User{ID: "u-1", AccountID: "acc-u", Email: "u@x.com"}
	userV = &model.User{ID: "u-2", AccountID: "acc-v", Email: "v@x.com"}
)

type fileHarness struct {
	svc      *FileService
	files    *fakeFiles
	blobs    *objectstore.MemoryStore
	listings *fakeListings
	metrics  *metrics.InMemoryRecorder

	mu          sync.Mutex
	transitions []Transition
}

func newFileHarness(t *testing.T) *fileHarness {
	t.Helper()
	h := &fileHarness{
		files:    newFakeFiles(),
		blobs:    objectstore.NewMemoryStore(),
		listings: newFakeListings(),
		metrics:  metrics.NewInMemory(),
	}
	h.svc = NewFileService(h.files, h.blobs,
		objectstore.NewURLBuilder("https://cdn.example.com", "files", "stowbox"),
		h.listings,
		FileOptions{MaxFileSize: 50 * mb, CapacityBytes: 2 << 30, UploadConcurrency: 3},
		h.metrics, discardLogger())
	h.svc.SetObserver(func(tr Transition) {
		h.mu.Lock()
		h.transitions = append(h.transitions, tr)
		h.mu.Unlock()
	})
	return h
}

func (h *fileHarness) states(kind TxKind) []TxState {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []TxState
	for _, tr := range h.transitions {
		if tr.Kind == kind {
			out = append(out, tr.To)
		}
	}
	return out
}

func content(n int) UploadInput {
	return UploadInput{Size: int64(n), Content: bytes.NewReader(make([]byte, n))}
}

func upload(t *testing.T, h *fileHarness, owner *model.User, name string, size int) *model.File {
	t.Helper()
	in := content(size)
	in.Name = name
	f, err := h.svc.Upload(context.Background(), owner, in)
	require.NoError(t, err)
	return f
}

func TestUpload_Commits(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)

	f := upload(t, h, userU, "report.pdf", 1024)

	assert.Equal(t, model.FileTypeDocument, f.Type)
	assert.Equal(t, "pdf", f.Extension)
	assert.Equal(t, userU.ID, f.OwnerID)
	assert.Equal(t, userU.AccountID, f.AccountID)
	assert.Equal(t, "https://cdn.example.com/storage/buckets/files/files/"+f.BucketObjectID+"/view?project=stowbox", f.URL)

	data, err := h.blobs.Get(f.BucketObjectID)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
	assert.Equal(t, 1, h.files.count())

	assert.Equal(t, []TxState{StateMetadataPending, StateCommitted}, h.states(TxUpload))
	assert.Equal(t, []string{"u@x.com"}, h.listings.invalidatedViewers())
	assert.Equal(t, uint64(1), h.metrics.Snapshot().Uploads[metrics.OutcomeCommitted])
}

func TestUpload_OversizeNeverReachesStore(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	h.blobs.FailPuts(errors.New("must not be called"))

	in := content(0)
	in.Name = "huge.mov"
	in.Size = 50*mb + 1
	_, err := h.svc.Upload(context.Background(), userU, in)

	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, h.states(TxUpload))
	assert.Equal(t, uint64(1), h.metrics.Snapshot().UploadsRejected)
}

func TestUpload_BlobWriteFailure(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	h.blobs.FailPuts(errors.New("disk full"))

	in := content(10)
	in.Name = "a.txt"
	_, err := h.svc.Upload(context.Background(), userU, in)

	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Equal(t, 0, h.files.count())
	assert.Equal(t, []TxState{StateFailed}, h.states(TxUpload))
}

func TestUpload_MetadataFailureCompensates(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	h.files.createErr = errors.New("db down")

	in := content(10)
	in.Name = "a.txt"
	_, err := h.svc.Upload(context.Background(), userU, in)

	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Equal(t, 0, h.blobs.Len(), "blob must be rolled back")
	assert.Empty(t, h.files.orphanIDs())
	assert.Equal(t,
		[]TxState{StateMetadataPending, StateFailed, StateCompensating, StateCompensated},
		h.states(TxUpload))
	assert.Empty(t, h.listings.invalidatedViewers())
}

func TestUpload_FailedCompensationRecordsOrphan(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	h.files.createErr = errors.New("db down")
	h.blobs.FailDeletes(errors.New("store unreachable"))

	in := content(10)
	in.Name = "a.txt"
	_, err := h.svc.Upload(context.Background(), userU, in)

	// The primary error is reported, not the compensation failure.
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, 1, h.blobs.Len())
	assert.Len(t, h.files.orphanIDs(), 1)
	assert.Equal(t,
		[]TxState{StateMetadataPending, StateFailed, StateCompensating, StateOrphaned},
		h.states(TxUpload))
	assert.Equal(t, uint64(1), h.metrics.Snapshot().Uploads[metrics.OutcomeOrphaned])
}

func TestUpload_SurvivesCancelledRequest(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := content(10)
	in.Name = "a.txt"
	f, err := h.svc.Upload(ctx, userU, in)
	require.NoError(t, err)
	_, err = h.blobs.Get(f.BucketObjectID)
	assert.NoError(t, err)
}

func TestUploadBatch_PerFileResults(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)

	inputs := []UploadInput{
		{Name: "one.png", Size: 3, Content: bytes.NewReader([]byte("abc"))},
		{Name: "big.mp4", Size: 51 * mb, Content: bytes.NewReader(nil)},
		{Name: "two.mp3", Size: 2, Content: bytes.NewReader([]byte("ab"))},
		{Name: "", Size: 1, Content: bytes.NewReader([]byte("a"))},
	}
	results := h.svc.UploadBatch(context.Background(), userU, inputs)

	require.Len(t, results, 4)
	require.NoError(t, results[0].Err)
	assert.Equal(t, model.FileTypeImage, results[0].File.Type)
	assert.ErrorIs(t, results[1].Err, ErrFileTooLarge)
	assert.Nil(t, results[1].File)
	require.NoError(t, results[2].Err)
	assert.Equal(t, model.FileTypeAudio, results[2].File.Type)
	assert.ErrorIs(t, results[3].Err, ErrInvalidInput)

	assert.Equal(t, 2, h.blobs.Len())
	assert.Equal(t, 2, h.files.count())
}

func TestDelete_MetadataThenBlob(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	f := upload(t, h, userU, "report.pdf", 10)
	_, err := h.svc.UpdateSharing(context.Background(), userU, f.ID, []string{"v@x.com"})
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(context.Background(), userU, f.ID))

	assert.Equal(t, 0, h.files.count())
	assert.Equal(t, 0, h.blobs.Len())
	assert.Equal(t, []TxState{StateMetadataPending, StateBlobPending, StateCommitted}, h.states(TxDelete))
	assert.Equal(t, []string{"u@x.com", "v@x.com"}, h.listings.invalidatedViewers())
}

func TestDelete_BlobFailureStillSucceeds(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	f := upload(t, h, userU, "report.pdf", 10)
	h.blobs.FailDeletes(errors.New("store unreachable"))

	require.NoError(t, h.svc.Delete(context.Background(), userU, f.ID))

	page, err := h.svc.List(context.Background(), userU, access.Options{})
	require.NoError(t, err)
	assert.Empty(t, page.Files)
	assert.Equal(t, []string{f.BucketObjectID}, h.files.orphanIDs())
	assert.Equal(t, []TxState{StateMetadataPending, StateBlobPending, StateOrphaned}, h.states(TxDelete))
}

func TestDelete_MetadataFailureKeepsBlob(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	f := upload(t, h, userU, "report.pdf", 10)
	h.files.deleteErr = errors.New("db down")

	err := h.svc.Delete(context.Background(), userU, f.ID)

	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Equal(t, 1, h.blobs.Len())
	assert.Equal(t, []TxState{StateMetadataPending, StateFailed}, h.states(TxDelete))
}

func TestDelete_Ownership(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	f := upload(t, h, userU, "report.pdf", 10)

	assert.ErrorIs(t, h.svc.Delete(context.Background(), userV, f.ID), ErrFileNotFound)

	_, err := h.svc.UpdateSharing(context.Background(), userU, f.ID, []string{userV.Email})
	require.NoError(t, err)
	assert.ErrorIs(t, h.svc.Delete(context.Background(), userV, f.ID), ErrForbidden)
	assert.Equal(t, 1, h.files.count())
}

func TestList_VisibilityScenario(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	ctx := context.Background()

	in := content(10 * mb)
	in.Name = "report.pdf"
	f, err := h.svc.Upload(ctx, userU, in)
	require.NoError(t, err)
	upload(t, h, userU, "photo.jpg", 5)

	docs, err := h.svc.List(ctx, userU, access.Options{Types: []model.FileType{model.FileTypeDocument}})
	require.NoError(t, err)
	require.Len(t, docs.Files, 1)
	assert.Equal(t, f.ID, docs.Files[0].ID)

	empty, err := h.svc.List(ctx, userV, access.Options{})
	require.NoError(t, err)
	assert.Empty(t, empty.Files)

	_, err = h.svc.UpdateSharing(ctx, userU, f.ID, []string{"V@X.com"})
	require.NoError(t, err)

	shared, err := h.svc.List(ctx, userV, access.Options{})
	require.NoError(t, err)
	require.Len(t, shared.Files, 1)
	assert.Equal(t, f.ID, shared.Files[0].ID)
}

func TestList_UsesCache(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	ctx := context.Background()
	upload(t, h, userU, "a.txt", 1)

	_, err := h.svc.List(ctx, userU, access.Options{})
	require.NoError(t, err)
	h.files.listErr = errors.New("db down")

	page, err := h.svc.List(ctx, userU, access.Options{})
	require.NoError(t, err)
	assert.Len(t, page.Files, 1)

	snap := h.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.ListingCacheHits)
	assert.Equal(t, uint64(1), snap.ListingCacheMisses)
}

func TestList_CacheFailureFallsThrough(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	upload(t, h, userU, "a.txt", 1)
	h.listings.failReads = errors.New("redis down")

	page, err := h.svc.List(context.Background(), userU, access.Options{})
	require.NoError(t, err)
	assert.Len(t, page.Files, 1)
}

func TestList_StoreFailure(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	h.files.listErr = errors.New("db down")

	_, err := h.svc.List(context.Background(), userU, access.Options{})
	assert.ErrorIs(t, err, ErrStoreRead)
}

func TestList_InvalidatedAfterUpload(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	ctx := context.Background()

	first, err := h.svc.List(ctx, userU, access.Options{})
	require.NoError(t, err)
	assert.Empty(t, first.Files)

	upload(t, h, userU, "a.txt", 1)

	second, err := h.svc.List(ctx, userU, access.Options{})
	require.NoError(t, err)
	assert.Len(t, second.Files, 1)
}

// interleavedFiles runs during once, after the first listing has read its
// rows and before the result reaches the cache.
type interleavedFiles struct {
	*fakeFiles
	once   sync.Once
	during func()
}

func (f *interleavedFiles) ListFiles(ctx context.Context, q access.Query) (*repository.FilePage, error) {
	page, err := f.fakeFiles.ListFiles(ctx, q)
	f.once.Do(f.during)
	return page, err
}

func (h *fileHarness) withInterleavedFiles(during func()) *FileService {
	return NewFileService(&interleavedFiles{fakeFiles: h.files, during: during}, h.blobs,
		objectstore.NewURLBuilder("https://cdn.example.com", "files", "stowbox"),
		h.listings,
		FileOptions{MaxFileSize: 50 * mb, CapacityBytes: 2 << 30},
		h.metrics, discardLogger())
}

func TestList_DeleteDuringReadIsNotCached(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	ctx := context.Background()
	f := upload(t, h, userU, "a.txt", 1)

	svc := h.withInterleavedFiles(func() {
		require.NoError(t, h.svc.Delete(ctx, userU, f.ID))
	})

	inFlight, err := svc.List(ctx, userU, access.Options{})
	require.NoError(t, err)
	assert.Len(t, inFlight.Files, 1, "the in-flight read saw the row before the delete")

	after, err := svc.List(ctx, userU, access.Options{})
	require.NoError(t, err)
	assert.Zero(t, h.files.count())
	assert.Empty(t, after.Files)
}

func TestList_RevokedShareDuringReadIsNotCached(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	ctx := context.Background()
	f := upload(t, h, userU, "a.txt", 1)
	_, err := h.svc.UpdateSharing(ctx, userU, f.ID, []string{userV.Email})
	require.NoError(t, err)

	svc := h.withInterleavedFiles(func() {
		_, err := h.svc.UpdateSharing(ctx, userU, f.ID, nil)
		require.NoError(t, err)
	})

	_, err = svc.List(ctx, userV, access.Options{})
	require.NoError(t, err)

	after, err := svc.List(ctx, userV, access.Options{})
	require.NoError(t, err)
	assert.Empty(t, after.Files)
}

func TestList_CacheReadFailureSkipsWrite(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	upload(t, h, userU, "a.txt", 1)
	h.listings.failReads = errors.New("redis down")

	_, err := h.svc.List(context.Background(), userU, access.Options{})
	require.NoError(t, err)
	assert.Zero(t, h.listings.cachedPages())
}

func TestTransaction_IllegalTransitionPanics(t *testing.T) {
	t.Parallel()

	tx := newTransaction(TxDelete, "b", nil)
	assert.Panics(t, func() { tx.advance(StateCommitted) })

	tx = newTransaction(TxUpload, "b", nil)
	tx.advance(StateFailed)
	assert.Panics(t, func() { tx.advance(StateCommitted) })
}

func TestUsage_MatchesOwnedFiles(t *testing.T) {
	t.Parallel()
	h := newFileHarness(t)
	ctx := context.Background()

	upload(t, h, userU, "a.pdf", 100)
	upload(t, h, userU, "b.png", 50)
	upload(t, h, userU, "c.docx", 25)
	shared := upload(t, h, userV, "d.mp3", 1000)
	_, err := h.svc.UpdateSharing(ctx, userV, shared.ID, []string{userU.Email})
	require.NoError(t, err)

	report, err := h.svc.Usage(ctx, userU)
	require.NoError(t, err)

	assert.Equal(t, int64(175), report.UsedBytes)
	assert.Equal(t, int64(125), report.Categories[model.FileTypeDocument].TotalBytes)
	assert.Equal(t, int64(50), report.Categories[model.FileTypeImage].TotalBytes)
	assert.Zero(t, report.Categories[model.FileTypeAudio].TotalBytes)
	assert.Nil(t, report.Categories[model.FileTypeAudio].LatestUpdate)
	assert.Len(t, report.Categories, 5)
	assert.Equal(t, int64(2<<30)-175, report.AvailableBytes)
}

func TestComputeUsage(t *testing.T) {
	t.Parallel()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	report := ComputeUsage([]*model.File{
		{Type: model.FileTypeVideo, SizeBytes: 70, UpdatedAt: newer},
		{Type: model.FileTypeVideo, SizeBytes: 40, UpdatedAt: older},
		{Type: "mystery", SizeBytes: 1, UpdatedAt: older},
	}, 100)

	video := report.Categories[model.FileTypeVideo]
	assert.Equal(t, int64(110), video.TotalBytes)
	require.NotNil(t, video.LatestUpdate)
	assert.Equal(t, newer, *video.LatestUpdate)
	assert.Equal(t, int64(1), report.Categories[model.FileTypeOther].TotalBytes)
	assert.Equal(t, int64(111), report.UsedBytes)
	assert.Zero(t, report.AvailableBytes)
}
