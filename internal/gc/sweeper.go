// Package gc reclaims blobs that no file record points to.
//
// Blobs lose their metadata when an upload's compensating delete fails or
// when a file's blob delete fails after its record is gone. Those cases are
// recorded in the orphan table and reclaimed first. A second pass walks the
// object store and removes any blob older than the grace period that no
// record references, which also covers crashes that left no note behind.
// The grace period keeps in-flight uploads, whose metadata is not written
// yet, out of reach.
package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stowbox/stowbox/internal/metrics"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/objectstore"
)

// ErrRunInProgress is returned by RunNow while another sweep is running.
var ErrRunInProgress = errors.New("sweep already in progress")

// Catalog is the metadata side of the sweep.
type Catalog interface {
	ListOrphans(ctx context.Context, limit int) ([]*model.OrphanedBlob, error)
	DeleteOrphan(ctx context.Context, blobID string) error
	ReferencedBlobs(ctx context.Context, blobIDs []string) (map[string]bool, error)
}

// SessionPruner removes expired session records.
type SessionPruner interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// MinGracePeriod is the shortest grace period New accepts. Unreferenced blobs
// younger than the grace period may belong to an upload still writing its
// metadata record.
const MinGracePeriod = time.Minute

// Config contains configuration for the sweeper.
type Config struct {
	Enabled     bool
	Interval    time.Duration
	GracePeriod time.Duration
	BatchSize   int
	// DryRun logs what would be deleted without deleting.
	DryRun bool
}

// Sweeper periodically deletes orphaned blobs. Safe for concurrent use.
type Sweeper struct {
	catalog  Catalog
	blobs    objectstore.Store
	sessions SessionPruner
	config   Config
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	running  sync.Mutex
	stopOnce sync.Once
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a sweeper. It is not started. sessions may be nil.
func New(catalog Catalog, blobs objectstore.Store, sessions SessionPruner, config Config, recorder metrics.Recorder, logger *slog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.GracePeriod < MinGracePeriod {
		config.GracePeriod = MinGracePeriod
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Sweeper{
		catalog:  catalog,
		blobs:    blobs,
		sessions: sessions,
		config:   config,
		metrics:  recorder,
		logger:   logger.With("component", "gc"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins periodic sweeping. It is a no-op when disabled.
func (s *Sweeper) Start() {
	if !s.config.Enabled {
		s.logger.Info("orphan sweeper disabled")
		return
	}

	s.logger.Info("starting orphan sweeper",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("grace_period", s.config.GracePeriod),
		slog.Int("batch_size", s.config.BatchSize),
		slog.Bool("dry_run", s.config.DryRun),
	)

	s.started = true
	go s.worker()
}

// Stop signals the worker and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
		s.logger.Info("orphan sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("orphan sweeper shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one sweep and returns its statistics.
func (s *Sweeper) RunNow(ctx context.Context) (*Stats, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.sweep(ctx)
}

func (s *Sweeper) worker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := s.RunNow(ctx)
			cancel()

			switch {
			case errors.Is(err, ErrRunInProgress):
			case err != nil:
				s.logger.Error("orphan sweep failed", slog.String("error", err.Error()))
			default:
				s.logger.Info("orphan sweep completed", slog.String("stats", stats.Summary()))
			}

		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: s.now()}
	defer func() {
		stats.EndTime = s.now()
		s.metrics.ObserveSweep(int(stats.DeletedCount), stats.Duration())
	}()

	if err := s.sweepRecorded(ctx, stats); err != nil {
		return stats, err
	}
	if err := s.sweepUnreferenced(ctx, stats); err != nil {
		return stats, err
	}

	if s.sessions != nil && !s.config.DryRun {
		n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
		if err != nil {
			s.logger.Warn("expired session cleanup failed", slog.String("error", err.Error()))
		} else {
			stats.SessionsPruned = uint64(n)
		}
	}

	return stats, nil
}

// sweepRecorded reclaims blobs noted in the orphan table.
func (s *Sweeper) sweepRecorded(ctx context.Context, stats *Stats) error {
	orphans, err := s.catalog.ListOrphans(ctx, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list recorded orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}
	stats.RecordedCount = uint64(len(orphans))

	ids := make([]string, len(orphans))
	for i, o := range orphans {
		ids[i] = o.BlobID
	}
	referenced, err := s.catalog.ReferencedBlobs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check references: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		// A record that points at the blob again wins over the note.
		if referenced[id] {
			s.forget(ctx, id)
			continue
		}
		if s.config.DryRun {
			s.logger.Info("dry run: would delete recorded orphan", slog.String("blob_id", id))
			continue
		}
		if !s.delete(ctx, id, stats) {
			continue
		}
		s.forget(ctx, id)
	}
	return nil
}

// sweepUnreferenced walks the store for blobs past the grace period that no record references.
func (s *Sweeper) sweepUnreferenced(ctx context.Context, stats *Stats) error {
	cutoff := s.now().Add(-s.config.GracePeriod)

	batch := make([]string, 0, s.config.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		referenced, err := s.catalog.ReferencedBlobs(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to check references: %w", err)
		}
		for _, id := range batch {
			if referenced[id] {
				continue
			}
			stats.UnreferencedCount++
			if s.config.DryRun {
				s.logger.Info("dry run: would delete unreferenced blob", slog.String("blob_id", id))
				continue
			}
			s.delete(ctx, id, stats)
		}
		batch = batch[:0]
		return nil
	}

	err := s.blobs.Walk(ctx, func(info objectstore.BlobInfo) error {
		stats.ScannedCount++
		if info.LastModified.After(cutoff) {
			return nil
		}
		batch = append(batch, info.ID)
		if len(batch) >= s.config.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk object store: %w", err)
	}
	return flush()
}

func (s *Sweeper) delete(ctx context.Context, blobID string, stats *Stats) bool {
	if err := s.blobs.Delete(ctx, blobID); err != nil && !errors.Is(err, objectstore.ErrBlobNotFound) {
		stats.FailedCount++
		s.logger.Warn("failed to delete orphaned blob",
			slog.String("blob_id", blobID),
			slog.String("error", err.Error()),
		)
		return false
	}
	stats.DeletedCount++
	return true
}

func (s *Sweeper) forget(ctx context.Context, blobID string) {
	if err := s.catalog.DeleteOrphan(ctx, blobID); err != nil {
		s.logger.Warn("failed to clear orphan record",
			slog.String("blob_id", blobID),
			slog.String("error", err.Error()),
		)
	}
}

// Stats contains statistics from a sweep.
type Stats struct {
	StartTime         time.Time
	EndTime           time.Time
	RecordedCount     uint64 // orphan notes processed
	ScannedCount      uint64 // blobs visited in the store walk
	UnreferencedCount uint64 // blobs past the grace period with no record
	DeletedCount      uint64
	FailedCount       uint64
	SessionsPruned    uint64
}

// Duration returns the sweep duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the sweep.
func (s *Stats) Summary() string {
	return fmt.Sprintf("recorded=%d scanned=%d unreferenced=%d deleted=%d failed=%d sessions_pruned=%d duration=%s",
		s.RecordedCount, s.ScannedCount, s.UnreferencedCount,
		s.DeletedCount, s.FailedCount, s.SessionsPruned, s.Duration())
}
