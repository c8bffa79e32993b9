package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ListingCacheHits      uint64
	ListingCacheMisses    uint64
	Uploads               map[string]uint64
	Deletes               map[string]uint64
	UploadsRejected       uint64
	UploadDurationCount   uint64
	UploadDurationTotalNs int64
	BytesStored           int64
	OTPIssued             uint64
	OTPVerified           map[string]uint64
	RateLimited           map[string]uint64
	Sessions              map[string]uint64
	Sweeps                uint64
	BlobsSwept            uint64
}

// InMemoryRecorder stores metrics in memory for tests and the /metrics endpoint.
type InMemoryRecorder struct {
	listingCacheHits      uint64
	listingCacheMisses    uint64
	uploadsRejected       uint64
	uploadDurationCount   uint64
	uploadDurationTotalNs int64
	bytesStored           int64
	otpIssued             uint64
	sweeps                uint64
	blobsSwept            uint64

	mu          sync.Mutex
	uploads     map[string]uint64
	deletes     map[string]uint64
	otpVerified map[string]uint64
	rateLimited map[string]uint64
	sessions    map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		uploads:     make(map[string]uint64),
		deletes:     make(map[string]uint64),
		otpVerified: make(map[string]uint64),
		rateLimited: make(map[string]uint64),
		sessions:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		ListingCacheHits:      atomic.LoadUint64(&m.listingCacheHits),
		ListingCacheMisses:    atomic.LoadUint64(&m.listingCacheMisses),
		Uploads:               copyCounts(m.uploads),
		Deletes:               copyCounts(m.deletes),
		UploadsRejected:       atomic.LoadUint64(&m.uploadsRejected),
		UploadDurationCount:   atomic.LoadUint64(&m.uploadDurationCount),
		UploadDurationTotalNs: atomic.LoadInt64(&m.uploadDurationTotalNs),
		BytesStored:           atomic.LoadInt64(&m.bytesStored),
		OTPIssued:             atomic.LoadUint64(&m.otpIssued),
		OTPVerified:           copyCounts(m.otpVerified),
		RateLimited:           copyCounts(m.rateLimited),
		Sessions:              copyCounts(m.sessions),
		Sweeps:                atomic.LoadUint64(&m.sweeps),
		BlobsSwept:            atomic.LoadUint64(&m.blobsSwept),
	}
}

// IncListingCacheHit increments the listing cache hit counter.
func (m *InMemoryRecorder) IncListingCacheHit() {
	atomic.AddUint64(&m.listingCacheHits, 1)
}

// IncListingCacheMiss increments the listing cache miss counter.
func (m *InMemoryRecorder) IncListingCacheMiss() {
	atomic.AddUint64(&m.listingCacheMisses, 1)
}

// IncUpload counts a finished upload transaction by outcome.
func (m *InMemoryRecorder) IncUpload(outcome string) {
	m.inc(m.uploads, outcome)
}

// IncDelete counts a finished delete transaction by outcome.
func (m *InMemoryRecorder) IncDelete(outcome string) {
	m.inc(m.deletes, outcome)
}

// IncUploadRejected counts a file refused by the size ceiling.
func (m *InMemoryRecorder) IncUploadRejected() {
	atomic.AddUint64(&m.uploadsRejected, 1)
}

// ObserveUploadDuration records upload duration.
func (m *InMemoryRecorder) ObserveUploadDuration(duration time.Duration) {
	atomic.AddUint64(&m.uploadDurationCount, 1)
	atomic.AddInt64(&m.uploadDurationTotalNs, duration.Nanoseconds())
}

// AddBytesStored adjusts the stored bytes gauge.
func (m *InMemoryRecorder) AddBytesStored(delta int64) {
	atomic.AddInt64(&m.bytesStored, delta)
}

// IncOTPIssued increments the issued code counter.
func (m *InMemoryRecorder) IncOTPIssued() {
	atomic.AddUint64(&m.otpIssued, 1)
}

// IncOTPVerified counts a verification attempt by result.
func (m *InMemoryRecorder) IncOTPVerified(result string) {
	m.inc(m.otpVerified, result)
}

// IncRateLimited counts a rejected request by limiter scope.
func (m *InMemoryRecorder) IncRateLimited(scope string) {
	m.inc(m.rateLimited, scope)
}

// IncSession counts session lifecycle events.
func (m *InMemoryRecorder) IncSession(event string) {
	m.inc(m.sessions, event)
}

// ObserveSweep records one sweeper pass.
func (m *InMemoryRecorder) ObserveSweep(removed int, _ time.Duration) {
	atomic.AddUint64(&m.sweeps, 1)
	if removed > 0 {
		atomic.AddUint64(&m.blobsSwept, uint64(removed))
	}
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
