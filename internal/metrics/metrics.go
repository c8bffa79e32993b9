// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Transaction outcomes reported by IncUpload and IncDelete.
const (
	OutcomeCommitted   = "committed"
	OutcomeFailed      = "failed"
	OutcomeCompensated = "compensated"
	OutcomeOrphaned    = "orphaned"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Listing cache
	IncListingCacheHit()
	IncListingCacheMiss()

	// File transactions
	IncUpload(outcome string)
	IncDelete(outcome string)
	IncUploadRejected()
	ObserveUploadDuration(duration time.Duration)
	AddBytesStored(delta int64)

	// Identity
	IncOTPIssued()
	IncOTPVerified(result string) // result: "ok", "invalid", "expired"
	IncRateLimited(scope string)  // scope: "email" or "ip"
	IncSession(event string)      // event: "created" or "terminated"

	// Orphan sweeper
	ObserveSweep(removed int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
