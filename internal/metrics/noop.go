package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncListingCacheHit()                 {}
func (n *NoopRecorder) IncListingCacheMiss()                {}
func (n *NoopRecorder) IncUpload(string)                    {}
func (n *NoopRecorder) IncDelete(string)                    {}
func (n *NoopRecorder) IncUploadRejected()                  {}
func (n *NoopRecorder) ObserveUploadDuration(time.Duration) {}
func (n *NoopRecorder) AddBytesStored(int64)                {}
func (n *NoopRecorder) IncOTPIssued()                       {}
func (n *NoopRecorder) IncOTPVerified(string)               {}
func (n *NoopRecorder) IncRateLimited(string)               {}
func (n *NoopRecorder) IncSession(string)                   {}
func (n *NoopRecorder) ObserveSweep(int, time.Duration)     {}
