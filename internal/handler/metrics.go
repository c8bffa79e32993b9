package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/stowbox/stowbox/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "stowbox_listing_cache_hits_total %d\n", snap.ListingCacheHits)
	writeMetric(w, "stowbox_listing_cache_misses_total %d\n", snap.ListingCacheMisses)

	writeLabeled(w, "stowbox_uploads_total", "outcome", snap.Uploads)
	writeLabeled(w, "stowbox_deletes_total", "outcome", snap.Deletes)
	writeMetric(w, "stowbox_uploads_rejected_total %d\n", snap.UploadsRejected)
	writeMetric(w, "stowbox_upload_duration_seconds_count %d\n", snap.UploadDurationCount)
	writeMetric(w, "stowbox_upload_duration_seconds_sum %.6f\n", float64(snap.UploadDurationTotalNs)/1e9)
	writeMetric(w, "stowbox_bytes_stored %d\n", snap.BytesStored)

	writeMetric(w, "stowbox_otp_issued_total %d\n", snap.OTPIssued)
	writeLabeled(w, "stowbox_otp_verified_total", "result", snap.OTPVerified)
	writeLabeled(w, "stowbox_rate_limited_total", "scope", snap.RateLimited)
	writeLabeled(w, "stowbox_sessions_total", "event", snap.Sessions)

	writeMetric(w, "stowbox_sweeps_total %d\n", snap.Sweeps)
	writeMetric(w, "stowbox_blobs_swept_total %d\n", snap.BlobsSwept)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// writeLabeled writes one line per label value, sorted for stable output.
func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}
