package model

import "time"

// CategoryUsage is the usage of one file category.
type CategoryUsage struct {
	TotalBytes   int64      `json:"total_bytes"`
	LatestUpdate *time.Time `json:"latest_update,omitempty"`
}

// UsageReport is a read-time projection of an owner's storage usage.
type UsageReport struct {
	Categories     map[FileType]CategoryUsage `json:"categories"`
	UsedBytes      int64                      `json:"used_bytes"`
	CapacityBytes  int64                      `json:"capacity_bytes"`
	AvailableBytes int64                      `json:"available_bytes"`
}

// OrphanReason explains why a blob lost its metadata.
type OrphanReason string

const (
	OrphanCompensationFailed OrphanReason = "compensation_failed"
	OrphanDeleteLeaked       OrphanReason = "delete_leaked"
)

// OrphanedBlob records a blob that exists without a metadata record.
type OrphanedBlob struct {
	BlobID     string       `json:"blob_id"`
	Reason     OrphanReason `json:"reason"`
	RecordedAt time.Time    `json:"recorded_at"`
}
