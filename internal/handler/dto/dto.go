// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/stowbox/stowbox/internal/gc"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/service"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RegisterRequest is the body of POST /api/v1/auth/register.
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// EmailRequest is the body of the sign-in and resend endpoints.
type EmailRequest struct {
	Email string `json:"email"`
}

// VerifyRequest is the body of POST /api/v1/auth/verify.
type VerifyRequest struct {
	AccountID string `json:"accountId"`
	Code      string `json:"code"`
}

// AccountResponse carries the correlation id the client verifies against.
type AccountResponse struct {
	AccountID string `json:"accountId"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionResponse is returned after a successful verification.
type SessionResponse struct {
	User      UserResponse `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// ToUserResponse converts a model.User.
func ToUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		AccountID: u.AccountID,
		FullName:  u.FullName,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// RenameRequest is the body of PATCH /api/v1/files/{id}/name.
type RenameRequest struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

// ShareRequest is the body of PUT /api/v1/files/{id}/shares.
type ShareRequest struct {
	Emails []string `json:"emails"`
}

// FileResponse represents a file in API responses.
type FileResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Extension  string    `json:"extension"`
	SizeBytes  int64     `json:"size"`
	URL        string    `json:"url"`
	OwnerID    string    `json:"ownerId"`
	SharedWith []string  `json:"sharedWith"`
	BlobID     string    `json:"bucketObjectId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ToFileResponse converts a model.File.
func ToFileResponse(f *model.File) FileResponse {
	shared := f.SharedWith
	if shared == nil {
		shared = []string{}
	}
	return FileResponse{
		ID:         f.ID,
		Name:       f.Name,
		Type:       string(f.Type),
		Extension:  f.Extension,
		SizeBytes:  f.SizeBytes,
		URL:        f.URL,
		OwnerID:    f.OwnerID,
		SharedWith: shared,
		BlobID:     f.BucketObjectID,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// FileListResponse is a page of visible files.
type FileListResponse struct {
	Files []FileResponse `json:"files"`
	Total int            `json:"total"`
}

// ToFileListResponse converts listed files.
func ToFileListResponse(files []*model.File, total int) FileListResponse {
	out := make([]FileResponse, len(files))
	for i, f := range files {
		out[i] = ToFileResponse(f)
	}
	return FileListResponse{Files: out, Total: total}
}

// UploadItem is the outcome for one uploaded part.
type UploadItem struct {
	Name  string         `json:"name"`
	File  *FileResponse  `json:"file,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// UploadResponse lists per-file upload outcomes in request order.
type UploadResponse struct {
	Results []UploadItem `json:"results"`
}

// CategoryUsageResponse is one category of a usage report.
type CategoryUsageResponse struct {
	Size         int64      `json:"size"`
	LatestUpdate *time.Time `json:"latestDate"`
}

// UsageResponse is the caller's storage summary.
type UsageResponse struct {
	Document  CategoryUsageResponse `json:"document"`
	Image     CategoryUsageResponse `json:"image"`
	Video     CategoryUsageResponse `json:"video"`
	Audio     CategoryUsageResponse `json:"audio"`
	Other     CategoryUsageResponse `json:"other"`
	Used      int64                 `json:"used"`
	All       int64                 `json:"all"`
	Available int64                 `json:"available"`
}

// ToUsageResponse converts a usage report.
func ToUsageResponse(r *model.UsageReport) UsageResponse {
	cat := func(t model.FileType) CategoryUsageResponse {
		c := r.Categories[t]
		return CategoryUsageResponse{Size: c.TotalBytes, LatestUpdate: c.LatestUpdate}
	}
	return UsageResponse{
		Document:  cat(model.FileTypeDocument),
		Image:     cat(model.FileTypeImage),
		Video:     cat(model.FileTypeVideo),
		Audio:     cat(model.FileTypeAudio),
		Other:     cat(model.FileTypeOther),
		Used:      r.UsedBytes,
		All:       r.CapacityBytes,
		Available: r.AvailableBytes,
	}
}

// SweepResponse reports a manual sweeper run.
type SweepResponse struct {
	Recorded       uint64 `json:"recorded"`
	Scanned        uint64 `json:"scanned"`
	Unreferenced   uint64 `json:"unreferenced"`
	Deleted        uint64 `json:"deleted"`
	Failed         uint64 `json:"failed"`
	SessionsPruned uint64 `json:"sessionsPruned"`
	DurationMs     int64  `json:"durationMs"`
}

// ToSweepResponse converts sweeper stats.
func ToSweepResponse(s *gc.Stats) SweepResponse {
	return SweepResponse{
		Recorded:       s.RecordedCount,
		Scanned:        s.ScannedCount,
		Unreferenced:   s.UnreferencedCount,
		Deleted:        s.DeletedCount,
		Failed:         s.FailedCount,
		SessionsPruned: s.SessionsPruned,
		DurationMs:     s.Duration().Milliseconds(),
	}
}

// ToUploadResponse converts batch results. Per-file errors use the same codes as request errors.
func ToUploadResponse(results []service.UploadResult, describe func(error) ErrorResponse) UploadResponse {
	out := make([]UploadItem, len(results))
	for i, r := range results {
		item := UploadItem{Name: r.Name}
		if r.Err != nil {
			e := describe(r.Err)
			item.Error = &e
		} else if r.File != nil {
			f := ToFileResponse(r.File)
			item.File = &f
		}
		out[i] = item
	}
	return UploadResponse{Results: out}
}
