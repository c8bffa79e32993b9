package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stowbox/stowbox/internal/access"
	"github.com/stowbox/stowbox/internal/auth"
	"github.com/stowbox/stowbox/internal/handler/dto"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/repository"
	"github.com/stowbox/stowbox/internal/service"
)

// FileService is the file surface used by FileHandler.
type FileService interface {
	List(ctx context.Context, caller *model.User, opts access.Options) (*repository.FilePage, error)
	UploadBatch(ctx context.Context, owner *model.User, inputs []service.UploadInput) []service.UploadResult
	Delete(ctx context.Context, caller *model.User, fileID string) error
	Rename(ctx context.Context, caller *model.User, fileID, base, extension string) (*model.File, error)
	UpdateSharing(ctx context.Context, caller *model.User, fileID string, emails []string) (*model.File, error)
	Usage(ctx context.Context, caller *model.User) (*model.UsageReport, error)
}

// UploadLimits bound a multipart upload request.
type UploadLimits struct {
	// MaxFileSize is the per-file ceiling, enforced by the service per part.
	MaxFileSize int64
	// MaxFiles caps the number of parts in one request.
	MaxFiles int
	// MemoryBytes is how much of the form is held in memory before spooling to disk.
	MemoryBytes int64
}

// maxListLimit caps a single listing page.
const maxListLimit = 500

// FileHandler handles HTTP requests for file operations.
type FileHandler struct {
	files  FileService
	limits UploadLimits
	logger *slog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(files FileService, limits UploadLimits, logger *slog.Logger) *FileHandler {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = 20
	}
	if limits.MemoryBytes <= 0 {
		limits.MemoryBytes = 32 << 20
	}
	return &FileHandler{files: files, limits: limits, logger: logger}
}

// List handles GET /api/v1/files.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	query := r.URL.Query()

	opts := access.Options{
		Types:      access.ParseTypes(query.Get("types")),
		SearchText: strings.TrimSpace(query.Get("q")),
		Sort:       query.Get("sort"),
	}
	if l := query.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		opts.Limit = min(n, maxListLimit)
	}

	page, err := h.files.List(r.Context(), caller, opts)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToFileListResponse(page.Files, page.Total))
}

// Upload handles POST /api/v1/files. Each "file" part is stored independently;
// the response lists one result per part in request order.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())

	// Parts over the ceiling are still accepted into the form so they can be
	// rejected individually; the body cap only stops runaway requests.
	bodyLimit := h.limits.MaxFileSize*int64(h.limits.MaxFiles) + (1 << 20)
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)

	if err := r.ParseMultipartForm(h.limits.MemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "upload request too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_MULTIPART", "expected a multipart form with file parts")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "NO_FILES", "no file parts in request")
		return
	}
	if len(headers) > h.limits.MaxFiles {
		writeError(w, http.StatusBadRequest, "TOO_MANY_FILES", "too many files in one request")
		return
	}

	inputs := make([]service.UploadInput, len(headers))
	for i, fh := range headers {
		inputs[i] = service.UploadInput{
			Name:    fh.Filename,
			Size:    fh.Size,
			Content: &lazyPart{header: fh},
		}
	}
	defer func() {
		for _, in := range inputs {
			in.Content.(*lazyPart).Close()
		}
	}()

	results := h.files.UploadBatch(r.Context(), caller, inputs)

	status := http.StatusCreated
	committed := 0
	for _, res := range results {
		if res.Err == nil {
			committed++
		}
	}
	if committed == 0 {
		status, _ = describeError(results[0].Err)
	}

	h.logger.InfoContext(r.Context(), "upload_batch",
		slog.String("user_id", caller.ID),
		slog.Int("files", len(results)),
		slog.Int("committed", committed),
	)

	writeJSON(w, status, dto.ToUploadResponse(results, func(err error) dto.ErrorResponse {
		_, body := describeError(err)
		return body
	}))
}

// Delete handles DELETE /api/v1/files/{id}.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.files.Delete(r.Context(), caller, id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "file_deleted",
		slog.String("user_id", caller.ID),
		slog.String("file_id", id),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Rename handles PATCH /api/v1/files/{id}/name.
func (h *FileHandler) Rename(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())

	var req dto.RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	file, err := h.files.Rename(r.Context(), caller, chi.URLParam(r, "id"), req.Name, req.Extension)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToFileResponse(file))
}

// Share handles PUT /api/v1/files/{id}/shares.
func (h *FileHandler) Share(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())

	var req dto.ShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	file, err := h.files.UpdateSharing(r.Context(), caller, chi.URLParam(r, "id"), req.Emails)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "file_shared",
		slog.String("user_id", caller.ID),
		slog.String("file_id", file.ID),
		slog.Int("recipients", len(file.SharedWith)),
	)
	writeJSON(w, http.StatusOK, dto.ToFileResponse(file))
}

// Usage handles GET /api/v1/usage.
func (h *FileHandler) Usage(w http.ResponseWriter, r *http.Request) {
	report, err := h.files.Usage(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUsageResponse(report))
}

// lazyPart opens a spooled multipart file on first read, so rejected parts
// are never opened.
type lazyPart struct {
	header *multipart.FileHeader
	file   multipart.File
	err    error
}

func (p *lazyPart) Read(b []byte) (int, error) {
	if p.file == nil && p.err == nil {
		p.file, p.err = p.header.Open()
	}
	if p.err != nil {
		return 0, p.err
	}
	return p.file.Read(b)
}

// Close releases the part if it was opened.
func (p *lazyPart) Close() {
	if p.file != nil {
		_ = p.file.Close()
	}
}
