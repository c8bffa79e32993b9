// Package objectstore stores file content as opaque blobs keyed by blob id.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrBlobNotFound is returned when a blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobInfo describes a stored blob.
type BlobInfo struct {
	ID           string
	Size         int64
	LastModified time.Time
}

// Store is a blob backend.
type Store interface {
	// Put writes size bytes from r under blobID. name is used for the content type only.
	Put(ctx context.Context, blobID, name string, r io.Reader, size int64) error
	// Delete removes blobID. Deleting a missing blob is not an error.
	Delete(ctx context.Context, blobID string) error
	// Walk calls fn for every stored blob until fn returns an error.
	Walk(ctx context.Context, fn func(BlobInfo) error) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// URLBuilder derives the public view URL of a blob.
type URLBuilder struct {
	endpoint string
	bucket   string
	project  string
}

// NewURLBuilder returns a URLBuilder for the given public endpoint.
func NewURLBuilder(endpoint, bucket, project string) URLBuilder {
	return URLBuilder{
		endpoint: strings.TrimRight(endpoint, "/"),
		bucket:   bucket,
		project:  project,
	}
}

// ViewURL returns {endpoint}/storage/buckets/{bucket}/files/{id}/view?project={project}.
func (b URLBuilder) ViewURL(blobID string) string {
	return fmt.Sprintf("%s/storage/buckets/%s/files/%s/view?project=%s",
		b.endpoint,
		url.PathEscape(b.bucket),
		url.PathEscape(blobID),
		url.QueryEscape(b.project),
	)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
