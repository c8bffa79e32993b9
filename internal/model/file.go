package model

import (
	"path"
	"strings"
	"time"
)

// FileType is the category a file is classified into.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeDocument FileType = "document"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeOther    FileType = "other"
)

// FileTypes lists every category in display order.
var FileTypes = []FileType{
	FileTypeDocument,
	FileTypeImage,
	FileTypeVideo,
	FileTypeAudio,
	FileTypeOther,
}

// IsValid reports whether t is a known category.
func (t FileType) IsValid() bool {
	switch t {
	case FileTypeImage, FileTypeDocument, FileTypeVideo, FileTypeAudio, FileTypeOther:
		return true
	}
	return false
}

var extensionTypes = map[string]FileType{
	// documents
	"pdf": FileTypeDocument, "doc": FileTypeDocument, "docx": FileTypeDocument,
	"txt": FileTypeDocument, "xls": FileTypeDocument, "xlsx": FileTypeDocument,
	"csv": FileTypeDocument, "rtf": FileTypeDocument, "ods": FileTypeDocument,
	"ppt": FileTypeDocument, "odp": FileTypeDocument, "md": FileTypeDocument,
	"html": FileTypeDocument, "htm": FileTypeDocument, "epub": FileTypeDocument,
	"pages": FileTypeDocument, "fig": FileTypeDocument, "psd": FileTypeDocument,
	"ai": FileTypeDocument, "indd": FileTypeDocument, "xd": FileTypeDocument,
	"sketch": FileTypeDocument, "afdesign": FileTypeDocument, "afphoto": FileTypeDocument,

	// images
	"jpg": FileTypeImage, "jpeg": FileTypeImage, "png": FileTypeImage,
	"gif": FileTypeImage, "bmp": FileTypeImage, "svg": FileTypeImage,
	"webp": FileTypeImage,

	// video
	"mp4": FileTypeVideo, "avi": FileTypeVideo, "mov": FileTypeVideo,
	"mkv": FileTypeVideo, "webm": FileTypeVideo,

	// audio
	"mp3": FileTypeAudio, "wav": FileTypeAudio, "ogg": FileTypeAudio,
	"flac": FileTypeAudio,
}

// ClassifyName splits a stored file name into its category and lower-cased
// extension. Names without an extension classify as other.
func ClassifyName(name string) (FileType, string) {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	ext = strings.ToLower(ext)
	if ext == "" {
		return FileTypeOther, ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t, ext
	}
	return FileTypeOther, ext
}

// JoinName builds "<base>.<extension>", omitting the dot for an empty extension.
func JoinName(base, extension string) string {
	extension = strings.TrimPrefix(extension, ".")
	if extension == "" {
		return base
	}
	return base + "." + extension
}

// File is the metadata record for an uploaded blob.
type File struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           FileType  `json:"type"`
	Extension      string    `json:"extension"`
	SizeBytes      int64     `json:"size_bytes"`
	URL            string    `json:"url"`
	OwnerID        string    `json:"owner_id"`
	AccountID      string    `json:"account_id"`
	SharedWith     []string  `json:"shared_with"`
	BucketObjectID string    `json:"bucket_object_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether userID created the file.
func (f *File) IsOwnedBy(userID string) bool {
	return userID != "" && f.OwnerID == userID
}

// IsSharedWith reports whether email is in the share list.
func (f *File) IsSharedWith(email string) bool {
	if email == "" {
		return false
	}
	for _, e := range f.SharedWith {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// Audience returns the owner email plus every shared email, de-duplicated.
func (f *File) Audience(ownerEmail string) []string {
	seen := make(map[string]struct{}, len(f.SharedWith)+1)
	out := make([]string, 0, len(f.SharedWith)+1)
	for _, e := range append([]string{ownerEmail}, f.SharedWith...) {
		e = strings.ToLower(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
