package model

import (
	"reflect"
	"testing"
	"time"
)

func TestClassifyName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantType FileType
		wantExt  string
	}{
		{"pdf document", "report.pdf", FileTypeDocument, "pdf"},
		{"upper case extension", "PHOTO.JPG", FileTypeImage, "jpg"},
		{"video", "clip.final.mp4", FileTypeVideo, "mp4"},
		{"audio", "song.flac", FileTypeAudio, "flac"},
		{"unknown extension", "archive.zip", FileTypeOther, "zip"},
		{"no extension", "Makefile", FileTypeOther, ""},
		{"trailing dot", "weird.", FileTypeOther, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotType, gotExt := ClassifyName(tt.input)
			if gotType != tt.wantType {
				t.Errorf("ClassifyName(%q) type = %s, want %s", tt.input, gotType, tt.wantType)
			}
			if gotExt != tt.wantExt {
				t.Errorf("ClassifyName(%q) ext = %q, want %q", tt.input, gotExt, tt.wantExt)
			}
		})
	}
}

func TestJoinName(t *testing.T) {
	t.Parallel()

	if got := JoinName("report-final", "pdf"); got != "report-final.pdf" {
		t.Errorf("JoinName = %s, want report-final.pdf", got)
	}
	if got := JoinName("report-final", ".pdf"); got != "report-final.pdf" {
		t.Errorf("JoinName with dot = %s, want report-final.pdf", got)
	}
	if got := JoinName("README", ""); got != "README" {
		t.Errorf("JoinName without extension = %s, want README", got)
	}
}

func TestFile_Visibility(t *testing.T) {
	t.Parallel()

	f := &File{OwnerID: "u1", SharedWith: []string{"b@x.com"}}

	if !f.IsOwnedBy("u1") {
		t.Error("expected owner to match")
	}
	if f.IsOwnedBy("") {
		t.Error("empty user id must never own a file")
	}
	if !f.IsSharedWith("B@X.com") {
		t.Error("share match should be case insensitive")
	}
	if f.IsSharedWith("c@x.com") {
		t.Error("unexpected share match")
	}
}

func TestFile_Audience(t *testing.T) {
	t.Parallel()

	f := &File{SharedWith: []string{"b@x.com", "A@x.com", "c@x.com"}}
	got := f.Audience("a@x.com")
	want := []string{"a@x.com", "b@x.com", "c@x.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Audience = %v, want %v", got, want)
	}
}

func TestSession_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	if s.IsExpired(now) {
		t.Error("session should be valid before expiry")
	}
	if !s.IsExpired(now.Add(time.Minute)) {
		t.Error("session should be expired at expiry")
	}
}
