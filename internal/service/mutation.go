package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/repository"
)

const (
	maxNameLength   = 255
	maxShareEntries = 100
)

var validate = validator.New()

// Rename sets a file's name to "<base>.<extension>". The blob is untouched.
func (s *FileService) Rename(ctx context.Context, caller *model.User, fileID, base, extension string) (*model.File, error) {
	base = strings.TrimSpace(base)
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	name := model.JoinName(base, extension)
	if base == "" || len(name) > maxNameLength || strings.ContainsAny(name, "/\\\x00") {
		return nil, fmt.Errorf("%w: invalid file name", ErrInvalidInput)
	}

	f, err := s.ownedFile(ctx, caller, fileID)
	if err != nil {
		return nil, err
	}

	updated, err := s.files.RenameFile(ctx, f.ID, caller.ID, name, s.now())
	if err != nil {
		return nil, s.mutationError("rename", err)
	}

	s.invalidate(ctx, f.Audience(caller.Email)...)
	return updated, nil
}

// UpdateSharing replaces a file's share list with emails.
func (s *FileService) UpdateSharing(ctx context.Context, caller *model.User, fileID string, emails []string) (*model.File, error) {
	normalized, err := NormalizeEmails(emails)
	if err != nil {
		return nil, err
	}

	f, err := s.ownedFile(ctx, caller, fileID)
	if err != nil {
		return nil, err
	}

	updated, err := s.files.UpdateSharing(ctx, f.ID, caller.ID, normalized, s.now())
	if err != nil {
		return nil, s.mutationError("update sharing", err)
	}

	// Both the old and the new audience may hold a stale listing.
	s.invalidate(ctx, append(f.Audience(caller.Email), normalized...)...)
	return updated, nil
}

// NormalizeEmails lower-cases, validates and de-duplicates a share list, keeping first-seen order.
func NormalizeEmails(emails []string) ([]string, error) {
	if len(emails) > maxShareEntries {
		return nil, fmt.Errorf("%w: at most %d emails", ErrInvalidInput, maxShareEntries)
	}
	out := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if err := validate.Var(e, "email"); err != nil {
			return nil, fmt.Errorf("%w: %q is not an email address", ErrInvalidInput, e)
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func (s *FileService) mutationError(op string, err error) error {
	// The conditional update lost a race with a delete.
	if errors.Is(err, repository.ErrFileNotFound) {
		return ErrFileNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreWrite, op, err)
}
