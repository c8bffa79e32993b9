// Package service provides business logic for the application.
package service

import "errors"

// Service errors. Store failures wrap ErrStoreWrite or ErrStoreRead together with their cause.
var (
	ErrDelivery     = errors.New("code could not be delivered")
	ErrInvalidCode  = errors.New("invalid or expired code")
	ErrNoSession    = errors.New("no session")
	ErrUserNotFound = errors.New("user not found")
	ErrStoreWrite   = errors.New("store write failed")
	ErrStoreRead    = errors.New("store read failed")
	ErrFileTooLarge = errors.New("file exceeds size limit")
	ErrOrphanedBlob = errors.New("orphaned blob")
	ErrFileNotFound = errors.New("file not found")
	ErrForbidden    = errors.New("not the file owner")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("too many requests")
)
