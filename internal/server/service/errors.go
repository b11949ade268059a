package service

import (
	"errors"
	"os"

	"nexusdrive/internal/server/database"
	"nexusdrive/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrInvalidPath        = errors.New("invalid path")
	ErrInvalidName        = errors.New("invalid name")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrSlugConflict       = errors.New("slug already in use")
	ErrInvalidSlug        = errors.New("invalid slug")
	ErrInvalidSize        = errors.New("invalid size")
	ErrExpired            = errors.New("share link has expired")
	ErrFileMissing        = errors.New("shared file has been moved or deleted")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// translateStorageError maps storage sentinels onto service sentinels.
// Anything unrecognized is returned unchanged.
func translateStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrInvalidPath):
		return ErrInvalidPath
	case errors.Is(err, storage.ErrInvalidName):
		return ErrInvalidName
	case errors.Is(err, storage.ErrNotExist), errors.Is(err, storage.ErrNotDir):
		return ErrNotFound
	case errors.Is(err, storage.ErrExist):
		return ErrAlreadyExists
	case errors.Is(err, os.ErrPermission):
		return ErrPermissionDenied
	default:
		return err
	}
}

func translateShareError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrShareNotFound):
		return ErrNotFound
	case errors.Is(err, database.ErrSlugTaken):
		return ErrSlugConflict
	default:
		return err
	}
}
