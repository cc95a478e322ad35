package domain

import "errors"

var (
	ErrNotFound         = errors.New("not_found")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation error")
	ErrDuplicatePath    = errors.New("storage path already in use")
	ErrStoreUnavailable = errors.New("store unavailable")
)
