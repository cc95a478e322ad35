package image

import "errors"

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidMimeType = errors.New("file type not allowed")
	ErrExpired         = errors.New("image has expired")
)
