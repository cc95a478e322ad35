// Package blob stores uploaded image bytes keyed by storage path.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the object storage used for image payloads.
type Store interface {
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	// DeleteMany removes paths. Missing objects are not an error. When only
	// some paths fail the returned error is a *DeleteError naming them.
	DeleteMany(ctx context.Context, paths []string) error
	URL(path string) string
}

// DeleteError reports the paths of a batch that could not be deleted.
type DeleteError struct {
	Failed []string
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %d object(s): %v", len(e.Failed), e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// NewStoragePath returns a unique date-partitioned key for a new upload.
func NewStoragePath(ext string) string {
	d := time.Now().UTC()
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	return fmt.Sprintf("%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), name)
}
