package expiry

import (
	"fmt"
	"strings"
)

// PartialStorageFailure lists blob paths left behind after their metadata was
// deleted. The images are gone for users; the blobs are orphans.
type PartialStorageFailure struct {
	Paths []string
}

func (e *PartialStorageFailure) Error() string {
	return fmt.Sprintf("failed to delete %d blob(s): %s", len(e.Paths), strings.Join(e.Paths, ", "))
}
