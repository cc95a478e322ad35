package expiry

import (
	"context"
	"time"

	"imagehost/internal/domain"
)

// ScheduledLister lists images whose deadline is still ahead.
type ScheduledLister interface {
	ListScheduled(ctx context.Context, t time.Time, limit int) ([]domain.Image, error)
}

// Rearm arms a timer for every image expiring after now, up to limit (zero
// means no limit). Timers do not survive restarts; the sweeper deletes
// regardless, this only restores early expired notifications.
func Rearm(ctx context.Context, lister ScheduledLister, timers Timers, now time.Time, limit int) (int, error) {
	imgs, err := lister.ListScheduled(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	for i := range imgs {
		timers.Schedule(imgs[i].ID, imgs[i].ExpiresAt)
	}
	return len(imgs), nil
}
