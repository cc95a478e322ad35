package image

import (
	"context"
	"time"

	"imagehost/internal/domain"
	"imagehost/internal/expiry"
)

type ImageStore interface {
	Create(ctx context.Context, img *domain.Image) error
	GetByID(ctx context.Context, id string) (*domain.Image, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	ListByIDs(ctx context.Context, ids []string, ownerID int64) ([]domain.Image, error)
	MoveToAlbum(ctx context.Context, ids []string, albumID string, clearExpiry bool) (int64, error)
}

type AlbumStore interface {
	Create(ctx context.Context, a *domain.Album) error
	GetByID(ctx context.Context, id string) (*domain.Album, error)
}

// Opener starts on-open countdowns.
type Opener interface {
	Trigger(ctx context.Context, id string, viewerID int64) (*expiry.OpenResult, error)
}

// Sweeper runs one reconciliation pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (*expiry.Result, error)
}

type clock func() time.Time
