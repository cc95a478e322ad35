package repository

import (
	"context"
	"time"

	"imagehost/internal/domain"

	"gorm.io/gorm"
)

// ImageRepository provides DB access for images and their expiry fields.
type ImageRepository struct {
	db *gorm.DB
}

func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) Create(ctx context.Context, img *domain.Image) error {
	return translate("create image", r.db.WithContext(ctx).Create(img).Error)
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	var img domain.Image
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&img).Error; err != nil {
		return nil, translate("get image", err)
	}
	return &img, nil
}

// ArmOpen commits the on-open countdown. It only succeeds while opened_at is
// still NULL, so of two concurrent first opens exactly one reports true.
func (r *ImageRepository) ArmOpen(ctx context.Context, id string, openedAt, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Image{}).
		Where("id = ? AND expires_on_open = ? AND opened_at IS NULL", id, true).
		Updates(map[string]any{
			"opened_at":  openedAt.UTC(),
			"expires_at": expiresAt.UTC(),
		})
	if res.Error != nil {
		return false, translate("arm open", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListExpired returns up to limit images whose deadline is before t, oldest first.
func (r *ImageRepository) ListExpired(ctx context.Context, t time.Time, limit int) ([]domain.Image, error) {
	var out []domain.Image
	err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", t.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate("list expired", err)
	}
	return out, nil
}

// ListScheduled returns images whose deadline is still ahead of t, at most
// limit when limit is positive.
func (r *ImageRepository) ListScheduled(ctx context.Context, t time.Time, limit int) ([]domain.Image, error) {
	var out []domain.Image
	q := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at >= ?", t.UTC()).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	if err != nil {
		return nil, translate("list scheduled", err)
	}
	return out, nil
}

// DeleteMany removes the given ids in one statement.
func (r *ImageRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Image{})
	if res.Error != nil {
		return 0, translate("delete images", res.Error)
	}
	return res.RowsAffected, nil
}

// ListByIDs returns the images among ids owned by ownerID.
func (r *ImageRepository) ListByIDs(ctx context.Context, ids []string, ownerID int64) ([]domain.Image, error) {
	var out []domain.Image
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ? AND owner_id = ?", ids, ownerID).
		Find(&out).Error
	if err != nil {
		return nil, translate("list images", err)
	}
	return out, nil
}

// MoveToAlbum reassigns images to albumID. With clearExpiry both expiry
// fields are nulled, which is the only path that removes a deadline.
func (r *ImageRepository) MoveToAlbum(ctx context.Context, ids []string, albumID string, clearExpiry bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updates := map[string]any{"album_id": albumID}
	if clearExpiry {
		updates["expires_at"] = nil
		updates["expires_on_open"] = false
	}
	res := r.db.WithContext(ctx).Model(&domain.Image{}).
		Where("id IN ?", ids).
		Updates(updates)
	if res.Error != nil {
		return 0, translate("move images", res.Error)
	}
	return res.RowsAffected, nil
}
