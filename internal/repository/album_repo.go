package repository

import (
	"context"

	"imagehost/internal/domain"

	"gorm.io/gorm"
)

type AlbumRepository struct {
	db *gorm.DB
}

func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

func (r *AlbumRepository) Create(ctx context.Context, a *domain.Album) error {
	return translate("create album", r.db.WithContext(ctx).Create(a).Error)
}

func (r *AlbumRepository) GetByID(ctx context.Context, id string) (*domain.Album, error) {
	var a domain.Album
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate("get album", err)
	}
	return &a, nil
}
