package image

import (
	"mime/multipart"
	"time"

	"imagehost/internal/domain"
)

// UploadInput is a parsed multipart upload.
type UploadInput struct {
	OwnerID int64 // 0 for guests
	AlbumID string
	Expiry  string
	File    *multipart.FileHeader
}

type MoveRequest struct {
	ImageIDs []string `json:"image_ids" validate:"required,min=1,max=500,dive,uuid"`
	AlbumID  string   `json:"album_id" validate:"required,uuid"`
}

type CreateAlbumRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	IsPublic bool   `json:"is_public"`
}

type ImageResponse struct {
	ID            string     `json:"id"`
	AlbumID       *string    `json:"album_id,omitempty"`
	OriginalName  string     `json:"original_name"`
	MimeType      string     `json:"mime_type"`
	FileSize      int64      `json:"file_size"`
	PublicURL     string     `json:"public_url"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ExpiresOnOpen bool       `json:"expires_on_open"`
	OpenedAt      *time.Time `json:"opened_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toResponse(img *domain.Image) ImageResponse {
	return ImageResponse{
		ID:            img.ID,
		AlbumID:       img.AlbumID,
		OriginalName:  img.OriginalName,
		MimeType:      img.MimeType,
		FileSize:      img.FileSize,
		PublicURL:     img.PublicURL,
		ExpiresAt:     img.ExpiresAt,
		ExpiresOnOpen: img.ExpiresOnOpen,
		OpenedAt:      img.OpenedAt,
		CreatedAt:     img.CreatedAt,
	}
}

type DeleteResponse struct {
	Deleted         bool     `json:"deleted"`
	StorageFailures []string `json:"storageFailures"`
}

type MoveResponse struct {
	Moved         int64 `json:"moved"`
	ExpiryCleared bool  `json:"expiry_cleared"`
}
