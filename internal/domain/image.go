package domain

import "time"

// Image is a stored, shareable resource. ExpiresAt == nil means no fixed
// deadline; with ExpiresOnOpen set it stays nil until the first external open.
type Image struct {
	ID            string     `json:"id" gorm:"column:id;primaryKey"`
	AlbumID       *string    `json:"album_id,omitempty" gorm:"column:album_id;index"`
	OwnerID       *int64     `json:"owner_id,omitempty" gorm:"column:owner_id;index"`
	Filename      string     `json:"filename" gorm:"column:filename"`
	OriginalName  string     `json:"original_name" gorm:"column:original_name"`
	FileSize      int64      `json:"file_size" gorm:"column:file_size"`
	MimeType      string     `json:"mime_type" gorm:"column:mime_type"`
	StoragePath   string     `json:"-" gorm:"column:storage_path;not null;uniqueIndex"`
	PublicURL     string     `json:"public_url" gorm:"column:public_url"`
	ExpiresAt     *time.Time `json:"expires_at" gorm:"column:expires_at;index"`
	ExpiresOnOpen bool       `json:"expires_on_open" gorm:"column:expires_on_open;not null;default:false"`
	OpenedAt      *time.Time `json:"opened_at" gorm:"column:opened_at"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at"`
}

func (Image) TableName() string { return "images" }

// IsGuest reports whether the image was uploaded without an account.
func (i *Image) IsGuest() bool { return i.OwnerID == nil }

// IsOwnedBy reports whether userID created the image.
func (i *Image) IsOwnedBy(userID int64) bool {
	return i.OwnerID != nil && userID != 0 && *i.OwnerID == userID
}

// IsExpired reports whether the deletion deadline has passed at now.
func (i *Image) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// AwaitingOpen reports whether the on-open countdown has not started yet.
func (i *Image) AwaitingOpen() bool {
	return i.ExpiresOnOpen && i.OpenedAt == nil
}
