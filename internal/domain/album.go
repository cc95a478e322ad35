package domain

import "time"

// Album groups images. Images in a private album never expire and cannot be shared.
type Album struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	OwnerID   int64     `json:"owner_id" gorm:"column:owner_id;not null;index"`
	Name      string    `json:"name" gorm:"column:name"`
	IsPublic  bool      `json:"is_public" gorm:"column:is_public;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Album) TableName() string { return "albums" }
