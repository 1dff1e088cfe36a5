package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type CreationModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Prompt    string `gorm:"not null"`
	Content   string `gorm:"not null"`
	Type      string `gorm:"not null;index"`
	Publish   bool   `gorm:"not null;default:false"`
	Meta      datatypes.JSON
	CreatedAt time.Time `gorm:"not null;index"`
}

func (CreationModel) TableName() string {
	return "creations"
}
