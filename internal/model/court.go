package model

import "time"

// Court is a bookable court as last seen on the platform grid.
type Court struct {
	ID        string   `gorm:"primaryKey;size:64"` // Platform ID
	Name      string   `gorm:"size:256;not null"`
	Category  string   `gorm:"size:64;index"`
	Type      string   `gorm:"size:64"`
	Features  []string `gorm:"serializer:json"`
	Location  string   `gorm:"size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// Associations
	OpenBlocks []OpenBlock `gorm:"foreignKey:CourtID"`
}
