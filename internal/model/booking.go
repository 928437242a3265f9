package model

import "time"

// BookingRecord is a booking made through this daemon.
type BookingRecord struct {
	ID           string   `gorm:"primaryKey;size:36"` // uuid
	PlatformID   string   `gorm:"uniqueIndex;size:64;not null"`
	CourtID      string   `gorm:"index;size:64;not null"`
	Day          string   `gorm:"index;size:10;not null"`
	Start        string   `gorm:"size:5;not null"`
	End          string   `gorm:"size:5;not null"`
	Purpose      string   `gorm:"size:256"`
	Category     string   `gorm:"size:64"`
	Participants []string `gorm:"serializer:json"`
	Status       string   `gorm:"size:16;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
