package model

import "time"

// OpenBlock is a block that is currently bookable (hot table). ID is derived from court, day
// and start time so the same block keeps its ID across scans.
type OpenBlock struct {
	ID          string    `gorm:"primaryKey;size:128"`
	CourtID     string    `gorm:"index;size:64;not null"`
	Day         string    `gorm:"index;size:10;not null"` // 2006-01-02 in the club's time zone
	Start       string    `gorm:"size:5;not null"`        // 15:04
	End         string    `gorm:"size:5;not null"`
	FirstSeenAt time.Time `gorm:"not null"`
}

// BlockHistory records a block that was open and then disappeared (cold table).
type BlockHistory struct {
	ID       int64     `gorm:"primaryKey"`
	BlockID  string    `gorm:"index;size:128;not null"`
	CourtID  string    `gorm:"index;size:64;not null"`
	Day      string    `gorm:"size:10;not null"`
	Start    string    `gorm:"size:5;not null"`
	End      string    `gorm:"size:5;not null"`
	OpenedAt time.Time `gorm:"not null"`
	ClosedAt time.Time `gorm:"index;not null"` // Time the block was first seen gone
}
