package store

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/model"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertCourts(ctx context.Context, courts []availability.Court) error
	UpdateOpenBlocks(ctx context.Context, now time.Time, day string, results []availability.Result) ([]string, error)
	ExpireBlocks(ctx context.Context, now time.Time, before string) error
	ListCourts(ctx context.Context) ([]model.Court, error)
	RecordBooking(ctx context.Context, b rules.Booking, req rules.Request) error
	MarkCancelled(ctx context.Context, bookingID string) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpdateOpenBlocks reconciles the open blocks of one day with a fresh scan. Blocks that are
// new are created and their IDs returned; blocks that are gone are archived.
func (s *gormStore) UpdateOpenBlocks(ctx context.Context, now time.Time, day string, results []availability.Result) ([]string, error) {
	current, err := s.fetchOpenBlocks(ctx, "day = ?", day)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open blocks for %s: %w", day, err)
	}

	var created []model.OpenBlock
	seen := make(map[string]bool)
	for _, r := range results {
		for _, b := range r.Blocks {
			ob := openBlock(r.Court.ID, b, now)
			if ob.Day != day || seen[ob.ID] {
				continue
			}
			seen[ob.ID] = true
			if _, exists := current[ob.ID]; exists {
				delete(current, ob.ID)
				continue
			}
			created = append(created, ob)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(created) > 0 {
			if err := tx.Create(&created).Error; err != nil {
				return fmt.Errorf("failed to create open blocks: %w", err)
			}
		}
		return archiveAll(tx, current, now)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(created))
	for i, b := range created {
		ids[i] = b.ID
	}
	return ids, nil
}

// ExpireBlocks archives open blocks on days before the given day.
func (s *gormStore) ExpireBlocks(ctx context.Context, now time.Time, before string) error {
	stale, err := s.fetchOpenBlocks(ctx, "day < ?", before)
	if err != nil {
		return fmt.Errorf("failed to fetch stale open blocks: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return archiveAll(tx, stale, now)
	})
}

// archiveAll moves blocks to the history table in ID order.
func archiveAll(tx *gorm.DB, blocks map[string]model.OpenBlock, closedAt time.Time) error {
	ids := make([]string, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if err := archiveBlock(tx, blocks[id], closedAt); err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&model.OpenBlock{}).Error; err != nil {
			return fmt.Errorf("failed to delete open block %s: %w", id, err)
		}
	}
	return nil
}

// archiveBlock creates a historical record of a block that is no longer open.
func archiveBlock(tx *gorm.DB, b model.OpenBlock, closedAt time.Time) error {
	history := model.BlockHistory{
		BlockID:  b.ID,
		CourtID:  b.CourtID,
		Day:      b.Day,
		Start:    b.Start,
		End:      b.End,
		OpenedAt: b.FirstSeenAt,
		ClosedAt: closedAt,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to archive open block %s: %w", b.ID, err)
	}
	return nil
}

// UpsertCourts saves court metadata, skipping courts that have not changed.
func (s *gormStore) UpsertCourts(ctx context.Context, courts []availability.Court) error {
	existing, err := s.fetchAllCourts(ctx)
	if err != nil {
		log.Printf("Warning: could not pre-fetch courts: %v", err)
		existing = make(map[string]model.Court)
	}

	var toUpsert []model.Court
	seen := make(map[string]bool)
	for _, c := range courts {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		m := courtModel(c)
		if old, ok := existing[m.ID]; ok && sameCourt(old, m) {
			continue
		}
		toUpsert = append(toUpsert, m)
	}

	if len(toUpsert) == 0 {
		return nil
	}
	log.Printf("Batch upserting %d courts...", len(toUpsert))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "category", "type", "features", "location", "updated_at"}),
		}).Create(&toUpsert).Error
	})
}

func sameCourt(a, b model.Court) bool {
	return a.Name == b.Name &&
		a.Category == b.Category &&
		a.Type == b.Type &&
		a.Location == b.Location &&
		slices.Equal(a.Features, b.Features)
}

// ListCourts returns every known court with its open blocks.
func (s *gormStore) ListCourts(ctx context.Context) ([]model.Court, error) {
	var courts []model.Court
	err := s.db.WithContext(ctx).
		Preload("OpenBlocks", func(db *gorm.DB) *gorm.DB {
			return db.Order("day ASC, start ASC")
		}).
		Order("id").
		Find(&courts).Error
	if err != nil {
		return nil, err
	}
	return courts, nil
}

// RecordBooking stores a booking confirmed by the platform. Recording the same platform booking
// twice is a no-op.
func (s *gormStore) RecordBooking(ctx context.Context, b rules.Booking, req rules.Request) error {
	record := model.BookingRecord{
		ID:           uuid.NewString(),
		PlatformID:   b.ID,
		CourtID:      b.CourtID,
		Day:          b.Date.Format(DayLayout),
		Start:        b.Start.String(),
		End:          b.End.String(),
		Purpose:      req.Purpose,
		Category:     req.Category,
		Participants: req.Participants,
		Status:       string(b.Status),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform_id"}},
		DoNothing: true,
	}).Create(&record).Error
}

// MarkCancelled flags a recorded booking as cancelled.
func (s *gormStore) MarkCancelled(ctx context.Context, bookingID string) error {
	res := s.db.WithContext(ctx).
		Model(&model.BookingRecord{}).
		Where("platform_id = ?", bookingID).
		Update("status", string(rules.StatusCancelled))
	if res.Error != nil {
		return fmt.Errorf("failed to cancel booking record %s: %w", bookingID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("booking record %s: %w", bookingID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *gormStore) fetchOpenBlocks(ctx context.Context, query string, args ...any) (map[string]model.OpenBlock, error) {
	var blocks []model.OpenBlock
	if err := s.db.WithContext(ctx).Where(query, args...).Find(&blocks).Error; err != nil {
		return nil, err
	}
	blockMap := make(map[string]model.OpenBlock, len(blocks))
	for _, b := range blocks {
		blockMap[b.ID] = b
	}
	return blockMap, nil
}

func (s *gormStore) fetchAllCourts(ctx context.Context) (map[string]model.Court, error) {
	var courts []model.Court
	if err := s.db.WithContext(ctx).Find(&courts).Error; err != nil {
		return nil, err
	}
	courtMap := make(map[string]model.Court, len(courts))
	for _, c := range courts {
		courtMap[c.ID] = c
	}
	return courtMap, nil
}
