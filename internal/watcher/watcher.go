package watcher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/daveremy/clubexpress-sdk/config"
	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
	"github.com/daveremy/clubexpress-sdk/internal/store"
)

// GridFetcher is the part of the site gateway the watcher needs.
type GridFetcher interface {
	FetchGrid(ctx context.Context, category string, dayOffset int) (availability.Grid, error)
}

// GridRefresher is implemented by caching gateways. RefreshGrid skips the cached copy.
type GridRefresher interface {
	RefreshGrid(ctx context.Context, category string, dayOffset int) (availability.Grid, error)
}

// Notifier announces newly opened blocks.
type Notifier interface {
	Start(ctx context.Context)
	Dispatch(ctx context.Context, blockID string) error
}

// Service keeps the open-block tables in sync with the platform.
type Service struct {
	cfg      *config.Config
	gw       GridFetcher
	store    store.Store
	notifier Notifier
	opts     availability.Options
	opensAt  slot.TimeOfDay
	loc      *time.Location
	now      func() time.Time

	mu sync.Mutex // one scan at a time
}

// NewService creates a watcher from the application configuration.
func NewService(cfg *config.Config, gw GridFetcher, st store.Store, notifier Notifier) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cal, err := cfg.Calendar()
	if err != nil {
		return nil, err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}
	opensAt, err := slot.ParseTimeOfDay(cfg.Policy.WindowOpensAt)
	if err != nil {
		return nil, fmt.Errorf("policy.window_opens_at: %w", err)
	}

	return &Service{
		cfg:      cfg,
		gw:       gw,
		store:    st,
		notifier: notifier,
		opts: availability.Options{
			Calendar:   cal,
			Aligned:    cfg.Policy.AlignedBlocks,
			Classifier: classifier,
		},
		opensAt: opensAt,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// WindowSpec is the cron spec firing every day at t.
func WindowSpec(t slot.TimeOfDay) string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}

// Run scans on a fixed interval and once more whenever the farthest bookable day is released.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Watcher.Enabled {
		log.Println("Watcher is disabled. Not starting.")
		return
	}
	log.Println("Starting watcher service...")

	if s.notifier != nil {
		s.notifier.Start(ctx)
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(WindowSpec(s.opensAt), func() { s.ScanReleased(ctx) }); err != nil {
		log.Printf("Warning: could not schedule window-opening scan: %v", err)
	}
	c.Start()
	defer c.Stop()

	s.ScanOnce(ctx)

	timer := time.NewTimer(s.cfg.Watcher.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Watcher service shutting down.")
			return
		case <-timer.C:
			s.ScanOnce(ctx)
			timer.Reset(s.cfg.Watcher.Interval)
		}
	}
}

// ScanOnce refreshes every day from today to the end of the watch window.
func (s *Service) ScanOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Println("Executing scan cycle...")
	now := s.now()
	today := now.In(s.loc).Format(store.DayLayout)
	if err := s.store.ExpireBlocks(ctx, now, today); err != nil {
		log.Printf("Error expiring past blocks: %v", err)
	}

	for offset := 0; offset <= s.cfg.Watcher.DaysAhead; offset++ {
		if ctx.Err() != nil {
			return
		}
		s.scanDay(ctx, now, offset, false)
	}
	log.Println("Scan cycle finished.")
}

// ScanReleased refreshes only the farthest bookable day, bypassing any grid cache.
func (s *Service) ScanReleased(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("Booking window opened, scanning day +%d", s.cfg.Policy.MaxAdvanceDays)
	s.scanDay(ctx, s.now(), s.cfg.Policy.MaxAdvanceDays, true)
}

func (s *Service) fetch(ctx context.Context, category string, offset int, fresh bool) (availability.Grid, error) {
	if r, ok := s.gw.(GridRefresher); ok && fresh {
		return r.RefreshGrid(ctx, category, offset)
	}
	return s.gw.FetchGrid(ctx, category, offset)
}

func (s *Service) scanDay(ctx context.Context, now time.Time, offset int, fresh bool) {
	day := now.In(s.loc).AddDate(0, 0, offset).Format(store.DayLayout)

	var (
		courts  []availability.Court
		results []availability.Result
	)
	for _, category := range s.cfg.Gateway.Categories {
		grid, err := s.fetch(ctx, category, offset, fresh)
		if err != nil {
			// A partial view would archive the blocks of the missing category.
			log.Printf("Error fetching %s grid for %s: %v. Open blocks for the day will not be updated.", category, day, err)
			return
		}
		courts = append(courts, availability.Courts(grid, s.opts.Classifier)...)

		res := availability.Resolve(grid, s.opts)
		for _, f := range res.Failures {
			log.Printf("Warning: %s %s: %v", category, day, f)
		}
		results = append(results, res.Results...)
	}

	if err := s.store.UpsertCourts(ctx, courts); err != nil {
		log.Printf("Error processing courts: %v", err)
		return // Return early if court metadata fails
	}

	newBlockIDs, err := s.store.UpdateOpenBlocks(ctx, now, day, results)
	if err != nil {
		log.Printf("Error processing open blocks for %s: %v", day, err)
		return
	}

	if len(newBlockIDs) > 0 && s.notifier != nil {
		log.Printf("Dispatching notifications for %d blocks on %s", len(newBlockIDs), day)
		for _, id := range newBlockIDs {
			if err := s.notifier.Dispatch(ctx, id); err != nil {
				log.Printf("Stopped dispatching notifications for %s: %v", day, err)
				return
			}
		}
	}
}
