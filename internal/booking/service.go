package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/gateway"
	"github.com/daveremy/clubexpress-sdk/internal/parse"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

// ErrPastDate is returned for availability queries before today.
var ErrPastDate = errors.New("date is in the past")

// Recorder keeps a local record of bookings made through the service.
type Recorder interface {
	RecordBooking(ctx context.Context, b rules.Booking, req rules.Request) error
	MarkCancelled(ctx context.Context, bookingID string) error
}

// Options configures a Service.
type Options struct {
	Categories []string
	Calendar   slot.Calendar
	Aligned    bool
	Classifier *parse.Classifier
	Recorder   Recorder
}

// Service is the member-facing API: find courts, check a request, book, cancel.
type Service struct {
	gw        gateway.Site
	validator *rules.Validator
	opts      Options
}

func NewService(gw gateway.Site, v *rules.Validator, opts Options) *Service {
	if len(opts.Categories) == 0 {
		opts.Categories = []string{"tennis"}
	}
	if opts.Calendar == (slot.Calendar{}) {
		opts.Calendar = slot.DefaultCalendar()
	}
	if opts.Classifier == nil {
		opts.Classifier = parse.NewClassifier()
	}
	return &Service{gw: gw, validator: v, opts: opts}
}

// Validator exposes the policy holder so callers can swap policies at runtime.
func (s *Service) Validator() *rules.Validator {
	return s.validator
}

// Query selects the day, categories and filters of an availability search.
type Query struct {
	Date         time.Time
	Categories   []string // defaults to the service's categories
	Filter       availability.Filter
	IncludeGrids bool
}

// Availability is the merged result of a search. Grids is only filled when requested.
type Availability struct {
	Date     time.Time                       `json:"date"`
	Results  []availability.Result           `json:"results"`
	Failures []*availability.ResolutionError `json:"-"`
	Grids    []availability.Grid             `json:"-"`
}

// FindAvailability fetches the grid of every category concurrently and resolves them. A failed
// fetch fails the whole search; a malformed court only lands in Failures.
func (s *Service) FindAvailability(ctx context.Context, q Query) (*Availability, error) {
	offset := availability.DayOffset(s.validator.Now(), q.Date)
	if offset < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPastDate, q.Date.Format("2006-01-02"))
	}

	categories := q.Categories
	if len(categories) == 0 {
		categories = s.opts.Categories
	}

	grids := make([]availability.Grid, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range categories {
		g.Go(func() error {
			grid, err := s.gw.FetchGrid(gctx, category, offset)
			if err != nil {
				return fmt.Errorf("fetch %s grid: %w", category, err)
			}
			grids[i] = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Availability{Date: slot.StartOfDay(q.Date)}
	for _, grid := range grids {
		res := availability.Resolve(grid, availability.Options{
			Calendar:   s.opts.Calendar,
			Aligned:    s.opts.Aligned,
			Filter:     q.Filter,
			Classifier: s.opts.Classifier,
		})
		out.Results = append(out.Results, res.Results...)
		out.Failures = append(out.Failures, res.Failures...)
	}
	for _, f := range out.Failures {
		log.Printf("Warning: %v", f)
	}
	slices.SortStableFunc(out.Results, func(a, b availability.Result) int {
		if len(a.Blocks) == 0 || len(b.Blocks) == 0 {
			return len(a.Blocks) - len(b.Blocks)
		}
		return a.Blocks[0].Start.Compare(b.Blocks[0].Start)
	})
	if q.IncludeGrids {
		out.Grids = grids
	}
	return out, nil
}

// Bookings lists the member's bookings between from and to inclusive.
func (s *Service) Bookings(ctx context.Context, from, to time.Time) ([]rules.Booking, error) {
	return s.gw.FetchBookings(ctx, from, to)
}

// ValidateBooking checks req against the policy and the member's bookings on the same day.
func (s *Service) ValidateBooking(ctx context.Context, req rules.Request) error {
	existing, err := s.gw.FetchBookings(ctx, req.Date, req.Date)
	if err != nil {
		return fmt.Errorf("fetch existing bookings: %w", err)
	}
	return s.validator.Validate(req, existing)
}

// Book validates req and submits it. Nothing is sent to the platform when validation fails.
func (s *Service) Book(ctx context.Context, req rules.Request) (rules.Booking, error) {
	if err := s.ValidateBooking(ctx, req); err != nil {
		return rules.Booking{}, err
	}

	b, err := s.gw.SubmitBooking(ctx, req)
	if err != nil {
		return rules.Booking{}, err
	}
	log.Printf("Booked %s on %s %s-%s (booking %s)", req.CourtID, req.Date.Format("2006-01-02"), req.Start, req.End, b.ID)

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordBooking(ctx, b, req); err != nil {
			log.Printf("Warning: failed to record booking %s: %v", b.ID, err)
		}
	}
	return b, nil
}

// Cancel cancels a booking on the platform and marks the local record.
func (s *Service) Cancel(ctx context.Context, bookingID, reason string) error {
	if err := s.gw.SubmitCancellation(ctx, bookingID, reason); err != nil {
		return err
	}
	log.Printf("Cancelled booking %s", bookingID)

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.MarkCancelled(ctx, bookingID); err != nil {
			log.Printf("Warning: failed to mark booking %s cancelled: %v", bookingID, err)
		}
	}
	return nil
}
