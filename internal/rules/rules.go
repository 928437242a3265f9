package rules

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

// ErrBookingRuleViolation matches every *Violation.
var ErrBookingRuleViolation = errors.New("booking rule violation")

// Rule identifies a reservation policy rule.
type Rule string

const (
	RuleOneBookingPerDay     Rule = "one_booking_per_day"
	RuleOverlappingBooking   Rule = "overlapping_booking"
	RuleAdvanceWindow        Rule = "advance_window"
	RuleAdvanceWindowOpening Rule = "advance_window_opening"
	RuleBlockDuration        Rule = "block_duration"
	RuleValidStartTime       Rule = "valid_start_time"
)

// Violation names the first rule a booking request broke.
type Violation struct {
	Rule   Rule   `json:"rule"`
	Reason string `json:"reason"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Reason)
}

func (v *Violation) Unwrap() error {
	return ErrBookingRuleViolation
}

// Policy is a club's reservation policy.
type Policy struct {
	MaxAdvanceDays    int              `json:"maxAdvanceDays"`
	WindowOpensAt     slot.TimeOfDay   `json:"windowOpensAt"` // release time of the farthest bookable day
	MaxBookingsPerDay int              `json:"maxBookingsPerDay"`
	BlockMinutes      int              `json:"blockMinutes"`
	ValidStartTimes   []slot.TimeOfDay `json:"validStartTimes"`
}

// PolicyFromCalendar derives block length and start times from the calendar template.
func PolicyFromCalendar(cal slot.Calendar, maxAdvanceDays int, opensAt slot.TimeOfDay) Policy {
	return Policy{
		MaxAdvanceDays:    maxAdvanceDays,
		WindowOpensAt:     opensAt,
		MaxBookingsPerDay: 1,
		BlockMinutes:      cal.BlockMinutes(),
		ValidStartTimes:   cal.StartTimes(),
	}
}

// Request is a prospective booking. Start and End are times of day on Date.
type Request struct {
	CourtID      string         `json:"courtId"`
	Date         time.Time      `json:"date"`
	Start        slot.TimeOfDay `json:"start"`
	End          slot.TimeOfDay `json:"end"`
	Purpose      string         `json:"purpose,omitempty"`
	Category     string         `json:"category,omitempty"`
	Participants []string       `json:"participants,omitempty"`
}

// Status of a member booking on the platform.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking is a reservation the member already holds.
type Booking struct {
	ID        string         `json:"id"`
	CourtID   string         `json:"courtId"`
	CourtName string         `json:"courtName,omitempty"`
	Date      time.Time      `json:"date"`
	Start     slot.TimeOfDay `json:"start"`
	End       slot.TimeOfDay `json:"end"`
	Status    Status         `json:"status"`
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func daysBetween(a, b time.Time) int {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return int(time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC).Sub(time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)).Hours() / 24)
}

// Validate runs the policy rules in order and returns the first *Violation, or nil.
// now is the current wall-clock time in the club's location.
func Validate(req Request, p Policy, existing []Booking, now time.Time) error {
	maxPerDay := max(p.MaxBookingsPerDay, 1)

	var sameDate []Booking
	for _, b := range existing {
		if b.Status != StatusCancelled && sameDay(b.Date, req.Date) {
			sameDate = append(sameDate, b)
		}
	}
	if len(sameDate) >= maxPerDay {
		return &Violation{
			Rule:   RuleOneBookingPerDay,
			Reason: fmt.Sprintf("member already holds %d booking(s) on %s (limit %d)", len(sameDate), req.Date.Format("2006-01-02"), maxPerDay),
		}
	}
	for _, b := range sameDate {
		if req.Start.Minutes() < b.End.Minutes() && b.Start.Minutes() < req.End.Minutes() {
			return &Violation{
				Rule:   RuleOverlappingBooking,
				Reason: fmt.Sprintf("overlaps booking %s on %s %s-%s", b.ID, b.CourtID, b.Start, b.End),
			}
		}
	}

	ahead := daysBetween(now, req.Date)
	if ahead < 0 {
		return &Violation{
			Rule:   RuleAdvanceWindow,
			Reason: fmt.Sprintf("%s is in the past", req.Date.Format("2006-01-02")),
		}
	}
	if ahead > p.MaxAdvanceDays {
		return &Violation{
			Rule:   RuleAdvanceWindow,
			Reason: fmt.Sprintf("%s is %d days ahead; bookings open %d days in advance", req.Date.Format("2006-01-02"), ahead, p.MaxAdvanceDays),
		}
	}
	if ahead == p.MaxAdvanceDays && slot.Of(now).Minutes() < p.WindowOpensAt.Minutes() {
		return &Violation{
			Rule:   RuleAdvanceWindowOpening,
			Reason: fmt.Sprintf("bookings for %s open at %s today", req.Date.Format("2006-01-02"), p.WindowOpensAt),
		}
	}

	if d := req.End.Minutes() - req.Start.Minutes(); d != p.BlockMinutes {
		return &Violation{
			Rule:   RuleBlockDuration,
			Reason: fmt.Sprintf("booking is %d minutes; must be exactly %d", d, p.BlockMinutes),
		}
	}

	if !slices.Contains(p.ValidStartTimes, req.Start) {
		return &Violation{
			Rule:   RuleValidStartTime,
			Reason: fmt.Sprintf("%s is not a block start time", req.Start),
		}
	}
	return nil
}
