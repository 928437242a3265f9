package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrResolution marks a court whose grid entry could not be resolved.
	ErrResolution = errors.New("availability resolution failed")
	// ErrMissingBound is returned when a court has no first/last available slot.
	ErrMissingBound = errors.New("missing slot bound")
	// ErrMalformedBound is returned when a slot bound is not an integer.
	ErrMalformedBound = errors.New("malformed slot bound")
)

// Grid is one day of the platform's scheduling grid for a court category.
type Grid struct {
	Date      time.Time   `json:"date"`
	FirstSlot int         `json:"firstSlot"` // slot index of local midnight on Date
	Category  string      `json:"category"`
	Courts    []GridCourt `json:"courts"`
}

// GridCourt is a court's open range and reservations as reported by the grid.
type GridCourt struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	FirstAvailable Bound         `json:"firstAvailable"`
	LastAvailable  Bound         `json:"lastAvailable"`
	Reservations   []Reservation `json:"reservations"`
}

// Reservation is an inclusive range of taken slots.
type Reservation struct {
	FirstSlot int    `json:"firstSlot"`
	LastSlot  int    `json:"lastSlot"`
	Occupant  string `json:"occupant,omitempty"`
	Usage     string `json:"usage,omitempty"`
}

// Bound is a slot bound exactly as the grid encoded it. A nil Bound means the field was absent.
type Bound []byte

// IntBound encodes n.
func IntBound(n int) Bound {
	return Bound(strconv.Itoa(n))
}

// UnmarshalJSON keeps the raw token so malformed bounds only fail their own court.
func (b *Bound) UnmarshalJSON(data []byte) error {
	*b = append((*b)[:0], data...)
	return nil
}

// MarshalJSON writes the raw token back.
func (b Bound) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

// Int decodes the bound. Integer strings such as "112" are accepted.
func (b Bound) Int() (int, error) {
	s := strings.TrimSpace(string(b))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s == "null" {
		return 0, ErrMissingBound
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMalformedBound, string(b))
	}
	return n, nil
}

// Court is a grid court with the attributes derived from its display name.
type Court struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Type     string   `json:"type"`
	Features []string `json:"features,omitempty"`
	Location string   `json:"location,omitempty"`
}

// Block is a bookable run of exactly one calendar block of free slots.
type Block struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
	FirstSlot       int       `json:"firstSlot"`
	LastSlot        int       `json:"lastSlot"`
}

// Result is the availability of one court on one day.
type Result struct {
	Court  Court     `json:"court"`
	Date   time.Time `json:"date"`
	Blocks []Block   `json:"blocks"`
}

// ResolutionError reports a court that was skipped. It matches ErrResolution and the cause.
type ResolutionError struct {
	CourtID string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve court %s: %v", e.CourtID, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}

// Resolution is the outcome of resolving one grid.
type Resolution struct {
	Date     time.Time
	Results  []Result
	Failures []*ResolutionError
}

// Err joins the per-court failures, or returns nil.
func (r Resolution) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
