package slot

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

// DefaultSlotMinutes is the width of one grid slot on the reservation platform.
const DefaultSlotMinutes = 15

// ErrInvalidSlotRange is returned for slot bounds or widths that cannot describe a day.
var ErrInvalidSlotRange = errors.New("invalid slot range")

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a single-digit hour is accepted).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustParseTimeOfDay is ParseTimeOfDay for literals.
func MustParseTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return tod
}

// FromMinutes builds a TimeOfDay from minutes after midnight.
func FromMinutes(m int) TimeOfDay {
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// Of returns the time of day of t in t's location.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// Minutes returns the minutes elapsed since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On anchors t to the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return wallClock(day, t.Minutes())
}

// MarshalText encodes as "HH:MM".
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes "HH:MM".
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return wallClock(t, 0)
}

// wallClock returns the time minutes past midnight on the clock face of day's calendar day.
// time.Date normalises the overflowing minutes, so a DST shift does not move the result.
func wallClock(day time.Time, minutes int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, day.Location())
}

// ToTime maps a slot index to wall-clock time. firstIndex is the grid's per-day origin and
// corresponds to midnight of day.
func ToTime(index int, day time.Time, firstIndex, slotMinutes int) (time.Time, error) {
	if slotMinutes <= 0 {
		return time.Time{}, fmt.Errorf("%w: slot width %d", ErrInvalidSlotRange, slotMinutes)
	}
	if index < firstIndex {
		return time.Time{}, fmt.Errorf("%w: slot %d precedes day origin %d", ErrInvalidSlotRange, index, firstIndex)
	}
	return wallClock(day, (index-firstIndex)*slotMinutes), nil
}

// Codec converts between slot indices and wall-clock time for one grid day.
type Codec struct {
	Day         time.Time
	FirstIndex  int
	SlotMinutes int
}

// NewCodec returns a codec anchored at midnight of day.
func NewCodec(day time.Time, firstIndex, slotMinutes int) (Codec, error) {
	if slotMinutes <= 0 {
		return Codec{}, fmt.Errorf("%w: slot width %d", ErrInvalidSlotRange, slotMinutes)
	}
	return Codec{Day: StartOfDay(day), FirstIndex: firstIndex, SlotMinutes: slotMinutes}, nil
}

// Time returns the start time of slot index i.
func (c Codec) Time(i int) time.Time {
	return wallClock(c.Day, (i-c.FirstIndex)*c.SlotMinutes)
}

// Index returns the slot that starts at t. t must fall on a slot boundary of the codec's day,
// read on the codec's clock face.
func (c Codec) Index(t time.Time) (int, error) {
	t = t.In(c.Day.Location())
	y, m, d := t.Date()
	cy, cm, cd := c.Day.Date()
	minutes := t.Hour()*60 + t.Minute()
	if y != cy || m != cm || d != cd || t.Second() != 0 || t.Nanosecond() != 0 || minutes%c.SlotMinutes != 0 {
		return 0, fmt.Errorf("%w: %s is not a slot boundary", ErrInvalidSlotRange, t.Format(time.RFC3339))
	}
	return c.FirstIndex + minutes/c.SlotMinutes, nil
}

// Calendar is the fixed template of bookable blocks in a day.
type Calendar struct {
	SlotMinutes int
	BlockSlots  int
	FirstBlock  TimeOfDay
	LastBlock   TimeOfDay // start of the last block of the day
}

// DefaultCalendar is 90-minute blocks of 15-minute slots from 08:00 to a 20:00 last start.
func DefaultCalendar() Calendar {
	return Calendar{
		SlotMinutes: DefaultSlotMinutes,
		BlockSlots:  6,
		FirstBlock:  TimeOfDay{Hour: 8},
		LastBlock:   TimeOfDay{Hour: 20},
	}
}

// Validate reports whether the calendar describes at least one block.
func (c Calendar) Validate() error {
	if c.SlotMinutes <= 0 || c.BlockSlots <= 0 {
		return fmt.Errorf("%w: slot width %d, block size %d", ErrInvalidSlotRange, c.SlotMinutes, c.BlockSlots)
	}
	if c.LastBlock.Minutes() < c.FirstBlock.Minutes() {
		return fmt.Errorf("%w: last block %s before first block %s", ErrInvalidSlotRange, c.LastBlock, c.FirstBlock)
	}
	if c.FirstBlock.Minutes()%c.SlotMinutes != 0 {
		return fmt.Errorf("%w: first block %s is not on a slot boundary", ErrInvalidSlotRange, c.FirstBlock)
	}
	return nil
}

// BlockMinutes is the length of one block.
func (c Calendar) BlockMinutes() int {
	return c.SlotMinutes * c.BlockSlots
}

// BlockStartIndices yields the slot index of every calendar block start for a grid whose
// origin (midnight) is firstIndex. The sequence is empty for an invalid calendar.
func (c Calendar) BlockStartIndices(firstIndex int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if c.Validate() != nil {
			return
		}
		for m := c.FirstBlock.Minutes(); m <= c.LastBlock.Minutes(); m += c.BlockMinutes() {
			if !yield(firstIndex + m/c.SlotMinutes) {
				return
			}
		}
	}
}

// StartTimes lists the legal block start times, earliest first.
func (c Calendar) StartTimes() []TimeOfDay {
	var out []TimeOfDay
	for i := range c.BlockStartIndices(0) {
		out = append(out, FromMinutes(i*c.SlotMinutes))
	}
	return out
}
