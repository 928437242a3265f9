package availability

import (
	"fmt"
	"iter"
	"time"

	"github.com/daveremy/clubexpress-sdk/internal/parse"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

// Options controls a resolution. The zero value resolves with slot.DefaultCalendar and no
// filters.
type Options struct {
	Calendar slot.Calendar
	// Aligned only emits blocks that start on a calendar block boundary.
	Aligned    bool
	Filter     Filter
	Classifier *parse.Classifier
}

// Resolve computes the bookable blocks of every court in grid. A malformed court is recorded in
// Failures and does not stop the others.
func Resolve(grid Grid, opts Options) Resolution {
	cal := opts.Calendar
	if cal == (slot.Calendar{}) {
		cal = slot.DefaultCalendar()
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = parse.NewClassifier()
	}

	day := slot.StartOfDay(grid.Date)
	res := Resolution{Date: day}
	for _, gc := range grid.Courts {
		blocks, err := resolveCourt(grid, gc, cal, opts.Aligned)
		if err != nil {
			res.Failures = append(res.Failures, &ResolutionError{CourtID: gc.ID, Err: err})
			continue
		}

		blocks = opts.Filter.keepBlocks(blocks, day)
		if len(blocks) == 0 {
			continue
		}

		court := describe(gc, grid.Category, classifier)
		if !opts.Filter.MatchesCourt(court) {
			continue
		}
		res.Results = append(res.Results, Result{Court: court, Date: day, Blocks: blocks})
	}
	return res
}

// Courts lists every court of grid with its derived attributes, whether or not it has a free
// block. A nil classifier uses the default rules.
func Courts(grid Grid, classifier *parse.Classifier) []Court {
	if classifier == nil {
		classifier = parse.NewClassifier()
	}
	out := make([]Court, 0, len(grid.Courts))
	for _, gc := range grid.Courts {
		out = append(out, describe(gc, grid.Category, classifier))
	}
	return out
}

func describe(gc GridCourt, category string, classifier *parse.Classifier) Court {
	tags := classifier.Classify(gc.Name)
	return Court{
		ID:       gc.ID,
		Name:     parse.NormalizeName(gc.Name),
		Category: category,
		Type:     tags.Type,
		Features: tags.Features,
		Location: tags.Location,
	}
}

func resolveCourt(grid Grid, gc GridCourt, cal slot.Calendar, aligned bool) ([]Block, error) {
	first, err := gc.FirstAvailable.Int()
	if err != nil {
		return nil, fmt.Errorf("first available slot: %w", err)
	}
	last, err := gc.LastAvailable.Int()
	if err != nil {
		return nil, fmt.Errorf("last available slot: %w", err)
	}
	if last < first {
		return nil, fmt.Errorf("%w: last available slot %d before first %d", slot.ErrInvalidSlotRange, last, first)
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if end := grid.FirstSlot + 24*60/cal.SlotMinutes; first < grid.FirstSlot || last >= end {
		return nil, fmt.Errorf("%w: slots %d..%d outside day %d..%d", slot.ErrInvalidSlotRange, first, last, grid.FirstSlot, end-1)
	}
	codec, err := slot.NewCodec(grid.Date, grid.FirstSlot, cal.SlotMinutes)
	if err != nil {
		return nil, err
	}

	free := FreeSlots(first, last, gc.Reservations)
	var starts []int
	if aligned {
		starts = AlignedBlockStarts(free, cal.BlockStartIndices(grid.FirstSlot), cal.BlockSlots)
	} else {
		starts = BlockStarts(free, cal.BlockSlots)
	}

	blocks := make([]Block, 0, len(starts))
	for _, s := range starts {
		blocks = append(blocks, Block{
			Start:           codec.Time(s),
			End:             codec.Time(s + cal.BlockSlots),
			DurationMinutes: cal.BlockMinutes(),
			FirstSlot:       s,
			LastSlot:        s + cal.BlockSlots - 1,
		})
	}
	return blocks, nil
}

// FreeSlots returns the ascending slots of [first, last] not covered by any reservation.
// Reservations may overlap each other or reach outside the open range.
func FreeSlots(first, last int, reserved []Reservation) []int {
	if last < first {
		return nil
	}
	taken := make([]bool, last-first+1)
	for _, r := range reserved {
		lo, hi := max(r.FirstSlot, first), min(r.LastSlot, last)
		for i := lo; i <= hi; i++ {
			taken[i-first] = true
		}
	}

	free := make([]int, 0, len(taken))
	for i, t := range taken {
		if !t {
			free = append(free, first+i)
		}
	}
	return free
}

// BlockStarts scans ascending free slots for runs of size contiguous indices. Each run found is
// consumed whole, so a free stretch of 2*size yields two disjoint blocks.
func BlockStarts(free []int, size int) []int {
	if size <= 0 {
		return nil
	}
	var starts []int
	for i := 0; i+size <= len(free); {
		if contiguous(free[i : i+size]) {
			starts = append(starts, free[i])
			i += size
			continue
		}
		i++
	}
	return starts
}

// AlignedBlockStarts keeps the calendar starts whose whole block is free.
func AlignedBlockStarts(free []int, calendar iter.Seq[int], size int) []int {
	isFree := make(map[int]bool, len(free))
	for _, f := range free {
		isFree[f] = true
	}

	var starts []int
	for s := range calendar {
		ok := size > 0
		for i := s; ok && i < s+size; i++ {
			ok = isFree[i]
		}
		if ok {
			starts = append(starts, s)
		}
	}
	return starts
}

func contiguous(run []int) bool {
	for i := 1; i < len(run); i++ {
		if run[i] != run[i-1]+1 {
			return false
		}
	}
	return true
}

// DayOffset is the number of whole calendar days from today to date, comparing the two dates'
// local midnights rather than elapsed time.
func DayOffset(today, date time.Time) int {
	y1, m1, d1 := today.Date()
	y2, m2, d2 := date.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
