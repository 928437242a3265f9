package availability

import (
	"slices"
	"strings"
	"time"

	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

// Filter narrows a resolution. Every field is optional and all set fields must hold.
type Filter struct {
	Start       *slot.TimeOfDay // block starts at or after
	End         *slot.TimeOfDay // block ends at or before
	MinDuration int             // minutes

	Type     string
	Features []string
	Location string
}

func (f Filter) keepBlocks(blocks []Block, day time.Time) []Block {
	kept := blocks[:0:0]
	for _, b := range blocks {
		if f.Start != nil && b.Start.Before(f.Start.On(day)) {
			continue
		}
		if f.End != nil && b.End.After(f.End.On(day)) {
			continue
		}
		if f.MinDuration > 0 && b.DurationMinutes < f.MinDuration {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// MatchesCourt applies the court attribute filters. Matching is case-insensitive substring;
// each requested feature must match some feature of the court.
func (f Filter) MatchesCourt(c Court) bool {
	if f.Type != "" && !containsFold(c.Type, f.Type) {
		return false
	}
	for _, want := range f.Features {
		if !slices.ContainsFunc(c.Features, func(have string) bool { return containsFold(have, want) }) {
			return false
		}
	}
	if f.Location != "" && !containsFold(c.Location, f.Location) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
