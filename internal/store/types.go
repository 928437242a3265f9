package store

import (
	"fmt"
	"time"

	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/model"
)

// DayLayout is the format of the day columns.
const DayLayout = "2006-01-02"

// BlockID identifies a block across scans: the same court, day and start always map to the
// same ID.
func BlockID(courtID, day, start string) string {
	return fmt.Sprintf("%s@%sT%s", courtID, day, start)
}

func openBlock(courtID string, b availability.Block, now time.Time) model.OpenBlock {
	day := b.Start.Format(DayLayout)
	start := b.Start.Format("15:04")
	return model.OpenBlock{
		ID:          BlockID(courtID, day, start),
		CourtID:     courtID,
		Day:         day,
		Start:       start,
		End:         b.End.Format("15:04"),
		FirstSeenAt: now,
	}
}

func courtModel(c availability.Court) model.Court {
	return model.Court{
		ID:       c.ID,
		Name:     c.Name,
		Category: c.Category,
		Type:     c.Type,
		Features: c.Features,
		Location: c.Location,
	}
}
