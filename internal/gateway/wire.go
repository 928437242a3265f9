package gateway

import (
	"time"

	"github.com/daveremy/clubexpress-sdk/internal/availability"
)

type gridRequest struct {
	Category  string `json:"category"`
	DayOffset int    `json:"dayOffset"`
	MemberID  string `json:"memberId,omitempty"`
}

// gridResponse models the top-level structure of the grid endpoint's response.
type gridResponse struct {
	Code int      `json:"code"`
	Data gridData `json:"data"`
}

type gridData struct {
	Date      string      `json:"date"`
	FirstSlot int         `json:"firstSlot"`
	Courts    []gridCourt `json:"courts"`
}

// gridCourt keeps the bounds raw; a malformed court is rejected later by the resolver.
type gridCourt struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	FirstAvailable availability.Bound         `json:"firstAvailable"`
	LastAvailable  availability.Bound         `json:"lastAvailable"`
	Reservations   []availability.Reservation `json:"reservations"`
}

func (d gridData) toGrid(date time.Time, category string) availability.Grid {
	g := availability.Grid{
		Date:      date,
		FirstSlot: d.FirstSlot,
		Category:  category,
		Courts:    make([]availability.GridCourt, 0, len(d.Courts)),
	}
	for _, c := range d.Courts {
		g.Courts = append(g.Courts, availability.GridCourt{
			ID:             c.ID,
			Name:           c.Name,
			FirstAvailable: c.FirstAvailable,
			LastAvailable:  c.LastAvailable,
			Reservations:   c.Reservations,
		})
	}
	return g
}
