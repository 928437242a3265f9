package availability

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

var gridDay = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

// origin 68 puts slot 100 at 08:00.
func newGrid(courts ...GridCourt) Grid {
	return Grid{Date: gridDay, FirstSlot: 68, Category: "tennis", Courts: courts}
}

func court(id, name string, first, last int, reserved ...Reservation) GridCourt {
	return GridCourt{
		ID:             id,
		Name:           name,
		FirstAvailable: IntBound(first),
		LastAvailable:  IntBound(last),
		Reservations:   reserved,
	}
}

func startsOf(blocks []Block) []int {
	out := make([]int, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.FirstSlot)
	}
	return out
}

func TestResolve_ReservedBlockIsMissing(t *testing.T) {
	grid := newGrid(court("c1", "Court 1", 100, 141, Reservation{FirstSlot: 106, LastSlot: 111, Occupant: "Smith"}))

	res := Resolve(grid, Options{})

	require.Empty(t, res.Failures)
	require.Len(t, res.Results, 1)
	blocks := res.Results[0].Blocks
	assert.Equal(t, []int{100, 112, 118, 124, 130, 136}, startsOf(blocks))

	first := blocks[0]
	assert.Equal(t, time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC), first.Start)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC), first.End)
	assert.Equal(t, 90, first.DurationMinutes)
	assert.Equal(t, 105, first.LastSlot)
	assert.Equal(t, "10:30", slot.Of(blocks[1].Start).String())
}

func TestResolve_EdgeCases(t *testing.T) {
	testCases := []struct {
		name     string
		court    GridCourt
		expected []int // nil means the court is omitted
	}{
		{
			name:  "Reservation spans the whole open range",
			court: court("c", "Court", 100, 141, Reservation{FirstSlot: 100, LastSlot: 141}),
		},
		{
			name:     "Two blocks of free slots give two blocks",
			court:    court("c", "Court", 100, 111),
			expected: []int{100, 106},
		},
		{
			name:     "Partial overlap still removes the overlapping slots",
			court:    court("c", "Court", 100, 141, Reservation{FirstSlot: 90, LastSlot: 103}),
			expected: []int{104, 110, 116, 122, 128, 134},
		},
		{
			name:     "Reservation entirely outside the open range",
			court:    court("c", "Court", 100, 105, Reservation{FirstSlot: 10, LastSlot: 20}, Reservation{FirstSlot: 200, LastSlot: 220}),
			expected: []int{100},
		},
		{
			name: "Overlapping and duplicate reservations",
			court: court("c", "Court", 100, 123,
				Reservation{FirstSlot: 104, LastSlot: 109},
				Reservation{FirstSlot: 106, LastSlot: 111},
				Reservation{FirstSlot: 104, LastSlot: 109}),
			expected: []int{112, 118},
		},
		{
			name:  "Partial run shorter than a block is discarded",
			court: court("c", "Court", 100, 104),
		},
		{
			name:     "Gap splits runs",
			court:    court("c", "Court", 100, 113, Reservation{FirstSlot: 103, LastSlot: 103}),
			expected: []int{104},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(newGrid(tc.court), Options{})
			assert.Empty(t, res.Failures)
			if tc.expected == nil {
				assert.Empty(t, res.Results)
				return
			}
			require.Len(t, res.Results, 1)
			assert.Equal(t, tc.expected, startsOf(res.Results[0].Blocks))
		})
	}
}

func TestResolve_MalformedCourtIsIsolated(t *testing.T) {
	grid := newGrid(
		GridCourt{ID: "missing", Name: "Court 1", LastAvailable: IntBound(141)},
		GridCourt{ID: "float", Name: "Court 2", FirstAvailable: Bound("100.5"), LastAvailable: IntBound(141)},
		GridCourt{ID: "inverted", Name: "Court 3", FirstAvailable: IntBound(141), LastAvailable: IntBound(100)},
		GridCourt{ID: "quoted", Name: "Court 4", FirstAvailable: Bound(`"100"`), LastAvailable: Bound(`"105"`)},
		GridCourt{ID: "overflow", Name: "Court 6", FirstAvailable: IntBound(0), LastAvailable: IntBound(math.MaxInt)},
		GridCourt{ID: "early", Name: "Court 7", FirstAvailable: IntBound(10), LastAvailable: IntBound(105)},
		GridCourt{ID: "nextday", Name: "Court 8", FirstAvailable: IntBound(100), LastAvailable: IntBound(68 + 96)},
		court("ok", "Court 5", 100, 105),
	)

	res := Resolve(grid, Options{})

	require.Len(t, res.Failures, 6)
	assert.Equal(t, "missing", res.Failures[0].CourtID)
	assert.ErrorIs(t, res.Failures[0], ErrResolution)
	assert.ErrorIs(t, res.Failures[0], ErrMissingBound)
	assert.ErrorIs(t, res.Failures[1], ErrMalformedBound)
	for _, f := range res.Failures[2:] {
		assert.ErrorIs(t, f, slot.ErrInvalidSlotRange, f.CourtID)
	}
	assert.Equal(t, "overflow", res.Failures[3].CourtID)
	assert.ErrorIs(t, res.Err(), ErrResolution)

	require.Len(t, res.Results, 2)
	assert.Equal(t, "quoted", res.Results[0].Court.ID)
	assert.Equal(t, "ok", res.Results[1].Court.ID)
}

func TestResolve_DSTTransitionDays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	for _, date := range []time.Time{
		time.Date(2024, 3, 10, 0, 0, 0, 0, ny),
		time.Date(2024, 11, 3, 0, 0, 0, 0, ny),
	} {
		t.Run(date.Format("2006-01-02"), func(t *testing.T) {
			grid := Grid{Date: date, FirstSlot: 68, Category: "tennis", Courts: []GridCourt{court("c1", "Court 1", 100, 111)}}

			res := Resolve(grid, Options{})
			require.Empty(t, res.Failures)
			require.Len(t, res.Results, 1)
			blocks := res.Results[0].Blocks
			require.Len(t, blocks, 2)
			assert.Equal(t, "08:00", slot.Of(blocks[0].Start).String())
			assert.Equal(t, "09:30", slot.Of(blocks[0].End).String())
			assert.Equal(t, "09:30", slot.Of(blocks[1].Start).String())
			assert.Equal(t, date.Day(), blocks[0].Start.Day())
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	grid := newGrid(
		court("c1", "Court 1 Clay", 100, 141, Reservation{FirstSlot: 106, LastSlot: 111}),
		court("c2", "Court 2 Hard", 96, 150, Reservation{FirstSlot: 120, LastSlot: 125}),
	)

	assert.Equal(t, Resolve(grid, Options{}), Resolve(grid, Options{}))
}

func TestResolve_BlocksNeverExceedFreeSlots(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		first := 68 + rng.Intn(40)
		last := first + rng.Intn(60)
		var reserved []Reservation
		for j := rng.Intn(5); j > 0; j-- {
			lo := first - 5 + rng.Intn(last-first+10)
			reserved = append(reserved, Reservation{FirstSlot: lo, LastSlot: lo + rng.Intn(10)})
		}

		res := Resolve(newGrid(court("c", "Court", first, last, reserved...)), Options{})
		require.Empty(t, res.Failures)

		free := len(FreeSlots(first, last, reserved))
		blocks := 0
		if len(res.Results) == 1 {
			blocks = len(res.Results[0].Blocks)
		}
		assert.LessOrEqual(t, blocks*6, free)
	}
}

func TestResolve_Filters(t *testing.T) {
	grid := newGrid(
		court("c1", "Court 1 - Har-Tru (Lights) North", 100, 141),
		court("c2", "Court 2 - Hard South", 100, 141),
		court("p1", "Pickleball 1", 100, 111),
	)
	at := func(s string) *slot.TimeOfDay {
		tod := slot.MustParseTimeOfDay(s)
		return &tod
	}

	testCases := []struct {
		name     string
		filter   Filter
		expected map[string][]int
	}{
		{
			name:   "Time window",
			filter: Filter{Start: at("09:30"), End: at("12:30")},
			expected: map[string][]int{
				"c1": {106, 112},
				"c2": {106, 112},
				"p1": {106},
			},
		},
		{
			name:     "Minimum duration drops everything",
			filter:   Filter{MinDuration: 120},
			expected: map[string][]int{},
		},
		{
			name:   "Type substring",
			filter: Filter{Type: "PICKLE"},
			expected: map[string][]int{
				"p1": {100, 106},
			},
		},
		{
			name:   "All features must match",
			filter: Filter{Features: []string{"light", "CLAY"}, Start: at("15:00")},
			expected: map[string][]int{
				"c1": {130, 136},
			},
		},
		{
			name:     "Feature with no match",
			filter:   Filter{Features: []string{"clay", "indoor"}},
			expected: map[string][]int{},
		},
		{
			name:   "Location",
			filter: Filter{Location: "sou", End: at("09:30")},
			expected: map[string][]int{
				"c2": {100},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(grid, Options{Filter: tc.filter})
			got := make(map[string][]int)
			for _, r := range res.Results {
				got[r.Court.ID] = startsOf(r.Blocks)
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestResolve_ClassifiesCourts(t *testing.T) {
	res := Resolve(newGrid(court("c1", "Court 1 -  Har-Tru (Lights) North", 100, 105)), Options{})
	require.Len(t, res.Results, 1)
	assert.Equal(t, Court{
		ID:       "c1",
		Name:     "Court 1 - Har-Tru (Lights) North",
		Category: "tennis",
		Type:     "tennis",
		Features: []string{"clay", "lights"},
		Location: "north",
	}, res.Results[0].Court)
}

func TestCourts_IncludesCourtsWithoutBlocks(t *testing.T) {
	grid := newGrid(
		court("c1", "Court 1 Clay", 100, 141),
		court("c2", "Padel 2", 100, 101),
	)
	courts := Courts(grid, nil)
	require.Len(t, courts, 2)
	assert.Equal(t, "padel", courts[1].Type)
	assert.Equal(t, []string{"clay"}, courts[0].Features)

	res := Resolve(grid, Options{})
	assert.Len(t, res.Results, 1)
}

func TestResolve_Aligned(t *testing.T) {
	// slot 100 taken: the greedy scan shifts every block by one slot, the aligned scan keeps the
	// calendar boundaries and loses only the first block.
	grid := newGrid(court("c", "Court", 100, 141, Reservation{FirstSlot: 100, LastSlot: 100}))
	cal := slot.Calendar{SlotMinutes: 15, BlockSlots: 6, FirstBlock: slot.TimeOfDay{Hour: 8}, LastBlock: slot.TimeOfDay{Hour: 17}}

	greedy := Resolve(grid, Options{Calendar: cal})
	require.Len(t, greedy.Results, 1)
	assert.Equal(t, []int{101, 107, 113, 119, 125, 131}, startsOf(greedy.Results[0].Blocks))

	aligned := Resolve(grid, Options{Calendar: cal, Aligned: true})
	require.Len(t, aligned.Results, 1)
	assert.Equal(t, []int{106, 112, 118, 124, 130, 136}, startsOf(aligned.Results[0].Blocks))
}

func TestBound_JSON(t *testing.T) {
	var gc struct {
		First Bound `json:"firstAvailableTS"`
		Last  Bound `json:"lastAvailableTS"`
		Other Bound `json:"other"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"firstAvailableTS": 100, "lastAvailableTS": "abc", "other": null}`), &gc))

	n, err := gc.First.Int()
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	_, err = gc.Last.Int()
	assert.ErrorIs(t, err, ErrMalformedBound)

	_, err = gc.Other.Int()
	assert.ErrorIs(t, err, ErrMissingBound)

	out, err := json.Marshal(IntBound(7))
	require.NoError(t, err)
	assert.Equal(t, "7", string(out))
}

func TestDayOffset(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		today    time.Time
		date     time.Time
		expected int
	}{
		{"Same day", time.Date(2024, 6, 10, 23, 59, 0, 0, ny), time.Date(2024, 6, 10, 0, 0, 0, 0, ny), 0},
		{"Late evening to tomorrow", time.Date(2024, 6, 10, 23, 59, 0, 0, ny), time.Date(2024, 6, 11, 0, 0, 0, 0, ny), 1},
		{"Across spring forward", time.Date(2024, 3, 9, 12, 0, 0, 0, ny), time.Date(2024, 3, 11, 0, 0, 0, 0, ny), 2},
		{"Across fall back", time.Date(2024, 11, 2, 0, 30, 0, 0, ny), time.Date(2024, 11, 9, 0, 0, 0, 0, ny), 7},
		{"Past date", time.Date(2024, 6, 10, 8, 0, 0, 0, ny), time.Date(2024, 6, 9, 0, 0, 0, 0, ny), -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DayOffset(tc.today, tc.date))
		})
	}
}
