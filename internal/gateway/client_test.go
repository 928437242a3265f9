package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daveremy/clubexpress-sdk/config"
	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

const gridBody = `{
  "code": 0,
  "data": {
    "date": "2024-06-10",
    "firstSlot": 68,
    "courts": [
      {"id": "c1", "name": "Court 1 Clay", "firstAvailable": 100, "lastAvailable": "141",
       "reservations": [{"firstSlot": 106, "lastSlot": 111, "occupant": "Smith", "usage": "Lesson"}]},
      {"id": "c2", "name": "Court 2", "firstAvailable": "soon", "lastAvailable": 141}
    ]
  }
}`

const bookingsPage = `<html><body>
<table id="reservations">
  <tr><th>Court</th><th>Date</th><th>Time</th><th>Status</th></tr>
  <tr data-booking-id="R-1" data-court-id="c1">
    <td class="court">Court&nbsp;1  Clay</td><td class="date">06/10/2024</td>
    <td class="time">8:00 AM - 9:30 AM</td><td class="status">Confirmed</td>
  </tr>
  <tr data-booking-id="R-2" data-court-id="c3">
    <td class="court">Court 3</td><td class="date">06/12/2024</td>
    <td class="time">6:30 PM - 8:00 PM</td><td class="status">Cancelled</td>
  </tr>
  <tr data-booking-id="R-3" data-court-id="c3">
    <td class="court">Court 3</td><td class="date">07/01/2024</td>
    <td class="time">09:30 - 11:00</td><td class="status">Confirmed</td>
  </tr>
  <tr data-booking-id="R-4" data-court-id="c3">
    <td class="court">Court 3</td><td class="date">tomorrow</td>
    <td class="time">09:30 - 11:00</td><td class="status">Confirmed</td>
  </tr>
</table>
</body></html>`

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(config.GatewayConfig{
		BaseURL:  url,
		Headers:  map[string]string{"X-Club": "riverside"},
		MemberID: "M42",
		Paths: config.GatewayPaths{
			Grid:     "/api/grid",
			Bookings: "/reservations",
			Book:     "/reservations/book",
			Cancel:   "/reservations/cancel",
		},
	}, time.UTC)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestFetchGrid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/grid", r.URL.Path)
		assert.Equal(t, "riverside", r.Header.Get("X-Club"))

		var payload gridRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, gridRequest{Category: "tennis", DayOffset: 3, MemberID: "M42"}, payload)

		io.WriteString(w, gridBody)
	}))
	defer server.Close()

	grid, err := newTestClient(t, server.URL).FetchGrid(context.Background(), "tennis", 3)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), grid.Date)
	assert.Equal(t, 68, grid.FirstSlot)
	assert.Equal(t, "tennis", grid.Category)
	require.Len(t, grid.Courts, 2)
	assert.Equal(t, []availability.Reservation{{FirstSlot: 106, LastSlot: 111, Occupant: "Smith", Usage: "Lesson"}}, grid.Courts[0].Reservations)

	res := availability.Resolve(grid, availability.Options{})
	require.Len(t, res.Results, 1)
	assert.Len(t, res.Results[0].Blocks, 6)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "c2", res.Failures[0].CourtID)
	assert.ErrorIs(t, res.Failures[0], availability.ErrMalformedBound)
}

func TestFetchGrid_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		checkFn func(t *testing.T, err error)
	}{
		{
			name:   "Non-200",
			status: http.StatusServiceUnavailable,
			checkFn: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusServiceUnavailable, se.Code)
			},
		},
		{
			name:   "Application error",
			status: http.StatusOK,
			body:   `{"code": 17, "data": {}}`,
			checkFn: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "non-zero application code: 17")
			},
		},
		{
			name:   "Garbage",
			status: http.StatusOK,
			body:   `<html>`,
			checkFn: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "unmarshal")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).FetchGrid(context.Background(), "tennis", 0)
			require.Error(t, err)
			tc.checkFn(t, err)
		})
	}
}

func TestFetchGrid_DateDefaultsToOffset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{"firstSlot":0,"courts":[]}}`)
	}))
	defer server.Close()

	grid, err := newTestClient(t, server.URL).FetchGrid(context.Background(), "padel", 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), grid.Date)
}

func TestFetchBookings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "2024-06-07", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-06-14", r.URL.Query().Get("to"))
		assert.Equal(t, "M42", r.URL.Query().Get("member_id"))
		io.WriteString(w, bookingsPage)
	}))
	defer server.Close()

	from := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)
	bookings, err := newTestClient(t, server.URL).FetchBookings(context.Background(), from, from.AddDate(0, 0, 7))
	require.NoError(t, err)

	// R-3 is out of range and R-4 is unparseable.
	require.Len(t, bookings, 2)
	assert.Equal(t, rules.Booking{
		ID:        "R-1",
		CourtID:   "c1",
		CourtName: "Court 1 Clay",
		Date:      time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Start:     slot.TimeOfDay{Hour: 8},
		End:       slot.TimeOfDay{Hour: 9, Minute: 30},
		Status:    rules.StatusConfirmed,
	}, bookings[0])
	assert.Equal(t, rules.StatusCancelled, bookings[1].Status)
	assert.Equal(t, slot.TimeOfDay{Hour: 18, Minute: 30}, bookings[1].Start)
	assert.Equal(t, slot.TimeOfDay{Hour: 20}, bookings[1].End)
}

func TestSubmitBooking(t *testing.T) {
	req := rules.Request{
		CourtID:      "c1",
		Date:         time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Start:        slot.TimeOfDay{Hour: 9, Minute: 30},
		End:          slot.TimeOfDay{Hour: 11},
		Purpose:      "Singles",
		Participants: []string{"M7", "M9"},
	}

	t.Run("Confirmed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/reservations/book", r.URL.Path)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "c1", r.PostForm.Get("court_id"))
			assert.Equal(t, "2024-06-10", r.PostForm.Get("date"))
			assert.Equal(t, "09:30", r.PostForm.Get("start"))
			assert.Equal(t, "11:00", r.PostForm.Get("end"))
			assert.Equal(t, "M42", r.PostForm.Get("member_id"))
			assert.Equal(t, []string{"M7", "M9"}, r.PostForm["participant"])
			io.WriteString(w, `<div class="confirmation" data-booking-id="R-77">Your reservation is confirmed.</div>`)
		}))
		defer server.Close()

		b, err := newTestClient(t, server.URL).SubmitBooking(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "R-77", b.ID)
		assert.Equal(t, rules.StatusConfirmed, b.Status)
		assert.Equal(t, req.Start, b.Start)
	})

	t.Run("Rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<ul class="validation-summary-errors"><li>Court is
			 no longer available.</li></ul>`)
		}))
		defer server.Close()

		_, err := newTestClient(t, server.URL).SubmitBooking(context.Background(), req)
		assert.ErrorIs(t, err, ErrRejected)
		var re *RejectedError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "Court is no longer available.", re.Message)
	})

	t.Run("Unrecognized page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<html><body>Please log in</body></html>`)
		}))
		defer server.Close()

		_, err := newTestClient(t, server.URL).SubmitBooking(context.Background(), req)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRejected)
	})
}

func TestSubmitCancellation(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("booking_id") == "R-1" {
			assert.Equal(t, "rain", r.PostForm.Get("reason"))
			io.WriteString(w, `<p class="confirmation">Cancelled.</p>`)
			return
		}
		io.WriteString(w, `<p class="error-message">Cancellation window has closed.</p>`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	assert.NoError(t, c.SubmitCancellation(context.Background(), "R-1", "rain"))
	assert.ErrorIs(t, c.SubmitCancellation(context.Background(), "R-2", ""), ErrRejected)
	assert.Equal(t, int32(2), calls.Load())
}

func TestParseClock(t *testing.T) {
	testCases := []struct {
		in       string
		expected slot.TimeOfDay
		wantErr  bool
	}{
		{in: "8:00 AM", expected: slot.TimeOfDay{Hour: 8}},
		{in: " 12:15 pm", expected: slot.TimeOfDay{Hour: 12, Minute: 15}},
		{in: "6:30PM", expected: slot.TimeOfDay{Hour: 18, Minute: 30}},
		{in: "21:00", expected: slot.TimeOfDay{Hour: 21}},
		{in: "noon", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseClock(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
