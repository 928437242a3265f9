package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/booking"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

type availabilityResponse struct {
	*booking.Availability
	Failures []failureResponse   `json:"failures,omitempty"`
	Grids    []availability.Grid `json:"grids,omitempty"`
}

type failureResponse struct {
	CourtID string `json:"courtId"`
	Error   string `json:"error"`
}

// GetAvailability handles GET /api/availability?date=2024-06-10&category=tennis&feature=clay.
func (h *Handler) GetAvailability(c *gin.Context) {
	q, err := h.availabilityQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.booking.FindAvailability(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := availabilityResponse{Availability: res, Grids: res.Grids}
	if resp.Results == nil {
		resp.Results = []availability.Result{}
	}
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, failureResponse{CourtID: f.CourtID, Error: f.Err.Error()})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) availabilityQuery(c *gin.Context) (booking.Query, error) {
	var q booking.Query

	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return q, errBadParam("date", "use YYYY-MM-DD")
	}
	q.Date = date
	q.Categories = c.QueryArray("category")

	if s := c.Query("start"); s != "" {
		start, err := slot.ParseTimeOfDay(s)
		if err != nil {
			return q, errBadParam("start", "use HH:MM")
		}
		q.Filter.Start = &start
	}
	if s := c.Query("end"); s != "" {
		end, err := slot.ParseTimeOfDay(s)
		if err != nil {
			return q, errBadParam("end", "use HH:MM")
		}
		q.Filter.End = &end
	}
	if s := c.Query("min_duration"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, errBadParam("min_duration", "minutes expected")
		}
		q.Filter.MinDuration = n
	}
	q.Filter.Type = c.Query("type")
	q.Filter.Features = c.QueryArray("feature")
	q.Filter.Location = c.Query("location")
	q.IncludeGrids, _ = strconv.ParseBool(c.Query("include_grids"))
	return q, nil
}

type paramError struct {
	name, hint string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + ": " + e.hint
}

func errBadParam(name, hint string) error {
	return &paramError{name: name, hint: hint}
}
