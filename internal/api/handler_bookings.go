package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

type bookingRequest struct {
	CourtID      string          `json:"court_id" binding:"required"`
	Date         string          `json:"date" binding:"required"`
	Start        *slot.TimeOfDay `json:"start" binding:"required"`
	End          *slot.TimeOfDay `json:"end" binding:"required"`
	Purpose      string          `json:"purpose"`
	Category     string          `json:"category"`
	Participants []string        `json:"participants"`
}

func (h *Handler) bindBooking(c *gin.Context) (rules.Request, bool) {
	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return rules.Request{}, false
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadParam("date", "use YYYY-MM-DD").Error()})
		return rules.Request{}, false
	}
	return rules.Request{
		CourtID:      req.CourtID,
		Date:         date,
		Start:        *req.Start,
		End:          *req.End,
		Purpose:      req.Purpose,
		Category:     req.Category,
		Participants: req.Participants,
	}, true
}

// ValidateBooking handles POST /api/bookings/validate. Nothing is submitted to the platform.
func (h *Handler) ValidateBooking(c *gin.Context) {
	req, ok := h.bindBooking(c)
	if !ok {
		return
	}
	if err := h.booking.ValidateBooking(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// CreateBooking handles POST /api/bookings.
func (h *Handler) CreateBooking(c *gin.Context) {
	req, ok := h.bindBooking(c)
	if !ok {
		return
	}
	b, err := h.booking.Book(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.bookingsChanged()
	c.JSON(http.StatusCreated, b)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelBooking handles DELETE /api/bookings/{id}. The reason may come in the body or the query.
func (h *Handler) CancelBooking(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = c.Query("reason")
	}

	if err := h.booking.Cancel(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	h.bookingsChanged()
	c.Status(http.StatusNoContent)
}

// ListBookings handles GET /api/bookings?from=&to=. The range defaults to today through the end
// of the booking window.
func (h *Handler) ListBookings(c *gin.Context) {
	now := h.booking.Validator().Now().In(h.loc)
	from := slot.StartOfDay(now)
	to := from.AddDate(0, 0, h.booking.Validator().Policy().MaxAdvanceDays)

	var err error
	if s := c.Query("from"); s != "" {
		if from, err = h.parseDate(s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBadParam("from", "use YYYY-MM-DD").Error()})
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = h.parseDate(s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBadParam("to", "use YYYY-MM-DD").Error()})
			return
		}
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is before from"})
		return
	}

	bookings, err := h.booking.Bookings(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if bookings == nil {
		bookings = []rules.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

// GetPolicy returns the reservation policy currently enforced.
func (h *Handler) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.booking.Validator().Policy())
}
