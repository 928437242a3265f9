package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/daveremy/clubexpress-sdk/internal/booking"
	"github.com/daveremy/clubexpress-sdk/internal/gateway"
	"github.com/daveremy/clubexpress-sdk/internal/mw"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/store"
)

const dateLayout = "2006-01-02"

// Handler holds shared dependencies for API handlers.
type Handler struct {
	booking   *booking.Service
	store     store.Store
	webpush   *webpush.Options
	loc       *time.Location
	responses *cache.Cache // GET response cache, flushed when bookings change
}

// NewHandler creates a new API handler. Dates in requests are read in loc.
func NewHandler(svc *booking.Service, s store.Store, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		booking: svc,
		store:   s,
		webpush: webpushOptions,
		loc:     loc,
	}
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, h.loc)
}

func (h *Handler) bookingsChanged() {
	if h.responses != nil {
		mw.Invalidate(h.responses, "/api/availability")
		mw.Invalidate(h.responses, "/api/courts")
	}
}

// writeError maps service errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var v *rules.Violation
	var rejected *gateway.RejectedError
	switch {
	case errors.As(err, &v):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": v.Reason, "rule": v.Rule})
	case errors.As(err, &rejected):
		c.JSON(http.StatusConflict, gin.H{"error": rejected.Message})
	case errors.Is(err, booking.ErrPastDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "reservation platform unavailable"})
	}
}
