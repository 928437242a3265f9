package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/daveremy/clubexpress-sdk/config"
	"github.com/daveremy/clubexpress-sdk/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	if cfg.RateLimitPerSec > 0 {
		api.Use(mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader))
	}

	// A non-positive TTL disables response caching.
	var caching gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second; ttl > 0 {
		handler.responses = cache.New(ttl, 2*ttl)
		caching = mw.Cache(handler.responses, ttl)
	}

	{
		api.GET("/availability", caching, handler.GetAvailability)
		api.GET("/courts", caching, handler.GetCourts)
		api.GET("/policy", handler.GetPolicy)

		api.GET("/bookings", handler.ListBookings)
		api.POST("/bookings", handler.CreateBooking)
		api.POST("/bookings/validate", handler.ValidateBooking)
		api.DELETE("/bookings/:id", handler.CancelBooking)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
