package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/daveremy/clubexpress-sdk/config"
	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
)

// GridCache stores fetched grids under "category:date" keys.
type GridCache interface {
	Get(ctx context.Context, key string) (availability.Grid, bool, error)
	Set(ctx context.Context, key string, g availability.Grid, ttl time.Duration) error
	// Invalidate drops the grids of category on date. An empty category or date matches all.
	Invalidate(ctx context.Context, category, date string) error
}

func gridKey(category, date string) string {
	return category + ":" + date
}

func keyMatches(key, category, date string) bool {
	cat, day, ok := strings.Cut(key, ":")
	return ok && (category == "" || cat == category) && (date == "" || day == date)
}

// MemoryCache keeps grids in process.
type MemoryCache struct {
	store *cache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: cache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (availability.Grid, bool, error) {
	v, found := m.store.Get(key)
	if !found {
		return availability.Grid{}, false, nil
	}
	return v.(availability.Grid), true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, g availability.Grid, ttl time.Duration) error {
	m.store.Set(key, g, ttl)
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, category, date string) error {
	for key := range m.store.Items() {
		if keyMatches(key, category, date) {
			m.store.Delete(key)
		}
	}
	return nil
}

// RedisCache shares grids between daemon instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, prefix: "grid:"}
}

func (r *RedisCache) Get(ctx context.Context, key string) (availability.Grid, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return availability.Grid{}, false, nil
	}
	if err != nil {
		return availability.Grid{}, false, err
	}
	var g availability.Grid
	if err := json.Unmarshal(val, &g); err != nil {
		return availability.Grid{}, false, fmt.Errorf("failed to decode cached grid %s: %w", key, err)
	}
	return g, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, g availability.Grid, ttl time.Duration) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, ttl).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context, category, date string) error {
	if category == "" {
		category = "*"
	}
	if date == "" {
		date = "*"
	}
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+gridKey(category, date), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached grids: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Close releases the redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// NewGridCache returns the cache selected by cfg, or nil when caching is off.
func NewGridCache(cfg config.GridCacheConfig) GridCache {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	switch cfg.Backend {
	case "memory":
		return NewMemoryCache(ttl)
	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil
	}
}

// Cached serves grids from a cache and delegates everything else to the wrapped site. Entries
// are keyed by category and calendar date, so a cached day never answers for the next one. A
// successful booking or cancellation evicts the grids it changed.
type Cached struct {
	Site
	cache GridCache
	ttl   time.Duration
	loc   *time.Location
	now   func() time.Time
}

// NewCached wraps site. A nil cache disables caching.
func NewCached(site Site, c GridCache, ttl time.Duration, loc *time.Location) *Cached {
	if loc == nil {
		loc = time.Local
	}
	return &Cached{Site: site, cache: c, ttl: ttl, loc: loc, now: time.Now}
}

func (c *Cached) key(category string, dayOffset int) string {
	return gridKey(category, c.now().In(c.loc).AddDate(0, 0, dayOffset).Format(dateLayout))
}

func (c *Cached) FetchGrid(ctx context.Context, category string, dayOffset int) (availability.Grid, error) {
	if c.cache == nil {
		return c.Site.FetchGrid(ctx, category, dayOffset)
	}

	key := c.key(category, dayOffset)
	if g, found, err := c.cache.Get(ctx, key); err != nil {
		log.Printf("Warning: grid cache lookup for %s failed: %v", key, err)
	} else if found {
		return g, nil
	}
	return c.fetchAndStore(ctx, key, category, dayOffset)
}

// RefreshGrid fetches a grid from the platform even when a cached copy exists, and replaces it.
func (c *Cached) RefreshGrid(ctx context.Context, category string, dayOffset int) (availability.Grid, error) {
	if c.cache == nil {
		return c.Site.FetchGrid(ctx, category, dayOffset)
	}
	return c.fetchAndStore(ctx, c.key(category, dayOffset), category, dayOffset)
}

func (c *Cached) fetchAndStore(ctx context.Context, key, category string, dayOffset int) (availability.Grid, error) {
	g, err := c.Site.FetchGrid(ctx, category, dayOffset)
	if err != nil {
		return availability.Grid{}, err
	}
	if err := c.cache.Set(ctx, key, g, c.ttl); err != nil {
		log.Printf("Warning: failed to cache grid %s: %v", key, err)
	}
	return g, nil
}

// SubmitBooking books through the wrapped site and evicts the booked day. A request without a
// category evicts every category of that day.
func (c *Cached) SubmitBooking(ctx context.Context, req rules.Request) (rules.Booking, error) {
	b, err := c.Site.SubmitBooking(ctx, req)
	if err != nil {
		return b, err
	}
	c.invalidate(ctx, req.Category, req.Date.Format(dateLayout))
	return b, nil
}

// SubmitCancellation cancels through the wrapped site. The booking's day is unknown here, so
// every cached grid is evicted.
func (c *Cached) SubmitCancellation(ctx context.Context, bookingID, reason string) error {
	if err := c.Site.SubmitCancellation(ctx, bookingID, reason); err != nil {
		return err
	}
	c.invalidate(ctx, "", "")
	return nil
}

func (c *Cached) invalidate(ctx context.Context, category, date string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, category, date); err != nil {
		log.Printf("Warning: failed to evict cached grids (%q, %q): %v", category, date, err)
	}
}
