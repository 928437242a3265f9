package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daveremy/clubexpress-sdk/internal/parse"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/slot"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Policy     PolicyConfig     `yaml:"policy"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Courts     CourtsConfig     `yaml:"courts"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// TelegramConfig enables broadcast of newly opened blocks to one chat.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// ServerConfig holds the server-related configuration.
// A negative RateLimitPerSec or CacheTTLSeconds turns that middleware off; zero takes the default.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// GatewayConfig describes how to reach the reservation platform.
type GatewayConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Headers        map[string]string `yaml:"headers"`
	HTTPProxy      string            `yaml:"http_proxy"`
	Timezone       string            `yaml:"timezone"`
	MemberID       string            `yaml:"member_id"`
	Categories     []string          `yaml:"categories"`
	Paths          GatewayPaths      `yaml:"paths"`
	RequestsPerSec float64           `yaml:"requests_per_sec"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Cache          GridCacheConfig   `yaml:"cache"`
}

// GatewayPaths are the platform endpoints, relative to BaseURL.
type GatewayPaths struct {
	Grid     string `yaml:"grid"`
	Bookings string `yaml:"bookings"`
	Book     string `yaml:"book"`
	Cancel   string `yaml:"cancel"`
}

// GridCacheConfig selects where fetched grids are cached. An empty backend disables caching.
type GridCacheConfig struct {
	Backend       string `yaml:"backend"` // "memory" or "redis"
	TTLSeconds    int    `yaml:"ttl_seconds"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// PolicyConfig is the club's reservation policy and block calendar.
type PolicyConfig struct {
	SlotMinutes       int      `yaml:"slot_minutes"`
	BlockSlots        int      `yaml:"block_slots"`
	FirstBlock        string   `yaml:"first_block"`
	LastBlock         string   `yaml:"last_block"`
	MaxAdvanceDays    int      `yaml:"max_advance_days"`
	WindowOpensAt     string   `yaml:"window_opens_at"`
	MaxBookingsPerDay int      `yaml:"max_bookings_per_day"`
	ValidStartTimes   []string `yaml:"valid_start_times"` // overrides the calendar when set
	AlignedBlocks     bool     `yaml:"aligned_blocks"`
}

// WatcherConfig controls the background availability scan.
type WatcherConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	DaysAhead       int           `yaml:"days_ahead"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// CourtsConfig adds classifier rules ahead of the built-in ones.
type CourtsConfig struct {
	Rules []CourtRule `yaml:"rules"`
}

// CourtRule tags courts whose display name matches Pattern.
type CourtRule struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
	Tag     string `yaml:"tag"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec == 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds == 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Gateway.Timezone == "" {
		cfg.Gateway.Timezone = "Local"
	}
	if len(cfg.Gateway.Categories) == 0 {
		cfg.Gateway.Categories = []string{"tennis"}
	}
	if cfg.Gateway.Paths.Grid == "" {
		cfg.Gateway.Paths.Grid = "/api/reservations/grid"
	}
	if cfg.Gateway.Paths.Bookings == "" {
		cfg.Gateway.Paths.Bookings = "/content.aspx?page_id=reservations"
	}
	if cfg.Gateway.Paths.Book == "" {
		cfg.Gateway.Paths.Book = "/reservations/book"
	}
	if cfg.Gateway.Paths.Cancel == "" {
		cfg.Gateway.Paths.Cancel = "/reservations/cancel"
	}
	if cfg.Gateway.RequestsPerSec <= 0 {
		cfg.Gateway.RequestsPerSec = 2
	}
	if cfg.Gateway.TimeoutSeconds <= 0 {
		cfg.Gateway.TimeoutSeconds = 30
	}
	if cfg.Gateway.Cache.TTLSeconds <= 0 {
		cfg.Gateway.Cache.TTLSeconds = 60
	}

	if cfg.Policy.SlotMinutes <= 0 {
		cfg.Policy.SlotMinutes = slot.DefaultSlotMinutes
	}
	if cfg.Policy.BlockSlots <= 0 {
		cfg.Policy.BlockSlots = 6
	}
	if cfg.Policy.FirstBlock == "" {
		cfg.Policy.FirstBlock = "08:00"
	}
	if cfg.Policy.LastBlock == "" {
		cfg.Policy.LastBlock = "20:00"
	}
	if cfg.Policy.MaxAdvanceDays <= 0 {
		cfg.Policy.MaxAdvanceDays = 7
	}
	if cfg.Policy.WindowOpensAt == "" {
		cfg.Policy.WindowOpensAt = "07:00"
	}
	if cfg.Policy.MaxBookingsPerDay <= 0 {
		cfg.Policy.MaxBookingsPerDay = 1
	}

	if cfg.Watcher.IntervalSeconds <= 0 {
		cfg.Watcher.IntervalSeconds = 300
	}
	cfg.Watcher.Interval = time.Duration(cfg.Watcher.IntervalSeconds) * time.Second
	if cfg.Watcher.DaysAhead <= 0 {
		cfg.Watcher.DaysAhead = cfg.Policy.MaxAdvanceDays
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

func (cfg *Config) validate() error {
	if _, err := cfg.Calendar(); err != nil {
		return err
	}
	if _, err := cfg.BookingPolicy(); err != nil {
		return err
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if _, err := cfg.Classifier(); err != nil {
		return err
	}
	switch cfg.Gateway.Cache.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("gateway.cache.backend: unknown backend %q", cfg.Gateway.Cache.Backend)
	}
	return nil
}

// Location is the club's time zone.
func (cfg *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Gateway.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Gateway.Timezone, err)
	}
	return loc, nil
}

// Calendar is the block template shared by availability resolution and booking validation.
func (cfg *Config) Calendar() (slot.Calendar, error) {
	first, err := slot.ParseTimeOfDay(cfg.Policy.FirstBlock)
	if err != nil {
		return slot.Calendar{}, fmt.Errorf("policy.first_block: %w", err)
	}
	last, err := slot.ParseTimeOfDay(cfg.Policy.LastBlock)
	if err != nil {
		return slot.Calendar{}, fmt.Errorf("policy.last_block: %w", err)
	}
	cal := slot.Calendar{
		SlotMinutes: cfg.Policy.SlotMinutes,
		BlockSlots:  cfg.Policy.BlockSlots,
		FirstBlock:  first,
		LastBlock:   last,
	}
	if err := cal.Validate(); err != nil {
		return slot.Calendar{}, fmt.Errorf("policy: %w", err)
	}
	return cal, nil
}

// BookingPolicy builds the validator policy. Valid start times come from the calendar unless
// listed explicitly.
func (cfg *Config) BookingPolicy() (rules.Policy, error) {
	cal, err := cfg.Calendar()
	if err != nil {
		return rules.Policy{}, err
	}
	opensAt, err := slot.ParseTimeOfDay(cfg.Policy.WindowOpensAt)
	if err != nil {
		return rules.Policy{}, fmt.Errorf("policy.window_opens_at: %w", err)
	}

	p := rules.PolicyFromCalendar(cal, cfg.Policy.MaxAdvanceDays, opensAt)
	p.MaxBookingsPerDay = cfg.Policy.MaxBookingsPerDay
	if len(cfg.Policy.ValidStartTimes) > 0 {
		p.ValidStartTimes = nil
		for _, s := range cfg.Policy.ValidStartTimes {
			tod, err := slot.ParseTimeOfDay(s)
			if err != nil {
				return rules.Policy{}, fmt.Errorf("policy.valid_start_times: %w", err)
			}
			p.ValidStartTimes = append(p.ValidStartTimes, tod)
		}
	}
	return p, nil
}

// Classifier compiles the configured court rules in front of the defaults.
func (cfg *Config) Classifier() (*parse.Classifier, error) {
	extra := make([]parse.Rule, 0, len(cfg.Courts.Rules))
	for i, r := range cfg.Courts.Rules {
		rule, err := parse.NewRule(parse.Kind(r.Kind), r.Pattern, r.Tag)
		if err != nil {
			return nil, fmt.Errorf("courts.rules[%d]: %w", i, err)
		}
		extra = append(extra, rule)
	}
	return parse.NewClassifier(extra...), nil
}
