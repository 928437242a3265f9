package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"

	"github.com/daveremy/clubexpress-sdk/config"
	"github.com/daveremy/clubexpress-sdk/internal/api"
	"github.com/daveremy/clubexpress-sdk/internal/booking"
	"github.com/daveremy/clubexpress-sdk/internal/db"
	"github.com/daveremy/clubexpress-sdk/internal/gateway"
	"github.com/daveremy/clubexpress-sdk/internal/notification"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/store"
	"github.com/daveremy/clubexpress-sdk/internal/watcher"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "courtd ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	policy, err := cfg.BookingPolicy()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	calendar, err := cfg.Calendar()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys are not configured; web push notifications are disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	client, err := gateway.NewClient(cfg.Gateway, loc)
	if err != nil {
		logger.Fatalf("failed to create gateway client: %v", err)
	}
	var site gateway.Site = client
	if gridCache := gateway.NewGridCache(cfg.Gateway.Cache); gridCache != nil {
		if closer, ok := gridCache.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		site = gateway.NewCached(client, gridCache, time.Duration(cfg.Gateway.Cache.TTLSeconds)*time.Second, loc)
		logger.Printf("grid cache enabled (%s)", cfg.Gateway.Cache.Backend)
	}

	validator := rules.NewValidator(policy, rules.RealClock{Loc: loc})
	bookingSvc := booking.NewService(site, validator, booking.Options{
		Categories: cfg.Gateway.Categories,
		Calendar:   calendar,
		Aligned:    cfg.Policy.AlignedBlocks,
		Classifier: classifier,
		Recorder:   appStore,
	})

	var broadcasters []notification.Broadcaster
	if cfg.Telegram.Token != "" {
		tg, err := notification.NewTelegramBroadcaster(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Printf("telegram disabled: %v", err)
		} else {
			broadcasters = append(broadcasters, tg)
		}
	}
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, broadcasters...)

	watcherSvc, err := watcher.NewService(cfg, site, appStore, workerPool)
	if err != nil {
		logger.Fatalf("failed to create watcher: %v", err)
	}
	go watcherSvc.Run(ctx)

	handler := api.NewHandler(bookingSvc, appStore, webpushOptions, loc)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server),
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// SIGHUP reloads the reservation policy; anything else stops the daemon.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		reloadPolicy(logger, configPath, validator)
	}
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

func reloadPolicy(logger *log.Logger, configPath string, validator *rules.Validator) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("policy reload failed, keeping the current policy: %v", err)
		return
	}
	policy, err := cfg.BookingPolicy()
	if err != nil {
		logger.Printf("policy reload failed, keeping the current policy: %v", err)
		return
	}
	validator.SetPolicy(policy)
	logger.Printf("reservation policy reloaded from %s", configPath)
}
