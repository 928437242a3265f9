package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/daveremy/clubexpress-sdk/config"
	"github.com/daveremy/clubexpress-sdk/internal/api"
	"github.com/daveremy/clubexpress-sdk/internal/booking"
	"github.com/daveremy/clubexpress-sdk/internal/db"
	"github.com/daveremy/clubexpress-sdk/internal/gateway"
	"github.com/daveremy/clubexpress-sdk/internal/model"
	"github.com/daveremy/clubexpress-sdk/internal/notification"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
	"github.com/daveremy/clubexpress-sdk/internal/store"
	"github.com/daveremy/clubexpress-sdk/internal/watcher"
)

// fakePlatform serves the grid, reservation list and booking forms of a club with two courts.
type fakePlatform struct {
	mu        sync.Mutex
	lessonAt8 bool // a lesson takes court c1 from 08:00 to 09:30
	booked    []string
	cancelled []string
}

func (p *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch r.URL.Path {
	case "/api/grid":
		var req struct {
			Category  string `json:"category"`
			DayOffset int    `json:"dayOffset"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		reservations := "[]"
		if p.lessonAt8 {
			reservations = `[{"firstSlot": 100, "lastSlot": 105, "usage": "Lesson"}]`
		}
		date := time.Now().UTC().AddDate(0, 0, req.DayOffset).Format("2006-01-02")
		fmt.Fprintf(w, `{"code": 0, "data": {"date": %q, "firstSlot": 68, "courts": [
			{"id": "c1", "name": "Court 1 Clay", "firstAvailable": 100, "lastAvailable": 111, "reservations": %s},
			{"id": "c2", "name": "Court 2", "firstAvailable": 100, "lastAvailable": 100}
		]}}`, date, reservations)
	case "/reservations":
		io.WriteString(w, `<html><body><table id="reservations"></table></body></html>`)
	case "/reservations/book":
		r.ParseForm()
		p.booked = append(p.booked, r.PostForm.Get("court_id")+" "+r.PostForm.Get("start"))
		io.WriteString(w, `<div class="confirmation" data-booking-id="R-77">Your reservation is confirmed.</div>`)
	case "/reservations/cancel":
		r.ParseForm()
		p.cancelled = append(p.cancelled, r.PostForm.Get("booking_id"))
		io.WriteString(w, `<div class="confirmation">Reservation cancelled.</div>`)
	default:
		http.NotFound(w, r)
	}
}

type chanBroadcaster chan string

func (c chanBroadcaster) Broadcast(_ context.Context, message string) error {
	c <- message
	return nil
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			BaseURL:    baseURL,
			Timezone:   "UTC",
			Categories: []string{"tennis"},
			Paths: config.GatewayPaths{
				Grid:     "/api/grid",
				Bookings: "/reservations",
				Book:     "/reservations/book",
				Cancel:   "/reservations/cancel",
			},
		},
		Policy: config.PolicyConfig{
			SlotMinutes:       15,
			BlockSlots:        6,
			FirstBlock:        "08:00",
			LastBlock:         "20:00",
			MaxAdvanceDays:    7,
			WindowOpensAt:     "07:00",
			MaxBookingsPerDay: 1,
		},
		Watcher:    config.WatcherConfig{Enabled: true, Interval: time.Minute},
		WorkerPool: config.WorkerPoolConfig{Size: 1},
	}
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	t.Cleanup(func() { sqlDB.Close() })
	return testDB
}

// TestOpenBlockLifecycle scans the platform twice and verifies that a block taken between the
// scans moves from the hot table to the history table, and that only new blocks are announced.
func TestOpenBlockLifecycle(t *testing.T) {
	platform := &fakePlatform{}
	server := httptest.NewServer(platform)
	defer server.Close()

	testDB := setupDB(t)
	cfg := testConfig(server.URL)
	client, err := gateway.NewClient(cfg.Gateway, time.UTC)
	require.NoError(t, err)
	appStore := store.NewGormStore(testDB)

	announced := make(chanBroadcaster, 8)
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, testDB, nil, announced)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workerPool.Start(ctx)

	watcherSvc, err := watcher.NewService(cfg, client, appStore, workerPool)
	require.NoError(t, err)

	today := time.Now().UTC().Format(store.DayLayout)

	t.Run("Cycle 1: Blocks Open", func(t *testing.T) {
		watcherSvc.ScanOnce(ctx)

		var courts []model.Court
		require.NoError(t, testDB.Order("id").Find(&courts).Error)
		require.Len(t, courts, 2, "Courts without a free block are still recorded")
		assert.Equal(t, []string{"clay"}, courts[0].Features)

		var open []model.OpenBlock
		require.NoError(t, testDB.Order("start").Find(&open).Error)
		require.Len(t, open, 2)
		assert.Equal(t, store.BlockID("c1", today, "08:00"), open[0].ID)
		assert.Equal(t, "09:30", open[1].Start)
		assert.Equal(t, "11:00", open[1].End)

		got := []string{receive(t, announced), receive(t, announced)}
		slices.Sort(got)
		assert.Regexp(t, `^Court 1 Clay is open on \w{3} \d{1,2} \w{3}, 08:00-09:30$`, got[0])
		assert.True(t, strings.HasSuffix(got[1], ", 09:30-11:00"), got[1])
	})

	t.Run("Cycle 2: Block Taken", func(t *testing.T) {
		platform.mu.Lock()
		platform.lessonAt8 = true
		platform.mu.Unlock()

		watcherSvc.ScanOnce(ctx)

		var open []model.OpenBlock
		require.NoError(t, testDB.Find(&open).Error)
		require.Len(t, open, 1)
		assert.Equal(t, store.BlockID("c1", today, "09:30"), open[0].ID)

		var history []model.BlockHistory
		require.NoError(t, testDB.Find(&history).Error)
		require.Len(t, history, 1)
		assert.Equal(t, store.BlockID("c1", today, "08:00"), history[0].BlockID)
		assert.False(t, history[0].ClosedAt.Before(history[0].OpenedAt))

		select {
		case msg := <-announced:
			t.Fatalf("unexpected announcement %q", msg)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func receive(t *testing.T, c chanBroadcaster) string {
	t.Helper()
	select {
	case msg := <-c:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for announcement")
		return ""
	}
}

// TestBookingFlow books and cancels through the HTTP API against the fake platform and checks
// the local booking record.
func TestBookingFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	platform := &fakePlatform{}
	server := httptest.NewServer(platform)
	defer server.Close()

	testDB := setupDB(t)
	cfg := testConfig(server.URL)
	client, err := gateway.NewClient(cfg.Gateway, time.UTC)
	require.NoError(t, err)
	appStore := store.NewGormStore(testDB)

	policy, err := cfg.BookingPolicy()
	require.NoError(t, err)
	svc := booking.NewService(client, rules.NewValidator(policy, rules.RealClock{Loc: time.UTC}), booking.Options{
		Categories: cfg.Gateway.Categories,
		Recorder:   appStore,
	})
	router := api.NewRouter(api.NewHandler(svc, appStore, nil, time.UTC), config.ServerConfig{CacheTTLSeconds: 60})

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	body, _ := json.Marshal(map[string]any{
		"court_id": "c1", "date": tomorrow, "start": "09:30", "end": "11:00",
		"purpose": "ladder match", "participants": []string{"M42", "M77"},
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []string{"c1 09:30"}, platform.booked)

	var record model.BookingRecord
	require.NoError(t, testDB.First(&record, "platform_id = ?", "R-77").Error)
	assert.Equal(t, tomorrow, record.Day)
	assert.Equal(t, "ladder match", record.Purpose)
	assert.Equal(t, []string{"M42", "M77"}, record.Participants)
	assert.Equal(t, string(rules.StatusConfirmed), record.Status)

	// An off-calendar start never reaches the platform.
	body, _ = json.Marshal(map[string]any{"court_id": "c1", "date": tomorrow, "start": "09:00", "end": "10:30"})
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, platform.booked, 1)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/api/bookings/R-77?reason=rain", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"R-77"}, platform.cancelled)

	require.NoError(t, testDB.First(&record, "platform_id = ?", "R-77").Error)
	assert.Equal(t, string(rules.StatusCancelled), record.Status)
}
