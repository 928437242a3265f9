package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"github.com/daveremy/clubexpress-sdk/internal/model"
	"github.com/daveremy/clubexpress-sdk/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Broadcaster posts a message to a channel that is not tied to a subscription.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) error
}

// WorkerPool manages a pool of workers that announce newly opened blocks.
type WorkerPool struct {
	size         int
	jobs         chan string
	db           *gorm.DB
	webpush      *webpush.Options
	sender       NotificationSender
	broadcasters []Broadcaster
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, broadcasters ...Broadcaster) *WorkerPool {
	return &WorkerPool{
		size:         size,
		jobs:         make(chan string, size), // Buffered channel
		db:           db,
		webpush:      webpushOptions,
		sender:       &WebPushSender{}, // Use the real sender by default
		broadcasters: broadcasters,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case blockID := <-wp.jobs:
			log.Printf("Worker %d processing block %s", id, blockID)
			wp.announceBlock(ctx, blockID)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool. It blocks while the pool is saturated and gives up
// with ctx's error once ctx is done.
func (wp *WorkerPool) Dispatch(ctx context.Context, blockID string) error {
	select {
	case wp.jobs <- blockID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

// announceBlock looks up an open block and tells every interested party about it.
func (wp *WorkerPool) announceBlock(ctx context.Context, blockID string) {
	var block model.OpenBlock
	if err := wp.db.WithContext(ctx).First(&block, "id = ?", blockID).Error; err != nil {
		// Already taken again, or archived by a later scan.
		log.Printf("Block %s is no longer open: %v", blockID, err)
		return
	}

	courtLabel := block.CourtID
	var court model.Court
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&court, "id = ?", block.CourtID).Error; err != nil {
		log.Printf("Error fetching court %s: %v", block.CourtID, err)
	} else if court.Name != "" {
		courtLabel = court.Name
	}

	message := Message(courtLabel, block)
	for _, b := range wp.broadcasters {
		if err := b.Broadcast(ctx, message); err != nil {
			log.Printf("Error broadcasting block %s: %v", blockID, err)
		}
	}

	if wp.webpush == nil {
		return // web push not configured
	}

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_court_mapping scm ON scm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("scm.court_id = ?", block.CourtID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for court %s: %v", block.CourtID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for block %s", len(subscriptions), blockID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// Message is the text announcing an open block.
func Message(courtLabel string, b model.OpenBlock) string {
	day := b.Day
	if d, err := time.Parse(store.DayLayout, b.Day); err == nil {
		day = d.Format("Mon 2 Jan")
	}
	return fmt.Sprintf("%s is open on %s, %s-%s", courtLabel, day, b.Start, b.End)
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
