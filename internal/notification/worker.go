package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/model"
	"room-status-backend/internal/status"
)

// ErrQueueFull is returned by OnChange when no worker can take the job.
var ErrQueueFull = errors.New("notification queue full")

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

// Store is what the workers need from persistence.
type Store interface {
	GetRoom(ctx context.Context, id int64) (model.Room, error)
	SubscriptionsForRoom(ctx context.Context, roomID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Kind selects the message sent for a job.
type Kind int

const (
	// RoomReady is sent when a room has been cleaned and is available again.
	RoomReady Kind = iota
	// RoomStuck is sent when a room has been waiting for cleaning too long.
	RoomStuck
)

// Job is one notification fan-out for a room.
type Job struct {
	RoomID int64
	Kind   Kind
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   Store
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st Store, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case job := <-wp.jobs:
			wp.logger.Debug("processing notification job", zap.Int("worker", id), zap.Int64("room_id", job.RoomID))
			wp.sendNotificationsForRoom(ctx, job)
		case <-ctx.Done():
			wp.logger.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch sends a job to the worker pool, waiting for room in the queue
// until ctx is done.
func (wp *WorkerPool) Dispatch(ctx context.Context, job Job) error {
	select {
	case wp.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch notification for room %d: %w", job.RoomID, ctx.Err())
	}
}

// OnChange queues a room-ready notification when a room finishes cleaning.
// It runs on the request path, so a full queue drops the job.
func (wp *WorkerPool) OnChange(_ context.Context, c lifecycle.Change) error {
	if c.Old != status.Cleaning || c.New != status.Available {
		return nil
	}
	select {
	case wp.jobs <- Job{RoomID: c.RoomID, Kind: RoomReady}:
		return nil
	default:
		return fmt.Errorf("room-ready notification for room %d: %w", c.RoomID, ErrQueueFull)
	}
}

func message(kind Kind, roomLabel string) string {
	switch kind {
	case RoomStuck:
		return fmt.Sprintf("Room %s still needs cleaning.", roomLabel)
	default:
		return fmt.Sprintf("Room %s is available.", roomLabel)
	}
}

// sendNotificationsForRoom fetches subscriptions and sends notifications for a given room.
func (wp *WorkerPool) sendNotificationsForRoom(ctx context.Context, job Job) {
	subscriptions, err := wp.store.SubscriptionsForRoom(ctx, job.RoomID)
	if err != nil {
		wp.logger.Error("failed to fetch subscriptions", zap.Int64("room_id", job.RoomID), zap.Error(err))
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.logger.Info("sending notifications", zap.Int("count", len(subscriptions)), zap.Int64("room_id", job.RoomID))

	roomLabel := fmt.Sprintf("%d", job.RoomID)
	if room, err := wp.store.GetRoom(ctx, job.RoomID); err != nil {
		wp.logger.Warn("failed to fetch room", zap.Int64("room_id", job.RoomID), zap.Error(err))
	} else if room.Name != "" {
		roomLabel = room.Name
	}

	payload := []byte(message(job.Kind, roomLabel))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
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
		wp.logger.Error("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Expired subscription
	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
