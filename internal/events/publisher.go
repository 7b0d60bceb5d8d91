// Package events publishes committed status changes to a Redis stream.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"room-status-backend/config"
	"room-status-backend/internal/lifecycle"
)

// DefaultMaxLen caps the stream length (approximately).
const DefaultMaxLen = 10000

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Publisher appends every change to a stream with XADD.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: DefaultMaxLen}
}

// OnChange publishes c.
func (p *Publisher) OnChange(ctx context.Context, c lifecycle.Change) error {
	_, err := p.Publish(ctx, c)
	return err
}

// Publish appends c to the stream and returns the entry id.
func (p *Publisher) Publish(ctx context.Context, c lifecycle.Change) (string, error) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":     c.EventID,
			"room_id":      fmt.Sprintf("%d", c.RoomID),
			"room_name":    c.RoomName,
			"old_status":   c.Old.String(),
			"new_status":   c.New.String(),
			"source":       c.Source.String(),
			"timestamp":    c.At.UTC().Format(time.RFC3339Nano),
			"visit_opened": fmt.Sprintf("%t", c.VisitOpened),
			"visit_closed": fmt.Sprintf("%t", c.VisitClosed),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish change of room %d to %s: %w", c.RoomID, p.stream, err)
	}
	return id, nil
}
