// Package sensor feeds automated room readings into the lifecycle engine
// with source=sensor, from an HTTP gateway and from MQTT.
package sensor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/model"
	"room-status-backend/internal/status"
)

// Reading is one status observation reported by a room sensor.
type Reading struct {
	RoomID int64  `json:"room_id"`
	Status string `json:"status"`
}

// Updater is the part of the lifecycle engine sensors drive.
type Updater interface {
	GetRoom(ctx context.Context, roomID int64) (model.Room, error)
	UpdateStatus(ctx context.Context, roomID int64, next status.Status, source status.Source) error
}

// Outcome tells what Apply did with a reading.
type Outcome int

const (
	Applied Outcome = iota
	Unchanged
	Skipped
)

// Applier turns readings into status updates.
type Applier struct {
	updater Updater
	logger  *zap.Logger
}

func NewApplier(u Updater, logger *zap.Logger) *Applier {
	return &Applier{updater: u, logger: logger}
}

// Apply validates a reading and applies it when it differs from the room's
// current status. Illegal transitions and unknown rooms are logged and
// skipped; only store failures are returned.
func (a *Applier) Apply(ctx context.Context, r Reading) (Outcome, error) {
	next, err := status.Parse(r.Status)
	if err != nil {
		a.logger.Warn("ignoring sensor reading with unknown status", zap.Int64("room_id", r.RoomID), zap.String("status", r.Status))
		return Skipped, nil
	}

	room, err := a.updater.GetRoom(ctx, r.RoomID)
	if errors.Is(err, lifecycle.ErrNotFound) {
		a.logger.Warn("ignoring sensor reading for unknown room", zap.Int64("room_id", r.RoomID))
		return Skipped, nil
	}
	if err != nil {
		return Skipped, fmt.Errorf("look up room %d: %w", r.RoomID, err)
	}
	if room.Status == next {
		return Unchanged, nil
	}

	err = a.updater.UpdateStatus(ctx, r.RoomID, next, status.SourceSensor)
	switch {
	case err == nil:
		return Applied, nil
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrNotFound):
		a.logger.Info("skipping sensor reading",
			zap.Int64("room_id", r.RoomID),
			zap.String("current", room.Status.String()),
			zap.String("reported", next.String()),
			zap.Error(err),
		)
		return Skipped, nil
	default:
		return Skipped, err
	}
}
