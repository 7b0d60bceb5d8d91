package lifecycle

import (
	"context"
	"time"

	"room-status-backend/internal/model"
	"room-status-backend/internal/status"
)

// Change describes an accepted, committed status transition.
type Change struct {
	EventID  string
	RoomID   int64
	RoomName string
	Old      status.Status
	New      status.Status
	Source   status.Source
	At       time.Time

	VisitOpened bool
	VisitClosed bool
}

// SelfTransition reports whether the change left the status unchanged.
func (c Change) SelfTransition() bool { return c.Old == c.New }

// Observer is notified after a transition has been committed.
type Observer interface {
	OnChange(ctx context.Context, c Change) error
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, c Change) error

func (f ObserverFunc) OnChange(ctx context.Context, c Change) error { return f(ctx, c) }

// RoomObserver is implemented by observers that also follow rooms being
// added and removed. The engine checks for it on every registered Observer.
type RoomObserver interface {
	OnRoomCreated(ctx context.Context, room model.Room)
	OnRoomDeleted(ctx context.Context, room model.Room)
}
