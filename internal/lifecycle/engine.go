// Package lifecycle applies room status changes. Every accepted change
// updates the room, opens or closes its visit and appends to both logs in a
// single transaction.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"room-status-backend/internal/model"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/status"
	"room-status-backend/internal/store"
)

// Engine is the only writer of room status, visits and the history logs.
type Engine struct {
	store  store.Store
	policy *policy.Policy
	logger *zap.Logger
	now    func() time.Time

	locks sync.Map // room id -> *sync.Mutex

	mu        sync.RWMutex
	observers []Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for visits and log rows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// NewEngine creates an Engine over the given store and policy.
func NewEngine(st store.Store, p *policy.Policy, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  st,
		policy: p,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers an observer for committed changes.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Policy returns the transition policy the engine enforces.
func (e *Engine) Policy() *policy.Policy { return e.policy }

// CreateRoom adds a room with the given initial status and returns its id.
func (e *Engine) CreateRoom(ctx context.Context, name string, initial status.Status) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("room name is empty: %w", ErrInvalidArgument)
	}
	if !initial.Valid() {
		return 0, fmt.Errorf("initial status %q: %w", initial, ErrInvalidArgument)
	}

	room, err := e.store.CreateRoom(ctx, name, initial)
	if err != nil {
		return 0, classify("create room", err)
	}

	e.logger.Info("room created",
		zap.Int64("room_id", room.ID),
		zap.String("name", room.Name),
		zap.String("status", room.Status.String()),
	)
	e.notifyRoom(ctx, room, true)
	return room.ID, nil
}

// DeleteRoom removes a room together with its visits and logs.
func (e *Engine) DeleteRoom(ctx context.Context, roomID int64) error {
	unlock := e.lockRoom(roomID)
	room, err := e.store.GetRoom(ctx, roomID)
	if err == nil {
		err = e.store.DeleteRoom(ctx, roomID)
	}
	unlock()
	if err != nil {
		return classify("delete room", err)
	}

	e.logger.Info("room deleted", zap.Int64("room_id", roomID))
	e.notifyRoom(ctx, room, false)
	return nil
}

// UpdateStatus moves a room to next. Self-transitions are accepted and
// logged without touching visits.
func (e *Engine) UpdateStatus(ctx context.Context, roomID int64, next status.Status, source status.Source) error {
	if !next.Valid() {
		return fmt.Errorf("status %q: %w", next, ErrInvalidArgument)
	}
	if !source.Valid() {
		return fmt.Errorf("source %q: %w", source, ErrInvalidArgument)
	}

	unlock := e.lockRoom(roomID)
	change, err := e.apply(ctx, roomID, next, source)
	unlock()
	if err != nil {
		err = classify("update status", err)
		e.logger.Warn("status update rejected",
			zap.Int64("room_id", roomID),
			zap.String("new_status", next.String()),
			zap.String("source", source.String()),
			zap.Error(err),
		)
		return err
	}

	e.logger.Info("room status changed",
		zap.Int64("room_id", roomID),
		zap.String("old_status", change.Old.String()),
		zap.String("new_status", change.New.String()),
		zap.String("source", source.String()),
		zap.Bool("visit_opened", change.VisitOpened),
		zap.Bool("visit_closed", change.VisitClosed),
	)
	// observers run after the room lock is released
	e.notify(ctx, change)
	return nil
}

// apply runs one transition inside a transaction. The caller holds the room lock.
func (e *Engine) apply(ctx context.Context, roomID int64, next status.Status, source status.Source) (Change, error) {
	var change Change
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		room, err := tx.LockRoom(roomID)
		if err != nil {
			return err
		}

		old := room.Status
		if !e.policy.IsTransitionAllowed(old, next) {
			return fmt.Errorf("room %d: %s -> %s: %w", roomID, old, next, ErrInvalidTransition)
		}

		at := e.timestamp()
		change = Change{
			EventID:  uuid.NewString(),
			RoomID:   roomID,
			RoomName: room.Name,
			Old:      old,
			New:      next,
			Source:   source,
			At:       at,
		}

		if old == status.Available && next == status.Waiting {
			open, err := tx.HasOpenVisit(roomID)
			if err != nil {
				return err
			}
			if !open {
				if err := tx.InsertVisit(roomID, at); err != nil {
					return err
				}
				change.VisitOpened = true
			}
		}

		if old == status.Cleaning && next == status.Available {
			closed, err := tx.CloseOpenVisits(roomID, at)
			if err != nil {
				return err
			}
			change.VisitClosed = closed > 0
		}

		if err := tx.SetRoomStatus(roomID, next); err != nil {
			return err
		}
		if err := tx.AppendHistory(&model.StatusHistory{
			RoomID:    roomID,
			OldStatus: old,
			NewStatus: next,
			Source:    source,
			Timestamp: at,
		}); err != nil {
			return err
		}
		return tx.AppendEvent(&model.RoomEvent{
			EventID:   change.EventID,
			RoomID:    roomID,
			OldStatus: old,
			NewStatus: next,
			Source:    source,
			Timestamp: at,
		})
	})
	return change, err
}

// GetRoom returns a single room.
func (e *Engine) GetRoom(ctx context.Context, roomID int64) (model.Room, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return model.Room{}, classify("get room", err)
	}
	return room, nil
}

// ListRooms returns every room.
func (e *Engine) ListRooms(ctx context.Context) ([]model.Room, error) {
	rooms, err := e.store.ListRooms(ctx)
	if err != nil {
		return nil, classify("list rooms", err)
	}
	return rooms, nil
}

// RoomEvents returns the audit log of a room, newest first.
func (e *Engine) RoomEvents(ctx context.Context, roomID int64) ([]model.RoomEvent, error) {
	if _, err := e.store.GetRoom(ctx, roomID); err != nil {
		return nil, classify("room events", err)
	}
	events, err := e.store.RoomEvents(ctx, roomID)
	if err != nil {
		return nil, classify("room events", err)
	}
	return events, nil
}

// AllowedTargets returns the statuses role may request for the room right now.
func (e *Engine) AllowedTargets(ctx context.Context, roomID int64, role policy.Role) ([]status.Status, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, classify("allowed targets", err)
	}
	return e.policy.AllowedTargetsForRole(role, room.Status), nil
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func (e *Engine) lockRoom(roomID int64) func() {
	v, _ := e.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (e *Engine) snapshot() []Observer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	return observers
}

func (e *Engine) notifyRoom(ctx context.Context, room model.Room, created bool) {
	for _, o := range e.snapshot() {
		ro, ok := o.(RoomObserver)
		if !ok {
			continue
		}
		if created {
			ro.OnRoomCreated(ctx, room)
		} else {
			ro.OnRoomDeleted(ctx, room)
		}
	}
}

func (e *Engine) notify(ctx context.Context, c Change) {
	for _, o := range e.snapshot() {
		if err := o.OnChange(ctx, c); err != nil {
			e.logger.Error("observer failed",
				zap.String("observer", fmt.Sprintf("%T", o)),
				zap.Int64("room_id", c.RoomID),
				zap.Error(err),
			)
		}
	}
}
