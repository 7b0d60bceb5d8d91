package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"room-status-backend/internal/model"
	"room-status-backend/internal/status"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate record")
)

// Store defines the persistence gateway used by the lifecycle and metrics engines.
type Store interface {
	CreateRoom(ctx context.Context, name string, initial status.Status) (model.Room, error)
	GetRoom(ctx context.Context, id int64) (model.Room, error)
	ListRooms(ctx context.Context) ([]model.Room, error)
	DeleteRoom(ctx context.Context, id int64) error
	RoomEvents(ctx context.Context, roomID int64) ([]model.RoomEvent, error)
	RoomHistory(ctx context.Context, roomID int64) ([]model.StatusHistory, error)

	// InTx runs fn in one transaction. Returning an error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	MetricsReader
	SubscriptionStore
}

// Tx is the write surface available inside a transaction.
type Tx interface {
	// LockRoom reads the room row, locking it against concurrent writers where
	// the database supports row locks.
	LockRoom(id int64) (model.Room, error)
	HasOpenVisit(roomID int64) (bool, error)
	InsertVisit(roomID int64, start time.Time) error
	// CloseOpenVisits sets end_time on the open visit(s) and returns how many were closed.
	CloseOpenVisits(roomID int64, end time.Time) (int64, error)
	SetRoomStatus(roomID int64, s status.Status) error
	AppendHistory(h *model.StatusHistory) error
	AppendEvent(e *model.RoomEvent) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// InTx wraps fn in a gorm transaction.
func (s *gormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

// CreateRoom inserts a room, rejecting duplicate names with ErrDuplicate.
func (s *gormStore) CreateRoom(ctx context.Context, name string, initial status.Status) (model.Room, error) {
	room := model.Room{Name: name, Status: initial}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&model.Room{}).Where("name = ?", name).Count(&taken).Error; err != nil {
			return fmt.Errorf("failed to check room name %q: %w", name, err)
		}
		if taken > 0 {
			return fmt.Errorf("room name %q: %w", name, ErrDuplicate)
		}
		if err := tx.Create(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("room name %q: %w", name, ErrDuplicate)
			}
			return fmt.Errorf("failed to create room %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	return room, nil
}

func (s *gormStore) GetRoom(ctx context.Context, id int64) (model.Room, error) {
	var room model.Room
	if err := s.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return model.Room{}, notFound(err, "room %d", id)
	}
	return room, nil
}

func (s *gormStore) ListRooms(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// DeleteRoom removes the room together with its visits, history, audit rows
// and subscription mappings.
func (s *gormStore) DeleteRoom(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&model.Visit{}).Error; err != nil {
			return fmt.Errorf("failed to delete visits of room %d: %w", id, err)
		}
		if err := tx.Where("room_id = ?", id).Delete(&model.StatusHistory{}).Error; err != nil {
			return fmt.Errorf("failed to delete history of room %d: %w", id, err)
		}
		if err := tx.Where("room_id = ?", id).Delete(&model.RoomEvent{}).Error; err != nil {
			return fmt.Errorf("failed to delete events of room %d: %w", id, err)
		}
		if err := tx.Exec("DELETE FROM "+model.SubscriptionMappingTable+" WHERE room_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete subscriptions of room %d: %w", id, err)
		}
		res := tx.Delete(&model.Room{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete room %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("room %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// RoomEvents returns the audit log of a room, newest first.
func (s *gormStore) RoomEvents(ctx context.Context, roomID int64) ([]model.RoomEvent, error) {
	var events []model.RoomEvent
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order("id DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events for room %d: %w", roomID, err)
	}
	return events, nil
}

// RoomHistory returns the metrics history of a room, newest first.
func (s *gormStore) RoomHistory(ctx context.Context, roomID int64) ([]model.StatusHistory, error) {
	var history []model.StatusHistory
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order("id DESC").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for room %d: %w", roomID, err)
	}
	return history, nil
}

// --- transaction surface ---

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockRoom(id int64) (model.Room, error) {
	var room model.Room
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, id).Error
	if err != nil {
		return model.Room{}, notFound(err, "room %d", id)
	}
	return room, nil
}

func (t *gormTx) HasOpenVisit(roomID int64) (bool, error) {
	var open int64
	if err := t.db.Model(&model.Visit{}).Where("room_id = ? AND end_time IS NULL", roomID).Count(&open).Error; err != nil {
		return false, fmt.Errorf("failed to look up open visit for room %d: %w", roomID, err)
	}
	return open > 0, nil
}

func (t *gormTx) InsertVisit(roomID int64, start time.Time) error {
	visit := model.Visit{RoomID: roomID, StartTime: start}
	if err := t.db.Create(&visit).Error; err != nil {
		return fmt.Errorf("failed to open visit for room %d: %w", roomID, err)
	}
	return nil
}

func (t *gormTx) CloseOpenVisits(roomID int64, end time.Time) (int64, error) {
	res := t.db.Model(&model.Visit{}).
		Where("room_id = ? AND end_time IS NULL", roomID).
		Update("end_time", end)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to close visit for room %d: %w", roomID, res.Error)
	}
	return res.RowsAffected, nil
}

func (t *gormTx) SetRoomStatus(roomID int64, s status.Status) error {
	res := t.db.Model(&model.Room{}).Where("id = ?", roomID).Update("status", s)
	if res.Error != nil {
		return fmt.Errorf("failed to update status of room %d: %w", roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	return nil
}

func (t *gormTx) AppendHistory(h *model.StatusHistory) error {
	if err := t.db.Create(h).Error; err != nil {
		return fmt.Errorf("failed to append history for room %d: %w", h.RoomID, err)
	}
	return nil
}

func (t *gormTx) AppendEvent(e *model.RoomEvent) error {
	if err := t.db.Create(e).Error; err != nil {
		return fmt.Errorf("failed to append event for room %d: %w", e.RoomID, err)
	}
	return nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf("failed to fetch "+format+": %w", append(args, err)...)
}
