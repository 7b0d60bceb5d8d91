package model

import (
	"time"

	"room-status-backend/internal/status"
)

// Room is a physical clinic room and its current status (hot table).
type Room struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Status    status.Status `gorm:"size:32;not null;index" json:"status"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null" json:"updated_at"`
}

// Visit is one occupancy cycle of a room, opened on available->waiting and
// closed on cleaning->available. At most one visit per room has a nil EndTime.
type Visit struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	RoomID    int64      `gorm:"not null;index:idx_visits_room_open,priority:1" json:"room_id"`
	StartTime time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime   *time.Time `gorm:"index:idx_visits_room_open,priority:2" json:"end_time"`
}

// Open reports whether the visit has not been closed yet.
func (v Visit) Open() bool { return v.EndTime == nil }
