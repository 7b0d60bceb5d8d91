package model

import (
	"time"

	"room-status-backend/internal/status"
)

// StatusHistory is the append-only transition log the metrics read (cold table).
type StatusHistory struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	RoomID    int64         `gorm:"not null;index:idx_history_room_ts,priority:1" json:"room_id"`
	OldStatus status.Status `gorm:"size:32;not null" json:"old_status"`
	NewStatus status.Status `gorm:"size:32;not null;index" json:"new_status"`
	Source    status.Source `gorm:"size:16;not null" json:"source"`
	Timestamp time.Time     `gorm:"column:timestamp;not null;index:idx_history_room_ts,priority:2" json:"timestamp"`
}

func (StatusHistory) TableName() string { return "room_status_history" }

// RoomEvent is the audit copy of a transition, written in the same
// transaction as its StatusHistory row.
type RoomEvent struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	EventID   string        `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	RoomID    int64         `gorm:"not null;index:idx_events_room_ts,priority:1" json:"room_id"`
	OldStatus status.Status `gorm:"size:32;not null" json:"old_status"`
	NewStatus status.Status `gorm:"size:32;not null" json:"new_status"`
	Source    status.Source `gorm:"size:16;not null" json:"source"`
	Timestamp time.Time     `gorm:"column:timestamp;not null;index:idx_events_room_ts,priority:2" json:"timestamp"`
}
