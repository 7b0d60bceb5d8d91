package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"room-status-backend/internal/model"
	"room-status-backend/internal/status"
)

// MetricsReader is the read-only surface used by the metrics engine.
type MetricsReader interface {
	// VisitsInWindow returns visits whose start is >= start (when given) and,
	// when end is given, that have ended at or before end.
	VisitsInWindow(ctx context.Context, start, end *time.Time) ([]model.Visit, error)
	CountVisitsInWindow(ctx context.Context, start, end *time.Time) (int64, error)
	// TransitionsInto returns history rows of the given rooms entering one of
	// the statuses at or after since, ordered by room and time.
	TransitionsInto(ctx context.Context, roomIDs []int64, into []status.Status, since time.Time) ([]model.StatusHistory, error)
	RoomsInStatus(ctx context.Context, s status.Status) ([]model.Room, error)
	// LatestTransitionsInto maps each room to the time of its most recent transition into s.
	LatestTransitionsInto(ctx context.Context, roomIDs []int64, s status.Status) (map[int64]time.Time, error)
}

// sqlite builds older than 3.32 cap bound parameters at 999.
const inChunk = 500

var tsColumn = clause.Column{Name: "timestamp"}

func visitWindow(db *gorm.DB, start, end *time.Time) *gorm.DB {
	if start != nil {
		db = db.Where("start_time >= ?", start.UTC())
	}
	if end != nil {
		db = db.Where("end_time IS NOT NULL AND end_time <= ?", end.UTC())
	}
	return db
}

func (s *gormStore) VisitsInWindow(ctx context.Context, start, end *time.Time) ([]model.Visit, error) {
	var visits []model.Visit
	q := visitWindow(s.db.WithContext(ctx).Model(&model.Visit{}), start, end)
	if err := q.Order("start_time ASC").Order("id ASC").Find(&visits).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch visits: %w", err)
	}
	return visits, nil
}

func (s *gormStore) CountVisitsInWindow(ctx context.Context, start, end *time.Time) (int64, error) {
	var n int64
	q := visitWindow(s.db.WithContext(ctx).Model(&model.Visit{}), start, end)
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return n, nil
}

func (s *gormStore) TransitionsInto(ctx context.Context, roomIDs []int64, into []status.Status, since time.Time) ([]model.StatusHistory, error) {
	var out []model.StatusHistory
	for _, ids := range chunk(roomIDs, inChunk) {
		var rows []model.StatusHistory
		err := s.db.WithContext(ctx).
			Where("room_id IN ?", ids).
			Where("new_status IN ?", into).
			Where(clause.Gte{Column: tsColumn, Value: since.UTC()}).
			Order("room_id ASC").
			Order(clause.OrderByColumn{Column: tsColumn}).
			Order("id ASC").
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transitions: %w", err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *gormStore) RoomsInStatus(ctx context.Context, st status.Status) ([]model.Room, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Where("status = ?", st).Order("id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch rooms in status %s: %w", st, err)
	}
	return rooms, nil
}

func (s *gormStore) LatestTransitionsInto(ctx context.Context, roomIDs []int64, st status.Status) (map[int64]time.Time, error) {
	latest := make(map[int64]time.Time, len(roomIDs))
	for _, ids := range chunk(roomIDs, inChunk) {
		var rows []model.StatusHistory
		err := s.db.WithContext(ctx).
			Where("room_id IN ?", ids).
			Where("new_status = ?", st).
			Order(clause.OrderByColumn{Column: tsColumn, Desc: true}).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch latest %s transitions: %w", st, err)
		}
		for _, r := range rows {
			if _, seen := latest[r.RoomID]; !seen {
				latest[r.RoomID] = r.Timestamp
			}
		}
	}
	return latest, nil
}

func chunk(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
