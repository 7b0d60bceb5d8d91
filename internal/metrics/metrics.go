// Package metrics derives turnaround figures from the visit and history
// tables. It never writes.
package metrics

import (
	"context"
	"fmt"
	"time"

	"room-status-backend/internal/model"
	"room-status-backend/internal/status"
	"room-status-backend/internal/store"
)

// DefaultStuckThreshold is how long a room may wait in needs_cleaning
// before it is reported as stuck.
const DefaultStuckThreshold = 1800 * time.Second

// Window restricts metrics to visits that started at or after Start and,
// when End is set, ended at or before End. Nil bounds are unbounded.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Validate rejects windows whose end precedes their start.
func (w Window) Validate() error {
	if w.Start != nil && w.End != nil && w.End.Before(*w.Start) {
		return fmt.Errorf("window end %s is before start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Summary is everything the dashboard shows for a window.
type Summary struct {
	AvgWaitSeconds     *float64 `json:"avg_wait_seconds"`
	AvgProviderSeconds *float64 `json:"avg_provider_seconds"`
	AvgCleaningSeconds *float64 `json:"avg_cleaning_seconds"`
	Turnovers          int64    `json:"turnovers"`
	StuckRoomIDs       []int64  `json:"stuck_room_ids"`
}

// Engine computes metrics over a MetricsReader.
type Engine struct {
	reader         store.MetricsReader
	now            func() time.Time
	stuckThreshold time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the reference time used for stuck-room detection.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStuckThreshold sets the threshold Summary uses for stuck rooms.
func WithStuckThreshold(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stuckThreshold = d
		}
	}
}

func NewEngine(reader store.MetricsReader, opts ...Option) *Engine {
	e := &Engine{
		reader:         reader,
		now:            time.Now,
		stuckThreshold: DefaultStuckThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AvgWaitTime averages the waiting -> seeing_provider gap per visit, in seconds.
func (e *Engine) AvgWaitTime(ctx context.Context, w Window) (*float64, error) {
	return e.avgWithinVisit(ctx, w, status.Waiting, status.SeeingProvider)
}

// AvgProviderTime averages the seeing_provider -> needs_cleaning gap per visit, in seconds.
func (e *Engine) AvgProviderTime(ctx context.Context, w Window) (*float64, error) {
	return e.avgWithinVisit(ctx, w, status.SeeingProvider, status.NeedsCleaning)
}

// AvgCleaningTime averages the cleaning -> available gap per visit, in seconds.
func (e *Engine) AvgCleaningTime(ctx context.Context, w Window) (*float64, error) {
	return e.avgWithinVisit(ctx, w, status.Cleaning, status.Available)
}

// TotalTurnovers counts the visits in the window.
func (e *Engine) TotalTurnovers(ctx context.Context, w Window) (int64, error) {
	n, err := e.reader.CountVisitsInWindow(ctx, w.Start, w.End)
	if err != nil {
		return 0, fmt.Errorf("total turnovers: %w", err)
	}
	return n, nil
}

// RoomsStuckNeedingCleaning returns, ordered by id, the rooms currently in
// needs_cleaning whose latest transition into that status is more than
// threshold old. A non-positive threshold means DefaultStuckThreshold.
func (e *Engine) RoomsStuckNeedingCleaning(ctx context.Context, threshold time.Duration) ([]int64, error) {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}

	rooms, err := e.reader.RoomsInStatus(ctx, status.NeedsCleaning)
	if err != nil {
		return nil, fmt.Errorf("stuck rooms: %w", err)
	}
	if len(rooms) == 0 {
		return []int64{}, nil
	}

	ids := make([]int64, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	since, err := e.reader.LatestTransitionsInto(ctx, ids, status.NeedsCleaning)
	if err != nil {
		return nil, fmt.Errorf("stuck rooms: %w", err)
	}

	now := e.now().Unix()
	limit := int64(threshold / time.Second)
	stuck := []int64{}
	for _, id := range ids {
		at, ok := since[id]
		if !ok {
			continue
		}
		if now-at.Unix() > limit {
			stuck = append(stuck, id)
		}
	}
	return stuck, nil
}

// Summary composes the five metrics for w.
func (e *Engine) Summary(ctx context.Context, w Window) (Summary, error) {
	if err := w.Validate(); err != nil {
		return Summary{}, err
	}

	var (
		s   Summary
		err error
	)
	if s.AvgWaitSeconds, err = e.AvgWaitTime(ctx, w); err != nil {
		return Summary{}, err
	}
	if s.AvgProviderSeconds, err = e.AvgProviderTime(ctx, w); err != nil {
		return Summary{}, err
	}
	if s.AvgCleaningSeconds, err = e.AvgCleaningTime(ctx, w); err != nil {
		return Summary{}, err
	}
	if s.Turnovers, err = e.TotalTurnovers(ctx, w); err != nil {
		return Summary{}, err
	}
	if s.StuckRoomIDs, err = e.RoomsStuckNeedingCleaning(ctx, e.stuckThreshold); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// avgWithinVisit pairs, for every visit in the window, the earliest entry
// into from and the earliest entry into to that fall inside the visit span.
func (e *Engine) avgWithinVisit(ctx context.Context, w Window, from, to status.Status) (*float64, error) {
	visits, err := e.reader.VisitsInWindow(ctx, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("average %s -> %s: %w", from, to, err)
	}
	if len(visits) == 0 {
		return nil, nil
	}

	earliest := visits[0].StartTime
	seen := make(map[int64]bool)
	var roomIDs []int64
	for _, v := range visits {
		if v.StartTime.Before(earliest) {
			earliest = v.StartTime
		}
		if !seen[v.RoomID] {
			seen[v.RoomID] = true
			roomIDs = append(roomIDs, v.RoomID)
		}
	}

	rows, err := e.reader.TransitionsInto(ctx, roomIDs, []status.Status{from, to}, earliest)
	if err != nil {
		return nil, fmt.Errorf("average %s -> %s: %w", from, to, err)
	}
	byRoom := make(map[int64][]model.StatusHistory)
	for _, r := range rows {
		byRoom[r.RoomID] = append(byRoom[r.RoomID], r)
	}

	var (
		sum float64
		n   int
	)
	for _, v := range visits {
		fromAt, okFrom := firstWithin(byRoom[v.RoomID], v, from)
		toAt, okTo := firstWithin(byRoom[v.RoomID], v, to)
		if !okFrom || !okTo || !toAt.After(fromAt) {
			continue
		}
		sum += float64(toAt.Unix() - fromAt.Unix())
		n++
	}
	if n == 0 {
		return nil, nil
	}
	avg := sum / float64(n)
	return &avg, nil
}

// firstWithin expects rows ordered by timestamp.
func firstWithin(rows []model.StatusHistory, v model.Visit, s status.Status) (time.Time, bool) {
	for _, r := range rows {
		if r.NewStatus != s || r.Timestamp.Before(v.StartTime) {
			continue
		}
		if v.EndTime != nil && r.Timestamp.After(*v.EndTime) {
			// rows are ordered, nothing later can qualify
			return time.Time{}, false
		}
		return r.Timestamp, true
	}
	return time.Time{}, false
}
