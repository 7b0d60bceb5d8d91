// Package sweeper periodically looks for rooms stuck waiting for cleaning.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"room-status-backend/internal/notification"
)

// StuckFinder reports rooms stuck in needs_cleaning.
type StuckFinder interface {
	RoomsStuckNeedingCleaning(ctx context.Context, threshold time.Duration) ([]int64, error)
}

// Dispatcher queues push notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, job notification.Job) error
}

// Gauge receives the number of stuck rooms after each sweep.
type Gauge interface {
	SetStuck(n int)
}

// Sweeper notifies once per stuck episode: a room is announced when it first
// shows up as stuck and again only after it has left the stuck set.
type Sweeper struct {
	finder     StuckFinder
	threshold  time.Duration
	interval   time.Duration
	dispatcher Dispatcher
	gauge      Gauge
	logger     *zap.Logger

	announced map[int64]bool
}

// New creates a sweeper. dispatcher and gauge may be nil.
func New(finder StuckFinder, threshold, interval time.Duration, dispatcher Dispatcher, gauge Gauge, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		finder:     finder,
		threshold:  threshold,
		interval:   interval,
		dispatcher: dispatcher,
		gauge:      gauge,
		logger:     logger,
		announced:  make(map[int64]bool),
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("starting stuck-room sweeper", zap.Duration("interval", s.interval), zap.Duration("threshold", s.threshold))

	s.sweepAndLog(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stuck-room sweeper shutting down")
			return
		case <-timer.C:
			s.sweepAndLog(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("stuck-room sweep failed", zap.Error(err))
	}
}

// Sweep runs one pass and returns the ids newly announced.
func (s *Sweeper) Sweep(ctx context.Context) ([]int64, error) {
	stuck, err := s.finder.RoomsStuckNeedingCleaning(ctx, s.threshold)
	if err != nil {
		return nil, err
	}
	if s.gauge != nil {
		s.gauge.SetStuck(len(stuck))
	}

	current := make(map[int64]bool, len(stuck))
	var fresh []int64
	for _, id := range stuck {
		current[id] = true
		if !s.announced[id] {
			fresh = append(fresh, id)
		}
	}
	s.announced = current

	for _, id := range fresh {
		s.logger.Warn("room stuck needing cleaning", zap.Int64("room_id", id))
		if s.dispatcher != nil {
			if err := s.dispatcher.Dispatch(ctx, notification.Job{RoomID: id, Kind: notification.RoomStuck}); err != nil {
				s.logger.Error("failed to queue stuck notification", zap.Int64("room_id", id), zap.Error(err))
			}
		}
	}
	return fresh, nil
}
