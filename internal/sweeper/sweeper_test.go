package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"room-status-backend/internal/notification"
)

type scriptedFinder struct {
	rounds [][]int64
	err    error
	calls  int
}

func (f *scriptedFinder) RoomsStuckNeedingCleaning(_ context.Context, threshold time.Duration) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := f.rounds[f.calls]
	f.calls++
	return r, nil
}

type jobRecorder struct{ jobs []notification.Job }

func (r *jobRecorder) Dispatch(_ context.Context, job notification.Job) error {
	r.jobs = append(r.jobs, job)
	return nil
}

type gaugeRecorder struct{ last int }

func (g *gaugeRecorder) SetStuck(n int) { g.last = n }

func TestSweeper_AnnouncesOncePerEpisode(t *testing.T) {
	ctx := context.Background()
	finder := &scriptedFinder{rounds: [][]int64{
		{1, 2},
		{1, 2, 3},
		{3},
		{1, 3},
	}}
	jobs := &jobRecorder{}
	gauge := &gaugeRecorder{}
	s := New(finder, 30*time.Minute, time.Minute, jobs, gauge, zap.NewNop())

	fresh, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, fresh)
	assert.Equal(t, 2, gauge.last)

	fresh, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, fresh)

	fresh, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Equal(t, 1, gauge.last)

	fresh, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, fresh, "room 1 left the stuck set and came back")

	require.Len(t, jobs.jobs, 4)
	for _, j := range jobs.jobs {
		assert.Equal(t, notification.RoomStuck, j.Kind)
	}
}

func TestSweeper_FinderError(t *testing.T) {
	s := New(&scriptedFinder{err: errors.New("db down")}, time.Minute, time.Minute, nil, nil, zap.NewNop())
	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestSweeper_DispatchDoesNotOutliveContext(t *testing.T) {
	// a pool whose workers are gone: nothing drains the queue
	pool := notification.NewWorkerPool(1, nil, nil, zap.NewNop())
	finder := &scriptedFinder{rounds: [][]int64{{1, 2, 3}}}
	s := New(finder, time.Minute, time.Minute, pool, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	type result struct {
		fresh []int64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		fresh, err := s.Sweep(ctx)
		done <- result{fresh, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, []int64{1, 2, 3}, r.fresh)
	case <-time.After(time.Second):
		t.Fatal("sweep blocked dispatching to a stopped pool")
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	finder := &scriptedFinder{rounds: [][]int64{{}, {}, {}}}
	s := New(finder, time.Minute, time.Hour, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
