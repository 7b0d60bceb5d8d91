package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/model"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/status"
	"room-status-backend/internal/store"
	"room-status-backend/internal/testutil"
)

type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func newEngine(t *testing.T, opts ...lifecycle.Option) (*lifecycle.Engine, *gorm.DB) {
	t.Helper()
	gormDB := testutil.OpenDB(t)
	clock := &stepClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), step: time.Minute}
	opts = append([]lifecycle.Option{lifecycle.WithClock(clock.Now)}, opts...)
	return lifecycle.NewEngine(store.NewGormStore(gormDB), policy.Default(), zap.NewNop(), opts...), gormDB
}

func count(t *testing.T, db *gorm.DB, m any, where ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(m)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestEngine_CreateRoom(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = e.CreateRoom(ctx, "Exam 1", status.Available)
	assert.ErrorIs(t, err, lifecycle.ErrConflict)

	_, err = e.CreateRoom(ctx, "   ", status.Available)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	_, err = e.CreateRoom(ctx, "Exam 2", status.Status("on_fire"))
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)
}

func TestEngine_UpdateStatusUnknownRoom(t *testing.T) {
	e, _ := newEngine(t)

	err := e.UpdateStatus(context.Background(), 42, status.Waiting, status.SourceManual)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestEngine_SelfTransitionIsLogged(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)

	require.NoError(t, e.UpdateStatus(ctx, id, status.Available, status.SourceSensor))

	assert.Equal(t, int64(1), count(t, db, &model.StatusHistory{}))
	assert.Equal(t, int64(1), count(t, db, &model.RoomEvent{}))
	assert.Zero(t, count(t, db, &model.Visit{}))
}

func TestEngine_IllegalTransitionsChangeNothing(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	p := policy.Default()
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)

	for _, from := range status.All() {
		for _, to := range status.All() {
			if p.IsTransitionAllowed(from, to) {
				continue
			}
			require.NoError(t, db.Model(&model.Room{}).Where("id = ?", id).Update("status", from).Error)
			history := count(t, db, &model.StatusHistory{})
			visits := count(t, db, &model.Visit{})

			err := e.UpdateStatus(ctx, id, to, status.SourceManual)
			assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "%s -> %s", from, to)

			room, err := e.GetRoom(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, from, room.Status)
			assert.Equal(t, history, count(t, db, &model.StatusHistory{}))
			assert.Equal(t, visits, count(t, db, &model.Visit{}))
		}
	}
}

func TestEngine_WaitingTwiceOpensOneVisit(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)

	for _, next := range []status.Status{
		status.Waiting,
		status.Maintenance,
		status.Available,
		status.Waiting,
	} {
		require.NoError(t, e.UpdateStatus(ctx, id, next, status.SourceManual))
	}

	assert.Equal(t, int64(1), count(t, db, &model.Visit{}))
	assert.Equal(t, int64(1), count(t, db, &model.Visit{}, "room_id = ? AND end_time IS NULL", id))
}

func TestEngine_FullCycle(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)

	for _, next := range []status.Status{
		status.Waiting,
		status.SeeingProvider,
		status.NeedsCleaning,
		status.Cleaning,
		status.Available,
	} {
		require.NoError(t, e.UpdateStatus(ctx, id, next, status.SourceManual))
	}

	var visits []model.Visit
	require.NoError(t, db.Find(&visits).Error)
	require.Len(t, visits, 1)
	require.NotNil(t, visits[0].EndTime)
	assert.True(t, visits[0].EndTime.After(visits[0].StartTime))

	assert.Equal(t, int64(5), count(t, db, &model.StatusHistory{}, "room_id = ?", id))
	assert.Equal(t, int64(5), count(t, db, &model.RoomEvent{}, "room_id = ?", id))

	room, err := e.GetRoom(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, status.Available, room.Status)
}

func TestEngine_CleaningToAvailableWithoutVisit(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Cleaning)
	require.NoError(t, err)

	require.NoError(t, e.UpdateStatus(ctx, id, status.Available, status.SourceManual))
	assert.Zero(t, count(t, db, &model.Visit{}))
	assert.Equal(t, int64(1), count(t, db, &model.StatusHistory{}))
}

func TestEngine_HistoryAndAuditRowsMatch(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)
	require.NoError(t, e.UpdateStatus(ctx, id, status.Waiting, status.SourceAPI))

	var h model.StatusHistory
	var ev model.RoomEvent
	require.NoError(t, db.First(&h).Error)
	require.NoError(t, db.First(&ev).Error)

	assert.Equal(t, h.RoomID, ev.RoomID)
	assert.Equal(t, h.OldStatus, ev.OldStatus)
	assert.Equal(t, h.NewStatus, ev.NewStatus)
	assert.Equal(t, status.SourceAPI, ev.Source)
	assert.True(t, h.Timestamp.Equal(ev.Timestamp))
	assert.Len(t, ev.EventID, 36)
}

func TestEngine_RoomEvents(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)

	_, err = e.RoomEvents(ctx, id+100)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	require.NoError(t, e.UpdateStatus(ctx, id, status.Waiting, status.SourceManual))
	require.NoError(t, e.UpdateStatus(ctx, id, status.SeeingProvider, status.SourceManual))

	events, err := e.RoomEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, status.SeeingProvider, events[0].NewStatus)
	assert.Equal(t, status.Waiting, events[1].NewStatus)
}

func TestEngine_AllowedTargets(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Waiting)
	require.NoError(t, err)

	targets, err := e.AllowedTargets(ctx, id, policy.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, []status.Status{status.SeeingProvider}, targets)

	targets, err = e.AllowedTargets(ctx, id, policy.RolePatient)
	require.NoError(t, err)
	assert.Empty(t, targets)

	_, err = e.AllowedTargets(ctx, id+1, policy.RolePatient)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestEngine_ObserversSeeCommittedChanges(t *testing.T) {
	ctx := context.Background()
	var got []lifecycle.Change
	var e *lifecycle.Engine
	recorder := lifecycle.ObserverFunc(func(ctx context.Context, c lifecycle.Change) error {
		room, err := e.GetRoom(ctx, c.RoomID)
		require.NoError(t, err)
		assert.Equal(t, c.New, room.Status)
		got = append(got, c)
		return nil
	})
	failing := lifecycle.ObserverFunc(func(context.Context, lifecycle.Change) error {
		return errors.New("downstream unavailable")
	})

	e, _ = newEngine(t, lifecycle.WithObserver(failing))
	e.Subscribe(recorder)

	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)
	require.NoError(t, e.UpdateStatus(ctx, id, status.Waiting, status.SourceSensor))

	err = e.UpdateStatus(ctx, id, status.Cleaning, status.SourceSensor)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	require.Len(t, got, 1)
	assert.Equal(t, status.Available, got[0].Old)
	assert.Equal(t, status.Waiting, got[0].New)
	assert.Equal(t, "Exam 1", got[0].RoomName)
	assert.True(t, got[0].VisitOpened)
	assert.NotEmpty(t, got[0].EventID)
}

func TestEngine_ConcurrentUpdatesOpenOneVisit(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.UpdateStatus(ctx, id, status.Waiting, status.SourceAPI)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), count(t, db, &model.Visit{}))
	assert.Equal(t, int64(10), count(t, db, &model.StatusHistory{}))
	assert.Equal(t, int64(1), count(t, db, &model.StatusHistory{}, "old_status = ? AND new_status = ?", status.Available, status.Waiting))
}

func TestEngine_StoreFailureRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	e := lifecycle.NewEngine(store.NewGormStore(gormDB), policy.Default(), zap.NewNop())

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rooms" WHERE "rooms"\."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "created_at", "updated_at"}).
			AddRow(3, "Exam 3", "available", now, now))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "visits"`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = e.UpdateStatus(context.Background(), 3, status.Waiting, status.SourceManual)
	require.ErrorIs(t, err, lifecycle.ErrStoreFailure)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// roomRecorder follows room creation and deletion.
type roomRecorder struct {
	lifecycle.ObserverFunc
	created []model.Room
	deleted []model.Room
}

func (r *roomRecorder) OnRoomCreated(_ context.Context, room model.Room) { r.created = append(r.created, room) }
func (r *roomRecorder) OnRoomDeleted(_ context.Context, room model.Room) { r.deleted = append(r.deleted, room) }

func TestEngine_RoomObserversSeeCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	rec := &roomRecorder{ObserverFunc: func(context.Context, lifecycle.Change) error { return nil }}
	e, _ := newEngine(t, lifecycle.WithObserver(rec))

	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)
	require.NoError(t, e.UpdateStatus(ctx, id, status.Waiting, status.SourceManual))
	require.NoError(t, e.DeleteRoom(ctx, id))
	assert.ErrorIs(t, e.DeleteRoom(ctx, id), lifecycle.ErrNotFound)

	require.Len(t, rec.created, 1)
	assert.Equal(t, status.Available, rec.created[0].Status)
	require.Len(t, rec.deleted, 1)
	assert.Equal(t, id, rec.deleted[0].ID)
	assert.Equal(t, status.Waiting, rec.deleted[0].Status, "deleted room reports its last status")
}

func TestEngine_ObserversRunOutsideRoomLock(t *testing.T) {
	ctx := context.Background()
	var e *lifecycle.Engine
	var chained error
	e, _ = newEngine(t, lifecycle.WithObserver(lifecycle.ObserverFunc(func(ctx context.Context, c lifecycle.Change) error {
		if c.New == status.Waiting {
			// an observer may write to the same room
			chained = e.UpdateStatus(ctx, c.RoomID, status.SeeingProvider, status.SourceSensor)
		}
		return nil
	})))
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.UpdateStatus(ctx, id, status.Waiting, status.SourceManual) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("observer deadlocked on the room lock")
	}
	require.NoError(t, chained)
	room, err := e.GetRoom(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, status.SeeingProvider, room.Status)
}

func TestEngine_DeleteRoom(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id, err := e.CreateRoom(ctx, "Exam 1", status.Available)
	require.NoError(t, err)
	require.NoError(t, e.UpdateStatus(ctx, id, status.Waiting, status.SourceManual))

	require.NoError(t, e.DeleteRoom(ctx, id))
	assert.ErrorIs(t, e.DeleteRoom(ctx, id), lifecycle.ErrNotFound)
	assert.Zero(t, count(t, db, &model.Visit{}))
	assert.Zero(t, count(t, db, &model.StatusHistory{}))
}
