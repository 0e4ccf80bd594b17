package availability

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicsched/internal/model"
)

func newCachedStore(t *testing.T) (*CachedStore, *SQLiteStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backing := newTestStore(t)
	logger := zerolog.New(io.Discard)
	return NewCachedStore(backing, rdb, time.Minute, &logger), backing, mr
}

func TestCachedStore_ReadThrough(t *testing.T) {
	cached, backing, mr := newCachedStore(t)
	ctx := context.Background()

	require.NoError(t, backing.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("10:00", "11:00")},
		30,
	))

	w, ok, err := cached.GetWindow(ctx, "doc-1", model.Monday)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, window("10:00", "11:00"), w)
	assert.True(t, mr.Exists(cacheKey("doc-1")))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey("doc-1")))

	// Change the backing store behind the cache's back: the cached copy is served.
	require.NoError(t, backing.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("12:00", "13:00")},
		30,
	))
	w, _, err = cached.GetWindow(ctx, "doc-1", model.Monday)
	require.NoError(t, err)
	assert.Equal(t, window("10:00", "11:00"), w)
}

func TestCachedStore_SetWritesThrough(t *testing.T) {
	cached, _, mr := newCachedStore(t)
	ctx := context.Background()

	require.NoError(t, cached.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("10:00", "11:00")},
		30,
	))
	_, err := cached.GetConsultationMinutes(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey("doc-1")))

	require.NoError(t, cached.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("10:00", "11:00")},
		45,
	))
	// The committed schedule replaces the old entry right away.
	require.True(t, mr.Exists(cacheKey("doc-1")))
	assert.Equal(t, "2", mr.HGet(cacheKey("doc-1"), "version"))

	minutes, err := cached.GetConsultationMinutes(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 45, minutes)
}

// pausingStore blocks the first Get between the database read and the return
// to the cache, so a write can land in between.
type pausingStore struct {
	Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) Get(ctx context.Context, doctorID string) (*model.DoctorAvailability, error) {
	a, err := p.Store.Get(ctx, doctorID)
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.read)
		<-p.release
	}
	return a, err
}

func TestCachedStore_SlowReaderDoesNotRestoreOldSchedule(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	backing := newTestStore(t)
	require.NoError(t, backing.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("10:00", "11:00")},
		30,
	))

	slow := &pausingStore{Store: backing, read: make(chan struct{}), release: make(chan struct{})}
	cached := NewCachedStore(slow, rdb, time.Hour, &logger)

	done := make(chan error, 1)
	go func() {
		_, err := cached.Get(ctx, "doc-1")
		done <- err
	}()
	<-slow.read

	require.NoError(t, cached.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Tuesday},
		map[model.Weekday]model.Window{model.Tuesday: window("14:00", "15:00")},
		30,
	))
	close(slow.release)
	require.NoError(t, <-done)

	_, ok, err := cached.GetWindow(ctx, "doc-1", model.Monday)
	require.NoError(t, err)
	assert.False(t, ok)

	w, ok, err := cached.GetWindow(ctx, "doc-1", model.Tuesday)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, window("14:00", "15:00"), w)
}

func TestCachedStore_UnknownDoctor(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	ctx := context.Background()

	_, ok, err := cached.GetWindow(ctx, "nobody", model.Monday)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = cached.GetConsultationMinutes(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_RedisDown(t *testing.T) {
	cached, backing, mr := newCachedStore(t)
	ctx := context.Background()

	require.NoError(t, backing.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("10:00", "11:00")},
		30,
	))
	mr.Close()

	minutes, err := cached.GetConsultationMinutes(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 30, minutes)
}
