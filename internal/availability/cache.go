package availability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clinicsched/internal/model"
)

const (
	cacheKeyPrefix = "availability:"
	cacheFieldData = "data"
)

// KEYS[1] entry, ARGV[1] version, ARGV[2] encoded schedule, ARGV[3] ttl in ms.
var fillScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CachedStore is a Redis read-through cache in front of another Store.
// Redis errors are logged and the call falls through to the backing store.
type CachedStore struct {
	next   Store
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCachedStore(next Store, redisClient *redis.Client, ttl time.Duration, logger *zerolog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{next: next, redis: redisClient, ttl: ttl, logger: logger}
}

func cacheKey(doctorID string) string {
	return cacheKeyPrefix + doctorID
}

func (c *CachedStore) Get(ctx context.Context, doctorID string) (*model.DoctorAvailability, error) {
	var cached model.DoctorAvailability
	if c.readCache(ctx, cacheKey(doctorID), &cached) {
		return &cached, nil
	}

	a, err := c.next.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, a)
	return a, nil
}

func (c *CachedStore) GetWindow(ctx context.Context, doctorID string, day model.Weekday) (model.Window, bool, error) {
	a, err := c.Get(ctx, doctorID)
	if errors.Is(err, ErrNotFound) {
		return model.Window{}, false, nil
	}
	if err != nil {
		return model.Window{}, false, err
	}
	w, ok := a.Window(day)
	return w, ok, nil
}

func (c *CachedStore) GetConsultationMinutes(ctx context.Context, doctorID string) (int, error) {
	a, err := c.Get(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	return a.ConsultationMinutes, nil
}

// SetAvailability writes to the backing store, then caches the committed schedule.
func (c *CachedStore) SetAvailability(
	ctx context.Context,
	doctorID string,
	weekdays []model.Weekday,
	windows map[model.Weekday]model.Window,
	consultationMinutes int,
) error {
	if err := c.next.SetAvailability(ctx, doctorID, weekdays, windows, consultationMinutes); err != nil {
		return err
	}

	fresh, err := c.next.Get(ctx, doctorID)
	if err != nil {
		c.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("reload after availability write failed")
		c.Invalidate(ctx, doctorID)
		return nil
	}
	c.fill(ctx, fresh)
	return nil
}

func (c *CachedStore) IsClosed(ctx context.Context, date time.Time) (bool, error) {
	return c.next.IsClosed(ctx, date)
}

func (c *CachedStore) SetHolidays(ctx context.Context, holidays []Holiday) error {
	return c.next.SetHolidays(ctx, holidays)
}

// Invalidate removes the cached schedule of a doctor.
func (c *CachedStore) Invalidate(ctx context.Context, doctorID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, cacheKey(doctorID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("availability cache invalidation failed")
	}
}

func (c *CachedStore) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	val, err := c.redis.HGet(ctx, key, cacheFieldData).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("availability cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// fill stores a schedule unless the cache already holds the same or a newer
// version. A reader that loaded an old schedule before a concurrent write
// cannot overwrite what the writer cached.
func (c *CachedStore) fill(ctx context.Context, a *model.DoctorAvailability) {
	if c.redis == nil {
		return
	}
	key := cacheKey(a.DoctorID)
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	err = fillScript.Run(ctx, c.redis, []string{key}, a.Version, data, c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Str("key", key).Dur("ttl", c.ttl).Msg("availability cache write failed")
	}
}
