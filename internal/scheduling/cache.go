package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

const (
	scheduleCachePrefix = "scheduling:schedules:"
	scheduleGenPrefix   = "scheduling:schedules:gen:"
)

// fillScript stores a freshly read list only if no write bumped the doctor's
// generation since the read began.
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if (gen or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// CachedScheduleStore is a read-through Redis cache of each doctor's
// schedule list in front of another ScheduleStore. Every write bumps the
// doctor's generation and drops the key. Redis failures fall back to the
// inner store.
type CachedScheduleStore struct {
	inner  ScheduleStore
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedScheduleStore fronts inner with Redis. A non-positive ttl defaults
// to five minutes.
func NewCachedScheduleStore(inner ScheduleStore, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedScheduleStore {
	if inner == nil || client == nil {
		panic("scheduling: inner store and redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedScheduleStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func scheduleCacheKey(doctorID uuid.UUID) string {
	return scheduleCachePrefix + doctorID.String()
}

func scheduleGenKey(doctorID uuid.UUID) string {
	return scheduleGenPrefix + doctorID.String()
}

// Uncached returns the store behind the cache.
func (s *CachedScheduleStore) Uncached() ScheduleStore {
	return s.inner
}

func (s *CachedScheduleStore) GetSchedule(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	return s.inner.GetSchedule(ctx, id)
}

func (s *CachedScheduleStore) FindSchedule(ctx context.Context, doctorID uuid.UUID, weekday Weekday) (*ScheduleEntry, error) {
	all, err := s.ListSchedules(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if e.Weekday == weekday {
			return &e, nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (s *CachedScheduleStore) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	key, genKey := scheduleCacheKey(doctorID), scheduleGenKey(doctorID)
	gen, fill := "0", true
	vals, err := s.client.MGet(ctx, key, genKey).Result()
	if err != nil {
		s.logger.Warn("schedule cache read failed", "key", key, "error", err)
		fill = false
	} else {
		if raw, ok := vals[0].(string); ok {
			var cached []ScheduleEntry
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return cached, nil
			}
			s.logger.Warn("schedule cache entry unreadable", "key", key)
		}
		if g, ok := vals[1].(string); ok {
			gen = g
		}
	}

	entries, err := s.inner.ListSchedules(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !fill {
		return entries, nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return entries, nil
	}
	stored, err := fillScript.Run(ctx, s.client, []string{key, genKey}, gen, payload, s.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		s.logger.Warn("schedule cache write failed", "key", key, "error", err)
	case stored == 0:
		s.logger.Debug("schedule cache fill skipped after concurrent write", "key", key)
	}
	return entries, nil
}

func (s *CachedScheduleStore) InsertSchedule(ctx context.Context, entry ScheduleEntry) error {
	if err := s.inner.InsertSchedule(ctx, entry); err != nil {
		return err
	}
	s.invalidate(ctx, entry.DoctorID)
	return nil
}

func (s *CachedScheduleStore) UpdateSchedule(ctx context.Context, entry ScheduleEntry) error {
	if err := s.inner.UpdateSchedule(ctx, entry); err != nil {
		return err
	}
	s.invalidate(ctx, entry.DoctorID)
	return nil
}

func (s *CachedScheduleStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	entry, err := s.inner.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.inner.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, entry.DoctorID)
	return nil
}

func (s *CachedScheduleStore) invalidate(ctx context.Context, doctorID uuid.UUID) {
	key, genKey := scheduleCacheKey(doctorID), scheduleGenKey(doctorID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		s.logger.Error("schedule cache invalidation failed", "key", key, "error", err)
	}
}
