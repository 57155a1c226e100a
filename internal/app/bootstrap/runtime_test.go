package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/directory"
	"github.com/wolfman30/clinic-scheduling/internal/locking"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func TestBuildRuntimeRequiresConfig(t *testing.T) {
	_, err := BuildRuntime(context.Background(), nil, logging.New("error"))
	assert.Error(t, err)
}

func TestBuildRuntimeInMemory(t *testing.T) {
	cfg := &appconfig.Config{LockBackend: appconfig.LockBackendLocal, DirectorySeedFile: "testdata/directory.json"}

	rt, err := BuildRuntime(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Pool)
	assert.Nil(t, rt.Redis)
	assert.Nil(t, rt.Audit)
	assert.IsType(t, &scheduling.MemoryStore{}, rt.Schedules)
	assert.IsType(t, &locking.LocalLocker{}, rt.Locker)

	doc, err := rt.Directory.Find(context.Background(), uuid.MustParse("7d1c3a52-1b4e-4f57-9a0e-3f2b8c6d9e01"), directory.RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, "Meredith Grey", doc.FullName())

	deps := rt.SchedulingDeps(scheduling.DefaultRules(), nil)
	assert.Nil(t, deps.Audit)
	assert.NotNil(t, scheduling.NewScheduleCatalog(deps))
}

func TestBuildRuntimeMissingSeed(t *testing.T) {
	cfg := &appconfig.Config{DirectorySeedFile: "testdata/missing.json"}
	_, err := BuildRuntime(context.Background(), cfg, logging.New("error"))
	assert.ErrorContains(t, err, "bootstrap: open directory seed")
}

func TestBuildRuntimeRedisLockWithoutRedis(t *testing.T) {
	cfg := &appconfig.Config{LockBackend: appconfig.LockBackendRedis}
	_, err := BuildRuntime(context.Background(), cfg, logging.New("error"))
	assert.ErrorContains(t, err, "redis lock backend selected")
}

func TestBuildRedisClient(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, true)
	require.NotNil(t, client)
	defer func() { _ = client.Close() }()
	assert.NoError(t, client.Ping(context.Background()).Err())

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, nil, true))
}

func TestBuildStoresWrapsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	logger := logging.New("error")

	schedules, appointments := BuildStores(&appconfig.Config{ScheduleCacheTTL: time.Minute}, nil, client, logger)
	assert.IsType(t, &scheduling.CachedScheduleStore{}, schedules)
	assert.IsType(t, &scheduling.MemoryStore{}, appointments)

	schedules, _ = BuildStores(&appconfig.Config{}, nil, client, logger)
	assert.IsType(t, &scheduling.MemoryStore{}, schedules)
}

func TestBuildLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	logger := logging.New("error")

	l, err := BuildLocker(&appconfig.Config{LockBackend: appconfig.LockBackendRedis, LockTTL: time.Second}, nil, client, logger)
	require.NoError(t, err)
	assert.IsType(t, &locking.RedisLocker{}, l)

	bounded, err := BuildLocker(&appconfig.Config{LockBackend: appconfig.LockBackendLocal, LockWaitTimeout: 20 * time.Millisecond}, nil, nil, logger)
	require.NoError(t, err)
	release, err := bounded.Lock(context.Background(), "doctor:1")
	require.NoError(t, err)
	_, err = bounded.Lock(context.Background(), "doctor:1")
	assert.ErrorIs(t, err, locking.ErrWaitTimeout)
	release()

	_, err = BuildLocker(&appconfig.Config{LockBackend: appconfig.LockBackendPostgres}, nil, nil, logger)
	assert.ErrorContains(t, err, "postgres lock backend selected")

	_, err = BuildLocker(&appconfig.Config{LockBackend: "zookeeper"}, nil, nil, logger)
	assert.ErrorContains(t, err, "unknown lock backend")
}
