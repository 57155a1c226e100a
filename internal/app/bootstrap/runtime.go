package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduling/internal/audit"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/directory"
	"github.com/wolfman30/clinic-scheduling/internal/locking"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// Runtime is the set of backing services the API process runs on.
type Runtime struct {
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Schedules    scheduling.ScheduleStore
	Appointments scheduling.AppointmentStore
	Directory    directory.Lookup
	Locker       locking.Locker
	Audit        *audit.Service

	auditDB  *sql.DB
	lockPool *pgxpool.Pool
}

// Close releases every connection the runtime opened.
func (rt *Runtime) Close() {
	if rt.auditDB != nil {
		_ = rt.auditDB.Close()
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.lockPool != nil {
		rt.lockPool.Close()
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}

// SchedulingDeps assembles the shared dependencies of the catalog and the
// lifecycle.
func (rt *Runtime) SchedulingDeps(rules scheduling.Rules, logger *logging.Logger) scheduling.Deps {
	deps := scheduling.Deps{
		Rules:        rules,
		Schedules:    rt.Schedules,
		Appointments: rt.Appointments,
		Directory:    rt.Directory,
		Locker:       rt.Locker,
		Logger:       logger,
	}
	if rt.Audit != nil {
		deps.Audit = rt.Audit
	}
	return deps
}

// BuildRuntime connects to Postgres and Redis as configured. Without a
// DATABASE_URL it falls back to in-memory stores.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	rt := &Runtime{}
	pool, err := BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	rt.Pool = pool
	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)

	if rt.Pool != nil {
		rt.Directory = directory.NewPostgresDirectory(rt.Pool)
		rt.auditDB = stdlib.OpenDBFromPool(rt.Pool)
		rt.Audit = audit.NewService(rt.auditDB)
	} else {
		dir, err := BuildMemoryDirectory(cfg.DirectorySeedFile)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Directory = dir
	}
	rt.Schedules, rt.Appointments = BuildStores(cfg, rt.Pool, rt.Redis, logger)

	if cfg.LockBackend == appconfig.LockBackendPostgres && rt.Pool != nil {
		rt.lockPool, err = BuildLockPool(ctx, cfg.DatabaseURL, cfg.LockPoolMaxConns)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	rt.Locker, err = BuildLocker(cfg, rt.lockPool, rt.Redis, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// BuildPostgresPool returns nil when databaseURL is empty.
func BuildPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = logging.Default()
	}
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		return nil, nil
	}
	pool, err := connectPool(ctx, databaseURL, 0)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// BuildLockPool opens the small pool that PostgresLocker holds its
// transactions on, apart from the pool the stores query through.
func BuildLockPool(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	if maxConns <= 0 {
		maxConns = 4
	}
	return connectPool(ctx, strings.TrimSpace(databaseURL), int32(maxConns))
}

func connectPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse database url: %w", err)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildMemoryDirectory loads the seed file, or returns an empty directory
// when path is empty.
func BuildMemoryDirectory(path string) (*directory.MemoryDirectory, error) {
	if strings.TrimSpace(path) == "" {
		return directory.NewMemoryDirectory(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open directory seed: %w", err)
	}
	defer func() { _ = f.Close() }()
	return directory.LoadMemoryDirectory(f)
}

// BuildStores picks Postgres or in-memory storage and fronts schedule reads
// with the Redis cache when both Redis and a cache TTL are configured.
func BuildStores(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (scheduling.ScheduleStore, scheduling.AppointmentStore) {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		schedules    scheduling.ScheduleStore
		appointments scheduling.AppointmentStore
	)
	if pool != nil {
		store := scheduling.NewPostgresStore(pool)
		schedules, appointments = store, store
	} else {
		store := scheduling.NewMemoryStore()
		schedules, appointments = store, store
	}
	if redisClient != nil && cfg.ScheduleCacheTTL > 0 {
		logger.Info("schedule cache enabled", "ttl", cfg.ScheduleCacheTTL.String())
		schedules = scheduling.NewCachedScheduleStore(schedules, redisClient, cfg.ScheduleCacheTTL, logger)
	}
	return schedules, appointments
}

// BuildLocker returns the per-doctor lock for cfg.LockBackend, bounded by
// cfg.LockWaitTimeout. For the postgres backend lockPool must be a pool
// reserved for locks.
func BuildLocker(cfg *appconfig.Config, lockPool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (locking.Locker, error) {
	var locker locking.Locker
	switch cfg.LockBackend {
	case "", appconfig.LockBackendLocal:
		locker = locking.NewLocalLocker()
	case appconfig.LockBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis lock backend selected but redis is unavailable")
		}
		locker = locking.NewRedisLocker(redisClient, cfg.LockTTL, cfg.LockRetryInterval, logger)
	case appconfig.LockBackendPostgres:
		if lockPool == nil {
			return nil, fmt.Errorf("bootstrap: postgres lock backend selected but postgres is unavailable")
		}
		locker = locking.NewPostgresLocker(lockPool, cfg.LockRetryInterval, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown lock backend %q", cfg.LockBackend)
	}
	return locking.WithWaitTimeout(locker, cfg.LockWaitTimeout), nil
}
