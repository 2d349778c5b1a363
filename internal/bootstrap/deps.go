package bootstrap

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	scanmailbox "subscan_server/adapter/out/mailbox"
	"subscan_server/adapter/out/queue"
	scanstore "subscan_server/adapter/out/store"
	scantoken "subscan_server/adapter/out/token"
	"subscan_server/config"
	"subscan_server/core/port/out"
	"subscan_server/core/service/orchestrator"
	"subscan_server/infra/database"
	"subscan_server/pkg/cache"
	"subscan_server/pkg/crypto"
	"subscan_server/pkg/logger"
	"subscan_server/pkg/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Dependencies wires the concrete adapters the API and worker processes
// share: Postgres/Redis connections, and the scan pipeline's store, queue,
// token manager, and orchestrator.
type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	ScanStore        out.Store
	ScanQueue        out.Queue
	ScanTokenManager *scantoken.Provider
	ScanDrivers      *scanmailbox.Factory
	ScanOrchestrator *orchestrator.Orchestrator
	ScanConsumer     *queue.Consumer
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx, backed by the same pgx driver, for the store adapter)
	logger.Debug("Connecting to database via sqlx...")
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		logger.Error("sqlx connection failed: %v", err)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)

		deps.SQLDB = sqlDB
		cleanups = append(cleanups, func() { sqlDB.Close() })

		metrics.RegisterPool("postgres", sqlDB.DB)
		logger.Info("sqlx database connection successful (pool: max=%d, idle=%d)", 25, 10)
	}

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis connection failed: %v", err)
	} else {
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
	}

	// Subscription-candidate scan pipeline
	if deps.SQLDB != nil && deps.Redis != nil {
		pgStore := scanstore.New(deps.SQLDB)
		deps.ScanStore = scanstore.NewCachedDirectory(pgStore, cache.NewRedisCache(deps.Redis))
		deps.ScanQueue = queue.NewRedisQueue(deps.Redis)

		tokenKey, err := base64.StdEncoding.DecodeString(cfg.ScanTokenKeyBase64)
		if err != nil || len(tokenKey) == 0 {
			tokenKey = []byte(cfg.JWTSecret)
		}
		encryptor, err := crypto.NewEncryptor(tokenKey)
		if err != nil {
			logger.Warn("Scan token encryptor init failed: %v", err)
		} else {
			deps.ScanTokenManager = scantoken.New(scantoken.GoogleOAuthConfig{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.GoogleRedirectURL,
			}, encryptor)
			deps.ScanDrivers = scanmailbox.NewFactory()
			deps.ScanOrchestrator = orchestrator.New(deps.ScanStore, deps.ScanQueue, deps.ScanTokenManager, deps.ScanDrivers, cfg.WorkerID)
			deps.ScanConsumer = queue.NewConsumer(deps.Redis, queue.ConsumerConfig{
				Group:    "subscan-chunk-workers",
				Consumer: cfg.WorkerID,
				Handler:  deps.ScanOrchestrator.HandleChunk,
			})
			logger.Info("Scan pipeline initialized (orchestrator, Redis chunk queue, Postgres store)")
		}
	} else {
		logger.Warn("Scan pipeline disabled: requires both SQLDB and Redis")
	}

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
