package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"subscan_server/pkg/metrics"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func NewHealthHandlerWithDeps(db *pgxpool.Pool, redis *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:    db,
		redis: redis,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/health/latency", h.Latency)
	app.Get("/health/pool", h.Pool)
}

// Pool reports registered database connection pool stats and health
// assessments (postgres, registered via metrics.RegisterPool at startup).
func (h *HealthHandler) Pool(c *fiber.Ctx) error {
	stats := metrics.GetAllPoolStats()
	health := metrics.GetAllPoolHealth()
	out := make(map[string]any, len(stats))
	for name, s := range stats {
		entry := s.ToMap()
		if hs, ok := health[name]; ok {
			entry["health"] = hs
		}
		out[name] = entry
	}
	return c.JSON(fiber.Map{"pools": out})
}

// Latency reports per-route request latency percentiles (§8 observability
// surface), backed by the global LatencyRegistry every request feeds via
// middleware.RequestLogger.
func (h *HealthHandler) Latency(c *fiber.Ctx) error {
	stats := metrics.GetAllLatencyStats()
	out := make(map[string]map[string]any, len(stats))
	for route, s := range stats {
		out[route] = s.ToMap()
	}
	return c.JSON(fiber.Map{"routes": out})
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":        true,
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check PostgreSQL
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["postgres"] = "healthy"
		}
	} else {
		checks["postgres"] = "not configured"
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
