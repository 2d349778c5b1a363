package bootstrap

import (
	"strings"

	"subscan_server/adapter/in/http"
	"subscan_server/config"
	"subscan_server/infra/middleware"
	"subscan_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "subscan-api",
	})

	middleware.InitJWKS(cfg.SupabaseURL)

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	middleware.InitTokenBlacklist(deps.Redis)
	middleware.InitAuditLogger(deps.Redis)

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		Prefork:               false,
		StrictRouting:         false,
		CaseSensitive:         false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:   10 * 1024 * 1024,
		Concurrency: 256 * 1024,

		ServerHeader:             "",
		DisableDefaultDate:       true,
		DisableHeaderNormalizing: false,
		DisableKeepalive:         false,

		StreamRequestBody:            true,
		DisablePreParseMultipartForm: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.PreventPathTraversal())
	app.Use(middleware.InputSanitizer())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(middleware.ETag())

	// CORS - AllowCredentials:true requires explicit origins, never "*"
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	healthHandler := http.NewHealthHandlerWithDeps(deps.DB, deps.Redis)
	healthHandler.Register(app)

	// Mailbox-scanning API, behind bearer auth and rate limiting. The handler
	// mounts its own /v1/... paths, so it's registered on a plain authed group.
	authed := app.Group("")
	rateLimiter := middleware.NewAdvancedRateLimiter(middleware.DefaultRateLimitConfig())
	authed.Use(rateLimiter.Handler())
	authed.Use(middleware.JWTAuth(cfg.JWTSecret))
	authed.Use(middleware.AuditMiddleware())

	if deps.ScanOrchestrator != nil {
		scanHandler := http.NewScanHandler(deps.ScanOrchestrator, deps.ScanOrchestrator)
		scanHandler.Register(authed)
		logger.Info("Scan handler registered")
	} else {
		logger.Warn("Scan pipeline unavailable, /v1/gmail/* routes not registered")
	}

	logger.Info("API server initialized successfully")

	return app, cleanup, nil
}
