package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	DirectURL   string
	RedisURL    string

	// JWT
	JWTSecret string

	// Supabase (JWKS-backed bearer auth)
	SupabaseURL string

	// OAuth - Google (Gmail scan driver)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Worker
	WorkerID string

	// CORS
	AllowedOrigins []string

	// Scan pipeline (§4.H/§4.I/§4.J)
	ScanLeaseTTLSec    int
	ScanInterChunkMS   int
	ScanSSEPollMS      int
	ScanSSEPingSec     int
	ScanDefaultChunkMS int
	ScanTokenKeyBase64 string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DirectURL:   getEnv("DIRECT_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),

		// Supabase
		SupabaseURL: getEnv("SUPABASE_URL", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// Worker
		WorkerID: getEnv("WORKER_ID", generateWorkerID()),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		// Scan pipeline
		ScanLeaseTTLSec:    getEnvInt("SCAN_LEASE_TTL_SEC", 30),
		ScanInterChunkMS:   getEnvInt("SCAN_INTER_CHUNK_MS", 120),
		ScanSSEPollMS:      getEnvInt("SCAN_SSE_POLL_MS", 800),
		ScanSSEPingSec:     getEnvInt("SCAN_SSE_PING_SEC", 2),
		ScanDefaultChunkMS: getEnvInt("SCAN_DEFAULT_CHUNK_MS", 9000),
		ScanTokenKeyBase64: getEnv("SCAN_TOKEN_KEY_BASE64", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
