package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	SessionTokenTTL    time.Duration
	GuestTokenTTL      time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://heybe:heybe@db:5432/heybe?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		SessionTokenTTL:    time.Duration(GetInt("SESSION_TOKEN_TTL_HOURS", 72)) * time.Hour,
		GuestTokenTTL:      time.Duration(GetInt("GUEST_TOKEN_TTL_HOURS", 24*30)) * time.Hour,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// BridgeConfig holds configuration for the extension-held storage bridge and
// the page-side probe.
type BridgeConfig struct {
	StorePath          string
	StorageSecret      string
	ProbeFirstDeadline time.Duration
	ProbeInterval      time.Duration
	ProbeMaxAttempts   int
}

// LoadBridgeConfig constructs a BridgeConfig from environment variables.
func LoadBridgeConfig() BridgeConfig {
	return BridgeConfig{
		StorePath:          GetString("BRIDGE_STORE_PATH", "heybe-bridge.db"),
		StorageSecret:      GetString("BRIDGE_STORAGE_SECRET", "supersecuresecret"),
		ProbeFirstDeadline: GetDuration("PROBE_FIRST_DEADLINE", time.Second),
		ProbeInterval:      GetDuration("PROBE_INTERVAL", 100*time.Millisecond),
		ProbeMaxAttempts:   GetInt("PROBE_MAX_ATTEMPTS", 10),
	}
}
