package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string
	// Agent backend (remote conversation orchestrator)
	AgentBaseURL string
	AgentAPIKey  string
	// Cache configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// CacheTrustTTL selects the staleness policy for conversation history reads.
	// true: a cache hit is served as-is, trusting the TTL window.
	// false: a cache hit is validated against the durable store's latest
	// message timestamp and invalidated when the store proves newer.
	CacheTrustTTL bool
	// LogDir enables mirrored file logging when set. Empty disables it.
	LogDir string
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)
	supabaseURL := getEnv("SUPABASE_URL", "")

	// Construct JWKS URL from Supabase URL
	jwksURL := supabaseURL + "/auth/v1/.well-known/jwks.json"

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		SupabaseURL:     supabaseURL,
		SupabaseDBURL:   getEnv("SUPABASE_DB_URL", ""),
		SupabaseJWKSURL: jwksURL,
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     tablePrefix,
		// Agent backend
		AgentBaseURL: getEnv("AGENT_BASE_URL", "http://localhost:2024"),
		AgentAPIKey:  getEnv("AGENT_API_KEY", ""),
		// Cache
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTrustTTL: getEnv("CACHE_TRUST_TTL", "true") == "true",
		LogDir:        getEnv("LOG_DIR", ""),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
