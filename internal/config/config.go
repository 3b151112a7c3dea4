package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the raincheck server.
type Config struct {
	Port      int
	Version   string
	Google    GoogleConfig
	OpenAI    OpenAIConfig
	Weather   WeatherConfig
	Store     StoreConfig
	Replan    ReplanConfig
	Telemetry TelemetryConfig
}

// GoogleConfig covers the place directory.
type GoogleConfig struct {
	APIKey string
}

// OpenAIConfig covers the planner and the intent resolver.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// WeatherConfig points at the KMA forecast cloud function and its grid
// cell (nx/ny in the KMA grid; the defaults are Gangneung).
type WeatherConfig struct {
	FunctionURL string
	NX, NY      int
	PollMinutes int
}

// StoreConfig selects the session backend.
type StoreConfig struct {
	Backend     string // memory, sqlite, postgres
	DataDir     string
	SQLitePath  string
	PostgresURL string

	// SessionTTL bounds how long an idle session is kept. Zero keeps
	// sessions forever. The memory backend evicts internally; the SQL
	// backends are swept by the retention janitor.
	SessionTTL time.Duration
}

// ReplanConfig carries the replanning defaults exposed to operators.
type ReplanConfig struct {
	RadiusKM float64
	TopK     int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("RAINCHECK_PORT", 8080),
		Version: envStr("RAINCHECK_VERSION", "0.4.0"),
		Google: GoogleConfig{
			APIKey: envStr("GOOGLE_API_KEY", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey: envStr("OPENAI_API_KEY", ""),
			Model:  envStr("RAINCHECK_OPENAI_MODEL", "gpt-4o-mini"),
		},
		Weather: WeatherConfig{
			FunctionURL: envStr("RAINCHECK_FUNCTION_URL", ""),
			NX:          envInt("RAINCHECK_DEFAULT_NX", 92),
			NY:          envInt("RAINCHECK_DEFAULT_NY", 131),
			PollMinutes: envInt("RAINCHECK_WEATHER_POLL_MINUTES", 60),
		},
		Store: StoreConfig{
			Backend:     envStr("RAINCHECK_STORE", "memory"),
			DataDir:     envStr("RAINCHECK_DATA_DIR", ""),
			SQLitePath:  envStr("RAINCHECK_SQLITE_PATH", ""),
			PostgresURL: envStr("RAINCHECK_POSTGRES_URL", ""),
			SessionTTL:  envDuration("RAINCHECK_SESSION_TTL", 24*time.Hour),
		},
		Replan: ReplanConfig{
			RadiusKM: envFloat("RAINCHECK_ALT_RADIUS_KM", 5.0),
			TopK:     envInt("RAINCHECK_ALT_TOP_K", 3),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "raincheck"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
