package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Static clinic dataset
	DataDir string

	// Availability engine
	BufferMinutes       int
	SlotPageSize        int
	SearchHorizonDays   int
	NoShowFeeCents      int
	LateCancelFeeCents  int
	CancelCutoffHours   int

	// Dialogue
	MaxRetries      int
	OptionsCacheTTL time.Duration
	HistoryLimit    int

	// Session registry
	SessionIdleTimeout time.Duration
	EvictionInterval   time.Duration

	// Knowledge base
	MinConfidence     float64
	SemanticThreshold float64

	// Optional Gemini NLU / embeddings
	GeminiAPIKey           string
	GeminiModelID          string
	GeminiEmbeddingModelID string

	// Optional appointment store backends
	StorageBackend string // "memory", "redis" or "postgres"
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string

	// SendGrid confirmation emails
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// HTTP surface
	CORSAllowedOrigins []string
	ChatRatePerSecond  float64
	ChatBurst          int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataDir: getEnv("DATA_DIR", "data"),

		BufferMinutes:      getEnvAsInt("BUFFER_MINUTES", 10),
		SlotPageSize:       getEnvAsInt("SLOT_PAGE_SIZE", 5),
		SearchHorizonDays:  getEnvAsInt("SEARCH_HORIZON_DAYS", 7),
		NoShowFeeCents:     getEnvAsInt("NO_SHOW_FEE_CENTS", 10000),
		LateCancelFeeCents: getEnvAsInt("LATE_CANCEL_FEE_CENTS", 5000),
		CancelCutoffHours:  getEnvAsInt("CANCEL_CUTOFF_HOURS", 24),

		MaxRetries:      getEnvAsInt("DIALOGUE_MAX_RETRIES", 3),
		OptionsCacheTTL: getEnvAsDuration("OPTIONS_CACHE_TTL", 5*time.Minute),
		HistoryLimit:    getEnvAsInt("HISTORY_LIMIT", 20),

		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		EvictionInterval:   getEnvAsDuration("SESSION_EVICTION_INTERVAL", 5*time.Minute),

		MinConfidence:     getEnvAsFloat("KB_MIN_CONFIDENCE", 0.15),
		SemanticThreshold: getEnvAsFloat("KB_SEMANTIC_THRESHOLD", 0.55),

		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:          getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		GeminiEmbeddingModelID: getEnv("GEMINI_EMBEDDING_MODEL_ID", "text-embedding-004"),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "MedApp Scheduling"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ChatRatePerSecond:  getEnvAsFloat("CHAT_RATE_PER_SECOND", 2),
		ChatBurst:          getEnvAsInt("CHAT_BURST", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable; empty items
// are dropped.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
