package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	StorageMemory    = "memory"
	StorageRedis     = "redis"
	StorageFirestore = "firestore"

	TransportHTTP = "http"
	TransportWS   = "ws"
)

// Config is the server configuration.
type Config struct {
	Mode Mode

	Port     string
	LogLevel string
	NodeID   int64

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend string // "memory", "redis" or "firestore"
	RedisURL       string
	SessionTTL     time.Duration

	UseMockLLM bool // true = use mock even on GCP
	// DisableLLM serves every reply from the canned fallback set.
	DisableLLM bool

	MaxContextLength  int
	MaxResponseLength int

	CORSOrigins []string
}

// ClientConfig is the configuration of the chat client.
type ClientConfig struct {
	APIURL          string
	Transport       string // "http" or "ws"
	ExchangeTimeout time.Duration
	// LogFile receives the client logs; empty discards them.
	LogFile  string
	LogLevel string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadDotEnv reads .env when present. Variables already set win.
func loadDotEnv() {
	_ = godotenv.Load()
}

// Load reads all env vars and builds the server config.
func Load() (*Config, error) {
	loadDotEnv()

	var mode Mode
	switch getEnv("AISUITE_MODE", "local") {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	cfg := &Config{
		Mode: mode,

		Port:     getEnv("AISUITE_PORT", getEnv("PORT", "8000")),
		LogLevel: getEnv("AISUITE_LOG_LEVEL", "info"),

		GCPProjectID: getEnv("AISUITE_GCP_PROJECT", ""),
		GCPLocation:  getEnv("AISUITE_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("AISUITE_MODEL_NAME", "gemini-2.5-flash-lite"),

		StorageBackend: strings.ToLower(getEnv("AISUITE_STORAGE_BACKEND", StorageMemory)),
		RedisURL:       getEnv("AISUITE_REDIS_URL", "redis://localhost:6379/0"),

		UseMockLLM: getBoolEnv("AISUITE_USE_MOCK_LLM", mode == ModeLocal),
		DisableLLM: getBoolEnv("AISUITE_DISABLE_LLM", false),

		CORSOrigins: splitList(getEnv("AISUITE_CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.SessionTTL, err = getDurationEnv("AISUITE_SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxContextLength, err = getIntEnv("AISUITE_MAX_CONTEXT_LENGTH", 5); err != nil {
		return nil, err
	}
	if cfg.MaxResponseLength, err = getIntEnv("AISUITE_MAX_RESPONSE_LENGTH", 150); err != nil {
		return nil, err
	}
	nodeID, err := getIntEnv("AISUITE_NODE_ID", 1)
	if err != nil {
		return nil, err
	}
	cfg.NodeID = int64(nodeID)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageRedis, StorageFirestore:
	default:
		return fmt.Errorf("AISUITE_STORAGE_BACKEND: unknown backend %q", c.StorageBackend)
	}

	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return errors.New("AISUITE_GCP_PROJECT must be set in gcp mode")
	}
	if c.StorageBackend == StorageFirestore && c.GCPProjectID == "" {
		return errors.New("AISUITE_GCP_PROJECT is required for the firestore storage backend")
	}
	if c.MaxContextLength <= 0 || c.MaxResponseLength <= 0 {
		return errors.New("AISUITE_MAX_CONTEXT_LENGTH and AISUITE_MAX_RESPONSE_LENGTH must be positive")
	}
	return nil
}

// LoadClient reads the chat client configuration.
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{
		APIURL:    getEnv("AISUITE_API_URL", "http://localhost:8000/api"),
		Transport: strings.ToLower(getEnv("AISUITE_TRANSPORT", TransportHTTP)),
		LogFile:   getEnv("AISUITE_CHAT_LOG", ""),
		LogLevel:  getEnv("AISUITE_LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ExchangeTimeout, err = getDurationEnv("AISUITE_EXCHANGE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case TransportHTTP, TransportWS:
	default:
		return nil, fmt.Errorf("AISUITE_TRANSPORT: unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}
