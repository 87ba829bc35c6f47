// Package config provides configuration for the trip agent.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModeMock runs with the builtin capability catalog and the mock LLM.
const ModeMock = "MOCK"

// Config holds the trip agent configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`
	RPCPort  int `yaml:"rpc_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Capabilities
	Mode            string   `yaml:"mode"`
	CapabilityURL   string   `yaml:"capability_url"`
	CapabilityRPS   float64  `yaml:"capability_rps"`
	CatalogFile     string   `yaml:"catalog_file"`
	PolicyDenyTools []string `yaml:"policy_deny_tools"`

	// LLM
	LLMBaseURL string `yaml:"llm_base_url"`
	LLMAPIKey  string `yaml:"llm_api_key"`
	LLMModel   string `yaml:"llm_model"`

	// Timeouts
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	IntentTimeout   time.Duration `yaml:"intent_timeout"`
	EnrichDeadline  time.Duration `yaml:"enrich_deadline"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	SessionLockWait time.Duration `yaml:"session_lock_wait"`
	SessionCacheTTL time.Duration `yaml:"session_cache_ttl"`

	// Planning
	EnrichMaxConcurrency int   `yaml:"enrich_max_concurrency"`
	MaxTripDays          int   `yaml:"max_trip_days"`
	TransportFlatCost    int64 `yaml:"transport_flat_cost"`
	StreamChunkRunes     int   `yaml:"stream_chunk_runes"`

	// WebSocket
	WSPingInterval   time.Duration `yaml:"ws_ping_interval"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	WSReadTimeout    time.Duration `yaml:"ws_read_timeout"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`

	// Observability
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:             8080,
		RPCPort:              8082,
		DatabaseURL:          "file:tripagent.db?cache=shared&mode=rwc",
		Mode:                 ModeMock,
		CapabilityRPS:        10,
		LLMModel:             "Qwen/Qwen2.5-7B-Instruct",
		ToolTimeout:          8 * time.Second,
		IntentTimeout:        3 * time.Second,
		EnrichDeadline:       20 * time.Second,
		GenerateTimeout:      15 * time.Second,
		SessionCacheTTL:      24 * time.Hour,
		EnrichMaxConcurrency: 8,
		MaxTripDays:          15,
		TransportFlatCost:    100,
		StreamChunkRunes:     16,
		WSPingInterval:       30 * time.Second,
		WSWriteTimeout:       10 * time.Second,
		WSReadTimeout:        60 * time.Second,
		WSMaxMessageSize:     65536,
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// environment variables, in increasing priority.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.RPCPort = getEnvInt("RPC_PORT", c.RPCPort)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.Mode = strings.ToUpper(getEnv("TRIPAGENT_MODE", c.Mode))
	c.CapabilityURL = getEnv("CAPABILITY_URL", c.CapabilityURL)
	c.CapabilityRPS = getEnvFloat("CAPABILITY_RPS", c.CapabilityRPS)
	c.CatalogFile = getEnv("CATALOG_FILE", c.CatalogFile)
	if val := os.Getenv("POLICY_DENY_TOOLS"); val != "" {
		c.PolicyDenyTools = splitList(val)
	}

	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMAPIKey = getEnv("LLM_API_KEY", c.LLMAPIKey)
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)

	c.ToolTimeout = getEnvMs("TOOL_TIMEOUT_MS", c.ToolTimeout)
	c.IntentTimeout = getEnvMs("INTENT_TIMEOUT_MS", c.IntentTimeout)
	c.EnrichDeadline = getEnvMs("ENRICH_DEADLINE_MS", c.EnrichDeadline)
	c.GenerateTimeout = getEnvMs("GENERATE_TIMEOUT_MS", c.GenerateTimeout)
	c.SessionLockWait = getEnvMs("SESSION_LOCK_WAIT_MS", c.SessionLockWait)
	c.SessionCacheTTL = time.Duration(getEnvInt("SESSION_CACHE_TTL_MIN", int(c.SessionCacheTTL/time.Minute))) * time.Minute

	c.EnrichMaxConcurrency = getEnvInt("ENRICH_MAX_CONCURRENCY", c.EnrichMaxConcurrency)
	c.MaxTripDays = getEnvInt("MAX_TRIP_DAYS", c.MaxTripDays)
	c.TransportFlatCost = int64(getEnvInt("TRANSPORT_FLAT_COST", int(c.TransportFlatCost)))
	c.StreamChunkRunes = getEnvInt("STREAM_CHUNK_RUNES", c.StreamChunkRunes)

	c.WSPingInterval = getEnvMs("WS_PING_INTERVAL_MS", c.WSPingInterval)
	c.WSWriteTimeout = getEnvMs("WS_WRITE_TIMEOUT_MS", c.WSWriteTimeout)
	c.WSReadTimeout = getEnvMs("WS_READ_TIMEOUT_MS", c.WSReadTimeout)
	c.WSMaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(c.WSMaxMessageSize)))

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ToolTimeout <= 0 {
		errs = append(errs, errors.New("tool timeout must be positive"))
	}
	if c.IntentTimeout <= 0 {
		errs = append(errs, errors.New("intent timeout must be positive"))
	}
	if c.EnrichDeadline <= 0 {
		errs = append(errs, errors.New("enrich deadline must be positive"))
	}
	if c.GenerateTimeout <= 0 {
		errs = append(errs, errors.New("generate timeout must be positive"))
	}
	if c.SessionLockWait < 0 {
		errs = append(errs, errors.New("session lock wait must not be negative"))
	}
	if c.EnrichMaxConcurrency < 1 {
		errs = append(errs, errors.New("enrich max concurrency must be at least 1"))
	}
	if c.MaxTripDays < 1 {
		errs = append(errs, errors.New("max trip days must be at least 1"))
	}
	if c.TransportFlatCost < 0 {
		errs = append(errs, errors.New("transport flat cost must not be negative"))
	}
	if c.StreamChunkRunes < 1 {
		errs = append(errs, errors.New("stream chunk runes must be at least 1"))
	}
	if c.Mode != ModeMock && c.LLMAPIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required outside MOCK mode"))
	}
	return errors.Join(errs...)
}

// MockMode reports whether builtin capabilities and the mock LLM are used.
func (c *Config) MockMode() bool {
	return c.Mode == ModeMock
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvMs(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
