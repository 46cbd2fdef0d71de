package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/picksy/syncd/internal/validation"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Store       StoreConfig       `koanf:"store"`
	Replication ReplicationConfig `koanf:"replication"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Bridge      BridgeConfig      `koanf:"bridge"`
	Import      ImportConfig      `koanf:"import"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig configures the HTTP command surface
type ServerConfig struct {
	Address         string        `koanf:"address" validate:"required"`
	APIKey          string        `koanf:"api_key"`
	APIKeyHeader    string        `koanf:"api_key_header" validate:"required"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig holds replicated store credentials and local storage locations
type StoreConfig struct {
	AppID        string `koanf:"app_id"`
	SharedToken  string `koanf:"shared_token"`
	AuthURL      string `koanf:"auth_url"`
	WebsocketURL string `koanf:"websocket_url"`
	DataDir      string `koanf:"data_dir" validate:"required"`
	DatabaseURL  string `koanf:"database_url"`
	DeviceName   string `koanf:"device_name"`
}

// UsePostgres returns true if PostgreSQL should back the document store
func (s *StoreConfig) UsePostgres() bool {
	return s.DatabaseURL != ""
}

// ReplicationConfig tunes the relay link
type ReplicationConfig struct {
	ReconnectDelay     time.Duration `koanf:"reconnect_delay" validate:"gt=0"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"gte=1"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// PipelineConfig tunes the upsert pipeline
type PipelineConfig struct {
	BatchSize         int           `koanf:"batch_size" validate:"gte=1"`
	QueueCapacity     int           `koanf:"queue_capacity" validate:"gte=1"`
	QueuePolicy       string        `koanf:"queue_policy" validate:"oneof=block reject"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxAttachmentSize int64         `koanf:"max_attachment_size" validate:"gte=0"`
}

// BridgeConfig tunes snapshot emission
type BridgeConfig struct {
	MinInterval time.Duration `koanf:"min_interval" validate:"gte=0"`
}

// ImportConfig tunes the photo importer
type ImportConfig struct {
	EnqueueBatchSize int `koanf:"enqueue_batch_size" validate:"gte=1"`
	ThumbnailSize    int `koanf:"thumbnail_size" validate:"gte=16"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// TelemetryConfig configures OpenTelemetry export
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	Environment  string `koanf:"environment"`
}

// ErrMissingCredentials means the store credentials or endpoints are absent
var ErrMissingCredentials = errors.New("missing replicated store credentials")

// ConfigurationError is fatal at startup
type ConfigurationError struct {
	Missing []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("configuration error: %v: %s", e.Err, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ConfigPathEnvVar overrides the config file location
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":5000",
			APIKeyHeader:    "X-API-Key",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			DataDir: "./data",
		},
		Replication: ReplicationConfig{
			ReconnectDelay:     2 * time.Second,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			BatchSize:         50,
			QueueCapacity:     64,
			QueuePolicy:       "block",
			HeartbeatInterval: 5 * time.Second,
			Timeout:           60 * time.Second,
			MaxAttachmentSize: 2 * 1024 * 1024,
		},
		Bridge: BridgeConfig{
			MinInterval: 100 * time.Millisecond,
		},
		Import: ImportConfig{
			EnqueueBatchSize: 25,
			ThumbnailSize:    300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			Environment:  "development",
		},
	}
}

// Load layers defaults, the optional YAML file and the environment, then validates
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.Store.DataDir = absDir
	if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks credentials first, then every tagged rule
func (c *Config) Validate() error {
	var missing []string
	if c.Store.AppID == "" {
		missing = append(missing, "DITTO_APP_ID")
	}
	if c.Store.SharedToken == "" {
		missing = append(missing, "DITTO_PLAYGROUND_TOKEN")
	}
	if c.Store.AuthURL == "" {
		missing = append(missing, "DITTO_AUTH_URL")
	}
	if c.Store.WebsocketURL == "" {
		missing = append(missing, "DITTO_WEBSOCKET_URL")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing, Err: ErrMissingCredentials}
	}

	if err := validation.ValidateStruct(c); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variables to koanf paths
var envMappings = map[string]string{
	"DITTO_APP_ID":                "store.app_id",
	"DITTO_PLAYGROUND_TOKEN":      "store.shared_token",
	"DITTO_AUTH_URL":              "store.auth_url",
	"DITTO_WEBSOCKET_URL":         "store.websocket_url",
	"DATABASE_URL":                "store.database_url",
	"API_KEY":                     "server.api_key",
	"SERVER_ADDRESS":              "server.address",
	"LOG_LEVEL":                   "logging.level",
	"LOG_FORMAT":                  "logging.format",
	"OTEL_ENABLED":                "telemetry.enabled",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "telemetry.otlp_endpoint",
	"ENVIRONMENT":                 "telemetry.environment",
}

// envFallbacks are older names, used only when the primary name is unset
var envFallbacks = map[string]string{
	"DITTO_DATABASE_ID":  "DITTO_APP_ID",
	"DITTO_SHARED_TOKEN": "DITTO_PLAYGROUND_TOKEN",
}

// envPrefix namespaces every other setting: PICKSY_PIPELINE__BATCH_SIZE -> pipeline.batch_size
const envPrefix = "PICKSY_"

func envTransform(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	path := envKey(key)
	if path == "" {
		return "", nil
	}
	if path == "server.cors_origins" {
		origins := strings.Split(value, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		return path, origins
	}
	return path, value
}

func envKey(key string) string {
	if path, ok := envMappings[key]; ok {
		return path
	}
	if primary, ok := envFallbacks[key]; ok {
		if os.Getenv(primary) != "" {
			return ""
		}
		return envMappings[primary]
	}
	if strings.HasPrefix(key, envPrefix) {
		rest := strings.ToLower(strings.TrimPrefix(key, envPrefix))
		return strings.ReplaceAll(rest, "__", ".")
	}
	return ""
}
