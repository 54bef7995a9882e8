package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

// Config holds all configuration for the feed client and the reference server
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Socket    SocketConfig    `mapstructure:"socket"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// APIConfig identifies the feed API and the user a client acts for
type APIConfig struct {
	Host      string `mapstructure:"host"`
	Key       string `mapstructure:"key"` // public key, never the secret one
	UserID    string `mapstructure:"user_id"`
	UserToken string `mapstructure:"user_token"`
}

// HTTPConfig contains the REST transport settings
type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// SocketConfig contains the push channel settings
type SocketConfig struct {
	Path              string        `mapstructure:"path"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
}

// FeedConfig selects the feed to synchronise and its default options
type FeedConfig struct {
	ID                       string `mapstructure:"id"`
	domain.FeedClientOptions `mapstructure:",squash"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// ServerConfig contains the reference API server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains the message store configuration. An empty path
// keeps everything in memory.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // badger, sqlite
	Path   string `mapstructure:"path"`
}

// InMemory reports whether the store runs without a directory
func (d DatabaseConfig) InMemory() bool {
	return d.Path == ""
}

// AuthConfig contains user token settings of the reference server
type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	PublicKeys  []string      `mapstructure:"public_keys"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from file and environment variables
// Priority: ENV vars > config.yaml > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return load(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("FEEDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "http://localhost:12345")
	v.SetDefault("api.key", "")
	v.SetDefault("api.user_id", "")
	v.SetDefault("api.user_token", "")

	// Transport defaults
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.initial_interval", "500ms")
	v.SetDefault("http.max_interval", "10s")

	// Socket defaults
	v.SetDefault("socket.path", "/ws/v1/websocket")
	v.SetDefault("socket.heartbeat_interval", "30s")
	v.SetDefault("socket.join_timeout", "10s")

	// Feed defaults
	v.SetDefault("feed.id", "")
	v.SetDefault("feed.page_size", 0)
	v.SetDefault("feed.status", "")
	v.SetDefault("feed.source", "")
	v.SetDefault("feed.tenant", "")
	v.SetDefault("feed.archived", string(domain.ArchivedExclude))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 12345)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Database defaults
	v.SetDefault("database.driver", "badger")
	v.SetDefault("database.path", "")

	// Auth defaults
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_expiry", "24h")
	v.SetDefault("auth.public_keys", []string{})

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_minute", 1000)
	v.SetDefault("rate_limit.burst", 100)

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

func validate(cfg *Config) error {
	if strings.HasPrefix(cfg.API.Key, "sk_") {
		return fmt.Errorf("api.key: %w", domain.ErrSecretKey)
	}

	if cfg.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must not be negative, got: %d", cfg.HTTP.MaxRetries)
	}
	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got: %s", cfg.HTTP.Timeout)
	}

	if !strings.HasPrefix(cfg.Socket.Path, "/") {
		return fmt.Errorf("socket.path must start with '/', got: %s", cfg.Socket.Path)
	}

	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" && cfg.Server.Mode != "test" {
		return fmt.Errorf("server.mode must be 'debug', 'release' or 'test', got: %s", cfg.Server.Mode)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}

	if cfg.Database.Driver != "badger" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'badger' or 'sqlite', got: %s", cfg.Database.Driver)
	}

	if cfg.Auth.TokenSecret != "" && len(cfg.Auth.TokenSecret) < 32 {
		return fmt.Errorf("auth.token_secret must be at least 32 characters long")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got: %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text', got: %s", cfg.Logging.Format)
	}

	return nil
}
