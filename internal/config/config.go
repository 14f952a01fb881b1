// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort                = 8080
	defaultServerHost                = "0.0.0.0"
	defaultReadTimeout               = 30 * time.Second
	defaultWriteTimeout              = 30 * time.Second
	defaultDatabasePath              = "./data/marquee.db"
	defaultDatabaseConnectionTimeout = 5 * time.Second
	defaultDatabaseEnableWAL         = true
	defaultMigrationsPath            = "file://./migrations"
	defaultLogLevel                  = "info"
	defaultLogPretty                 = false
	defaultCacheTTL                  = 24 * time.Hour
	defaultCacheCapacity             = 50
	defaultCacheBackend              = CacheBackendSQLite
	defaultHistoryCapacity           = 20
	defaultOEmbedURL                 = "https://www.youtube.com/oembed"
	defaultDurationURL               = "https://noembed.com/embed"
	defaultMetadataTimeout           = 5 * time.Second
	defaultAutoplay                  = true
	defaultProbeTimeout              = 10 * time.Second
	defaultAdminPassphrase           = "admin123"
	defaultLoginRate                 = 1.0
	defaultLoginBurst                = 5
	defaultRefreshInterval           = 30 * time.Second
	defaultAdCatalogPath             = "./config/ads.json"
	envPrefix                        = "MARQUEE"

	// MinPassphraseLength is the shortest admin passphrase accepted.
	MinPassphraseLength = 6
)

// Cache backend names
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Cache    CacheConfig
	History  HistoryConfig
	Metadata MetadataConfig
	Playback PlaybackConfig
	Access   AccessConfig
	Refresh  RefreshConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path              string
	ConnectionTimeout time.Duration
	EnableWAL         bool
	MigrationsPath    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// CacheConfig holds metadata cache configuration and where its state is persisted
type CacheConfig struct {
	TTL           time.Duration
	Capacity      int
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// HistoryConfig holds watch history configuration
type HistoryConfig struct {
	Capacity int
}

// MetadataConfig holds remote metadata lookup configuration
type MetadataConfig struct {
	OEmbedURL   string
	DurationURL string
	Timeout     time.Duration
}

// PlaybackConfig holds playback backend configuration
type PlaybackConfig struct {
	// Autoplay reports whether the playback environment permits starting without a user gesture
	Autoplay     bool
	ProbeTimeout time.Duration
}

// AccessConfig holds admin gate configuration
type AccessConfig struct {
	DefaultPassphrase string
	LoginRate         float64
	LoginBurst        int
}

// RefreshConfig holds background refresh configuration
type RefreshConfig struct {
	Interval      time.Duration
	AdCatalogPath string
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// .env files are optional in production and CI where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/marquee")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.connectiontimeout", defaultDatabaseConnectionTimeout)
	v.SetDefault("database.enablewal", defaultDatabaseEnableWAL)
	v.SetDefault("database.migrationspath", defaultMigrationsPath)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	v.SetDefault("cache.ttl", defaultCacheTTL)
	v.SetDefault("cache.capacity", defaultCacheCapacity)
	v.SetDefault("cache.backend", defaultCacheBackend)
	v.SetDefault("cache.redisaddr", "")
	v.SetDefault("cache.redispassword", "")
	v.SetDefault("cache.redisdb", 0)

	v.SetDefault("history.capacity", defaultHistoryCapacity)

	v.SetDefault("metadata.oembedurl", defaultOEmbedURL)
	v.SetDefault("metadata.durationurl", defaultDurationURL)
	v.SetDefault("metadata.timeout", defaultMetadataTimeout)

	v.SetDefault("playback.autoplay", defaultAutoplay)
	v.SetDefault("playback.probetimeout", defaultProbeTimeout)

	v.SetDefault("access.defaultpassphrase", defaultAdminPassphrase)
	v.SetDefault("access.loginrate", defaultLoginRate)
	v.SetDefault("access.loginburst", defaultLoginBurst)

	v.SetDefault("refresh.interval", defaultRefreshInterval)
	v.SetDefault("refresh.adcatalogpath", defaultAdCatalogPath)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}
	if c.Database.ConnectionTimeout <= 0 {
		return fmt.Errorf("invalid database connection timeout: %v (must be > 0)", c.Database.ConnectionTimeout)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid cache ttl: %v (must be > 0)", c.Cache.TTL)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache capacity: %d (must be >= 1)", c.Cache.Capacity)
	}
	validBackends := []string{CacheBackendSQLite, CacheBackendRedis, CacheBackendMemory}
	if !contains(validBackends, c.Cache.Backend) {
		return fmt.Errorf("invalid cache backend: %s (must be one of: %s)", c.Cache.Backend, strings.Join(validBackends, ", "))
	}
	if c.Cache.Backend == CacheBackendRedis && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache backend %q requires cache.redisaddr", CacheBackendRedis)
	}

	if c.History.Capacity < 1 {
		return fmt.Errorf("invalid history capacity: %d (must be >= 1)", c.History.Capacity)
	}

	if c.Metadata.Timeout <= 0 {
		return fmt.Errorf("invalid metadata timeout: %v (must be > 0)", c.Metadata.Timeout)
	}
	if c.Playback.ProbeTimeout <= 0 {
		return fmt.Errorf("invalid probe timeout: %v (must be > 0)", c.Playback.ProbeTimeout)
	}

	if len(c.Access.DefaultPassphrase) < MinPassphraseLength {
		return fmt.Errorf("invalid default passphrase: must be at least %d characters", MinPassphraseLength)
	}
	if c.Access.LoginRate <= 0 || c.Access.LoginBurst < 1 {
		return fmt.Errorf("invalid login rate limit: rate %v burst %d", c.Access.LoginRate, c.Access.LoginBurst)
	}

	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("invalid refresh interval: %v (must be > 0)", c.Refresh.Interval)
	}

	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
