package config

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != defaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, defaultServerPort)
	}
	if cfg.Server.Host != defaultServerHost {
		t.Errorf("Server.Host = %s, want %s", cfg.Server.Host, defaultServerHost)
	}
	if cfg.Database.Path != defaultDatabasePath {
		t.Errorf("Database.Path = %s, want %s", cfg.Database.Path, defaultDatabasePath)
	}
	if cfg.Database.MigrationsPath != defaultMigrationsPath {
		t.Errorf("Database.MigrationsPath = %s, want %s", cfg.Database.MigrationsPath, defaultMigrationsPath)
	}
	if cfg.Logging.Level != defaultLogLevel {
		t.Errorf("Logging.Level = %s, want %s", cfg.Logging.Level, defaultLogLevel)
	}

	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Cache.Capacity != 50 {
		t.Errorf("Cache.Capacity = %d, want 50", cfg.Cache.Capacity)
	}
	if cfg.Cache.Backend != CacheBackendSQLite {
		t.Errorf("Cache.Backend = %s, want %s", cfg.Cache.Backend, CacheBackendSQLite)
	}
	if cfg.History.Capacity != 20 {
		t.Errorf("History.Capacity = %d, want 20", cfg.History.Capacity)
	}
	if cfg.Refresh.Interval != 30*time.Second {
		t.Errorf("Refresh.Interval = %v, want 30s", cfg.Refresh.Interval)
	}
	if cfg.Access.DefaultPassphrase != defaultAdminPassphrase {
		t.Errorf("Access.DefaultPassphrase = %s, want %s", cfg.Access.DefaultPassphrase, defaultAdminPassphrase)
	}
	if !cfg.Playback.Autoplay {
		t.Error("Playback.Autoplay should default to true")
	}
}

func TestConfigEnvVars(t *testing.T) {
	t.Setenv("MARQUEE_SERVER_PORT", "9090")
	t.Setenv("MARQUEE_CACHE_CAPACITY", "10")
	t.Setenv("MARQUEE_CACHE_TTL", "1h")
	t.Setenv("MARQUEE_HISTORY_CAPACITY", "5")
	t.Setenv("MARQUEE_REFRESH_INTERVAL", "45s")
	t.Setenv("MARQUEE_PLAYBACK_AUTOPLAY", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Cache.Capacity != 10 {
		t.Errorf("Cache.Capacity = %d, want 10", cfg.Cache.Capacity)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.History.Capacity != 5 {
		t.Errorf("History.Capacity = %d, want 5", cfg.History.Capacity)
	}
	if cfg.Refresh.Interval != 45*time.Second {
		t.Errorf("Refresh.Interval = %v, want 45s", cfg.Refresh.Interval)
	}
	if cfg.Playback.Autoplay {
		t.Error("Playback.Autoplay = true, want false")
	}
}

// validConfig returns a configuration that passes validation
func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
		},
		Database: DatabaseConfig{
			Path:              "./data/marquee.db",
			ConnectionTimeout: defaultDatabaseConnectionTimeout,
			EnableWAL:         true,
		},
		Logging: LoggingConfig{Level: "info"},
		Cache: CacheConfig{
			TTL:      defaultCacheTTL,
			Capacity: defaultCacheCapacity,
			Backend:  CacheBackendMemory,
		},
		History:  HistoryConfig{Capacity: defaultHistoryCapacity},
		Metadata: MetadataConfig{Timeout: defaultMetadataTimeout},
		Playback: PlaybackConfig{ProbeTimeout: defaultProbeTimeout},
		Access: AccessConfig{
			DefaultPassphrase: defaultAdminPassphrase,
			LoginRate:         defaultLoginRate,
			LoginBurst:        defaultLoginBurst,
		},
		Refresh: RefreshConfig{Interval: defaultRefreshInterval},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "invalid server port (too low)", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "invalid server port (too high)", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "invalid" }, wantErr: true},
		{name: "zero read timeout", mutate: func(c *Config) { c.Server.ReadTimeout = 0 }, wantErr: true},
		{name: "zero cache ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, wantErr: true},
		{name: "zero cache capacity", mutate: func(c *Config) { c.Cache.Capacity = 0 }, wantErr: true},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Cache.Backend = CacheBackendRedis }, wantErr: true},
		{
			name: "redis with address",
			mutate: func(c *Config) {
				c.Cache.Backend = CacheBackendRedis
				c.Cache.RedisAddr = "localhost:6379"
			},
			wantErr: false,
		},
		{name: "zero history capacity", mutate: func(c *Config) { c.History.Capacity = 0 }, wantErr: true},
		{name: "short default passphrase", mutate: func(c *Config) { c.Access.DefaultPassphrase = "abc" }, wantErr: true},
		{name: "zero login burst", mutate: func(c *Config) { c.Access.LoginBurst = 0 }, wantErr: true},
		{name: "zero refresh interval", mutate: func(c *Config) { c.Refresh.Interval = 0 }, wantErr: true},
		{name: "zero probe timeout", mutate: func(c *Config) { c.Playback.ProbeTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		name  string
		slice []string
		item  string
		want  bool
	}{
		{"item exists", []string{"a", "b", "c"}, "b", true},
		{"item does not exist", []string{"a", "b", "c"}, "d", false},
		{"empty slice", []string{}, "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contains(tt.slice, tt.item); got != tt.want {
				t.Errorf("contains() = %v, want %v", got, tt.want)
			}
		})
	}
}
