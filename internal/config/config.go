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

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Env string

	Listener  ListenerConfig
	DB        DatabaseConfig
	Redis     RedisConfig
	HTTP      HTTPConfig
	PacketLog PacketLogConfig
	Migrate   MigrateConfig
}

// ListenerConfig describes the UDP socket and the wire revision spoken on it.
type ListenerConfig struct {
	Host       string
	Port       int
	BufferSize int
	Protocol   string // "legacy" or "current"
}

// Addr returns the host:port the listener binds to.
func (c ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// IdleTimeout is how long the session stays open after the last write.
	IdleTimeout time.Duration
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int

	// SyncInterval is how often every known station list is republished.
	SyncInterval time.Duration
}

// HTTPConfig controls the status endpoint.
type HTTPConfig struct {
	Enabled   bool
	Port      string
	CORSHosts []string
}

// PacketLogConfig controls the per-system packet log. An empty Dir disables it.
type PacketLogConfig struct {
	Dir string
}

// MigrateConfig controls the optional schema bootstrap.
type MigrateConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Missing .env is fine; production relies on the real environment.
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Env = getEnv("ENV", "development")

	var err error

	// Listener
	cfg.Listener = ListenerConfig{
		Host:       getEnv("PTS_LISTEN_HOST", ""),
		Port:       getEnvInt("PTS_LISTEN_PORT", 1236),
		BufferSize: getEnvInt("PTS_BUFFER_SIZE", 1024),
		Protocol:   strings.ToLower(getEnv("PTS_PROTOCOL", "current")),
	}

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
	if cfg.DB.IdleTimeout, err = parseDurationEnv("DB_IDLE_TIMEOUT", "5s"); err != nil {
		return nil, fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}

	// Redis (station directory mirror)
	cfg.Redis = RedisConfig{
		Enabled:  getEnvBool("REDIS_ENABLED", false),
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
	if cfg.Redis.SyncInterval, err = parseDurationEnv("REDIS_SYNC_INTERVAL", "5m"); err != nil {
		return nil, fmt.Errorf("invalid REDIS_SYNC_INTERVAL: %w", err)
	}

	cfg.HTTP = HTTPConfig{
		Enabled:   getEnvBool("HTTP_ENABLED", true),
		Port:      getEnv("HTTP_PORT", "8080"),
		CORSHosts: getEnvList("HTTP_CORS_HOSTS", "localhost:3000,127.0.0.1:3000"),
	}
	cfg.PacketLog = PacketLogConfig{Dir: getEnv("PACKET_LOG_DIR", "")}
	cfg.Migrate = MigrateConfig{
		Enabled: getEnvBool("DB_MIGRATE", false),
		Path:    getEnv("DB_MIGRATIONS_PATH", "file://migrations"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
		return errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}
	if c.Listener.Port <= 0 || c.Listener.Port > 65535 {
		return fmt.Errorf("PTS_LISTEN_PORT out of range: %d", c.Listener.Port)
	}
	if c.Listener.BufferSize <= 0 {
		return fmt.Errorf("PTS_BUFFER_SIZE must be > 0")
	}
	if c.Listener.Protocol != "legacy" && c.Listener.Protocol != "current" {
		return fmt.Errorf("PTS_PROTOCOL must be \"legacy\" or \"current\", got %q", c.Listener.Protocol)
	}
	if c.DB.IdleTimeout <= 0 {
		return errors.New("DB_IDLE_TIMEOUT must be > 0")
	}
	if c.Redis.Enabled && c.Redis.SyncInterval <= 0 {
		return errors.New("REDIS_SYNC_INTERVAL must be > 0 when REDIS_ENABLED is set")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getEnvBool returns the value of an environment variable as a bool or a default if empty/invalid.
func getEnvBool(key string, def bool) bool {
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

// getEnvList splits a comma-separated environment variable, dropping blanks.
func getEnvList(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
