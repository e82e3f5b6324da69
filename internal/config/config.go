package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Backends the item store can run on.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds the item store server configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3100"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// PublicURL is the externally visible server URL; item URLs are built
	// from it. Defaults to http://localhost:{ServerPort}.
	PublicURL string `env:"ITEMSTORE_PUBLIC_URL"`

	// Backend is "memory" or "postgres"
	Backend string `env:"ITEMSTORE_BACKEND" envDefault:"memory"`

	// APIKey, when set, is required in the X-API-Key header (or as a
	// Bearer token) of every /api request.
	APIKey string `env:"ITEMSTORE_API_KEY"`

	// MaxBatchSize caps the number of ids of one list request.
	MaxBatchSize int `env:"ITEMSTORE_MAX_BATCH_SIZE" envDefault:"200"`

	// Database settings
	Database DatabaseConfig

	// Tracing settings
	Otel OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds the PostgreSQL settings of the postgres backend.
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"itemstore"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"itemstore"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"2"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// DSN returns the connection URL. User and password are escaped.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// ItemsURL is the base URL of item resources.
func (c *Config) ItemsURL() string {
	base := c.PublicURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", c.ServerPort)
	}
	return strings.TrimRight(base, "/") + "/api/items"
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid ITEMSTORE_BACKEND %q (must be %q or %q)", c.Backend, BackendMemory, BackendPostgres)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("ITEMSTORE_MAX_BATCH_SIZE must be positive")
	}
	if r := c.Otel.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be between 0 and 1")
	}
	return nil
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfig loads the configuration and logs its main settings.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("backend", cfg.Backend),
		slog.String("items_url", cfg.ItemsURL()),
		slog.Bool("tracing", cfg.Otel.Enabled()),
	)

	return cfg, nil
}
