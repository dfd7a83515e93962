package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Relational/vector store (PostgreSQL + pgvector)
	Database DatabaseConfig

	// Graph store (Bolt)
	Graph GraphConfig

	Routing RoutingConfig

	Sync SyncConfig

	Health HealthConfig

	// Redis backs the routing decision cache; empty URL disables it
	Redis RedisConfig

	Otel OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"dualstore"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"dualstore"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// GraphConfig holds Bolt driver settings. Works with Neo4j and NornicDB.
type GraphConfig struct {
	URI                   string        `env:"GRAPH_URI" envDefault:"bolt://localhost:7687"`
	User                  string        `env:"GRAPH_USER" envDefault:"neo4j"`
	Password              string        `env:"GRAPH_PASSWORD" envDefault:""`
	Database              string        `env:"GRAPH_DATABASE" envDefault:""`
	MaxPoolSize           int           `env:"GRAPH_MAX_POOL_SIZE" envDefault:"50"`
	AcquisitionTimeout    time.Duration `env:"GRAPH_ACQUISITION_TIMEOUT" envDefault:"30s"`
	ConnectTimeout        time.Duration `env:"GRAPH_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxConnectionLifetime time.Duration `env:"GRAPH_MAX_CONNECTION_LIFETIME" envDefault:"1h"`
}

// RoutingConfig bounds the query path.
type RoutingConfig struct {
	// QueryTimeout applies to every single store call
	QueryTimeout      time.Duration `env:"QUERY_TIMEOUT" envDefault:"30s"`
	MaxTraversalDepth int           `env:"MAX_TRAVERSAL_DEPTH" envDefault:"3"`
	MaxResultLimit    int           `env:"MAX_RESULT_LIMIT" envDefault:"100"`
	DefaultLimit      int           `env:"DEFAULT_RESULT_LIMIT" envDefault:"10"`
	// DefaultThreshold is used when a query carries no similarity threshold
	DefaultThreshold float64 `env:"DEFAULT_SIMILARITY_THRESHOLD" envDefault:"0.7"`
	// RegistryFile optionally overrides the built-in capability registry (YAML)
	RegistryFile string        `env:"ROUTING_REGISTRY_FILE" envDefault:""`
	CacheTTL     time.Duration `env:"ROUTING_CACHE_TTL" envDefault:"30s"`
}

// SyncConfig configures the synchronization coordinator.
type SyncConfig struct {
	BatchSize        int    `env:"SYNC_BATCH_SIZE" envDefault:"100"`
	MaxBatchSize     int    `env:"SYNC_MAX_BATCH_SIZE" envDefault:"100"`
	DefaultDirection string `env:"SYNC_DIRECTION" envDefault:"vector_to_graph"`
	// Schedule is a cron expression; empty disables scheduled runs
	Schedule        string        `env:"SYNC_SCHEDULE" envDefault:"*/5 * * * *"`
	Concurrency     int           `env:"SYNC_CONCURRENCY" envDefault:"1"`
	AdaptiveScaling bool          `env:"SYNC_ADAPTIVE_SCALING" envDefault:"false"`
	ItemsPerSecond  float64       `env:"SYNC_MAX_ITEMS_PER_SECOND" envDefault:"0"`
	ConflictPolicy  string        `env:"SYNC_CONFLICT_POLICY" envDefault:"source_wins"`
	ItemTimeout     time.Duration `env:"SYNC_ITEM_TIMEOUT" envDefault:"30s"`
}

// HealthConfig configures the store health monitor.
type HealthConfig struct {
	Interval           time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"10s"`
	CheckTimeout       time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"3s"`
	StalenessThreshold time.Duration `env:"HEALTH_STALENESS_THRESHOLD" envDefault:"30s"`
	FailureThreshold   int           `env:"HEALTH_FAILURE_THRESHOLD" envDefault:"1"`
	LatencyWarning     time.Duration `env:"HEALTH_LATENCY_WARNING" envDefault:"500ms"`
}

// RedisConfig holds the decision cache connection.
type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:""`
}

// Enabled returns true when a redis URL is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// OtelConfig controls span export. Tracing is off when no endpoint is set.
type OtelConfig struct {
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"dualstore"`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
}

func (o OtelConfig) Enabled() bool {
	return o.ExporterEndpoint != ""
}

// Validate rejects settings that would make the core unsafe to run.
func (c *Config) Validate() error {
	var problems []string
	if c.Routing.MaxTraversalDepth < 1 {
		problems = append(problems, "MAX_TRAVERSAL_DEPTH must be >= 1")
	}
	if c.Routing.MaxResultLimit < 1 {
		problems = append(problems, "MAX_RESULT_LIMIT must be >= 1")
	}
	if c.Routing.QueryTimeout <= 0 {
		problems = append(problems, "QUERY_TIMEOUT must be positive")
	}
	if c.Routing.DefaultThreshold < 0 || c.Routing.DefaultThreshold > 1 {
		problems = append(problems, "DEFAULT_SIMILARITY_THRESHOLD must be within [0, 1]")
	}
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > c.Sync.MaxBatchSize {
		problems = append(problems, "SYNC_BATCH_SIZE must be within [1, SYNC_MAX_BATCH_SIZE]")
	}
	if c.Sync.Concurrency < 1 {
		problems = append(problems, "SYNC_CONCURRENCY must be >= 1")
	}
	switch c.Sync.DefaultDirection {
	case "vector_to_graph", "graph_to_vector", "bidirectional":
	default:
		problems = append(problems, fmt.Sprintf("SYNC_DIRECTION %q is not a known direction", c.Sync.DefaultDirection))
	}
	switch c.Sync.ConflictPolicy {
	case "source_wins", "target_wins":
	default:
		problems = append(problems, fmt.Sprintf("SYNC_CONFLICT_POLICY %q is not supported", c.Sync.ConflictPolicy))
	}
	if c.Otel.SamplingRate < 0 || c.Otel.SamplingRate > 1 {
		problems = append(problems, "OTEL_SAMPLING_RATE must be within [0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load parses the environment without logging. The CLI uses it directly.
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

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("graph_uri", cfg.Graph.URI),
		slog.Int("max_traversal_depth", cfg.Routing.MaxTraversalDepth),
		slog.String("sync_direction", cfg.Sync.DefaultDirection),
		slog.Bool("decision_cache", cfg.Redis.Enabled()),
	)

	return cfg, nil
}
