package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment names
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`

	// Storage configuration
	StorageBackend   string `yaml:"storage_backend"`
	StorageNamespace string `yaml:"storage_namespace"`
	SQLitePath       string `yaml:"sqlite_path"`
	BadgerDir        string `yaml:"badger_dir"`

	// AWS configuration
	AWSRegion    string `yaml:"aws_region"`
	TableName    string `yaml:"table_name"`
	EventBusName string `yaml:"event_bus_name"`

	// Sentence source
	SupabaseURL    string `yaml:"supabase_url"`
	SupabaseKey    string `yaml:"supabase_key"`
	SupabaseUserID string `yaml:"supabase_user_id"`

	// Graph export
	Neo4jURI      string `yaml:"neo4j_uri"`
	Neo4jUsername string `yaml:"neo4j_username"`
	Neo4jPassword string `yaml:"neo4j_password"`
	Neo4jDatabase string `yaml:"neo4j_database"`

	// Observability
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Sync
	SyncInterval time.Duration `yaml:"sync_interval"`

	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker"`

	// Feature flags
	EnableEvents  bool `yaml:"enable_events"`
	EnableMetrics bool `yaml:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing"`
	EnableCORS    bool `yaml:"enable_cors"`

	// ConfigFile is the YAML overlay the config was read from, if any
	ConfigFile string `yaml:"-"`
}

// CircuitBreaker configures the breaker in front of the blob store
type CircuitBreaker struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests"`
}

// LoadConfig loads configuration from the environment. A .env file (ENV_FILE,
// or .env in the working directory) fills unset variables, and the YAML file
// named by CONFIG_FILE overrides whatever it sets.
func LoadConfig() (*Config, error) {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := fromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", Development),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		StorageBackend:   getEnv("STORAGE_BACKEND", BackendMemory),
		StorageNamespace: getEnv("STORAGE_NAMESPACE", "fluent-graph"),
		SQLitePath:       getEnv("SQLITE_PATH", "data/fluent.db"),
		BadgerDir:        getEnv("BADGER_DIR", "data/badger"),

		AWSRegion:    getEnv("AWS_REGION", "us-west-2"),
		TableName:    getEnv("TABLE_NAME", "fluent-graph"),
		EventBusName: getEnv("EVENT_BUS_NAME", "fluent-events"),

		SupabaseURL:    getEnv("SUPABASE_URL", ""),
		SupabaseKey:    getEnv("SUPABASE_KEY", ""),
		SupabaseUserID: getEnv("SUPABASE_USER_ID", ""),

		Neo4jURI:      getEnv("NEO4J_URI", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
		SyncInterval: getEnvDuration("SYNC_INTERVAL", 0),

		CircuitBreaker: CircuitBreaker{
			Enabled:          getEnvBool("CIRCUIT_BREAKER_ENABLED", true),
			MaxRequests:      uint32(getEnvInt("CIRCUIT_BREAKER_MAX_REQUESTS", 3)),
			Interval:         getEnvDuration("CIRCUIT_BREAKER_INTERVAL", 30*time.Second),
			Timeout:          getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second),
			FailureThreshold: getEnvFloat("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 0.6),
			MinRequests:      uint32(getEnvInt("CIRCUIT_BREAKER_MIN_REQUESTS", 5)),
		},

		EnableEvents:  getEnvBool("ENABLE_EVENTS", false),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}
}

// overlay replaces fields of c with the values set in the YAML file at path
func (c *Config) overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown ENVIRONMENT %q", c.Environment)
	}

	if c.StorageNamespace == "" {
		return fmt.Errorf("STORAGE_NAMESPACE is required")
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("BADGER_DIR is required for the badger backend")
		}
	case BackendDynamoDB:
		if c.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.EnableEvents && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required when events are enabled")
	}
	if c.SupabaseURL != "" && (c.SupabaseKey == "" || c.SupabaseUserID == "") {
		return fmt.Errorf("SUPABASE_KEY and SUPABASE_USER_ID are required with SUPABASE_URL")
	}
	if c.CircuitBreaker.FailureThreshold <= 0 || c.CircuitBreaker.FailureThreshold > 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_FAILURE_THRESHOLD must be in (0, 1]")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// HasSupabase reports whether captured sentences come from Supabase
func (c *Config) HasSupabase() bool {
	return c.SupabaseURL != ""
}

// HasNeo4j reports whether graph export is configured
func (c *Config) HasNeo4j() bool {
	return c.Neo4jURI != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
