package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_ENV"` specify the environment variable name.
type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"` // e.g., development, staging, production
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`      // debug, info, warn, error
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	HttpServer  ServerConfig
	GrpcServer  GrpcServerConfig
	Postgres    PostgresConfig
	Mongo       MongoConfig
	CORS        CORSConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port           string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead    time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite   time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle    time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
	RequestTimeout time.Duration `envconfig:"HTTP_SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// GrpcServerConfig holds the port of the gRPC health endpoint.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL database connection details.
type PostgresConfig struct {
	Host           string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port           string `envconfig:"POSTGRES_PORT" default:"5432"`
	User           string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password       string `envconfig:"POSTGRES_PASSWORD"`
	DBName         string `envconfig:"POSTGRES_DBNAME" default:"catalog"`
	SSLMode        string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// MongoConfig holds MongoDB connection details.
// Transactions require a replica set; on a standalone server leave them off.
type MongoConfig struct {
	URI          string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database     string        `envconfig:"MONGO_DATABASE" default:"catalog"`
	Transactions bool          `envconfig:"MONGO_TRANSACTIONS" default:"false"`
	Timeout      time.Duration `envconfig:"MONGO_TIMEOUT" default:"10s"`
}

// CORSConfig lists the origins allowed by the CORS middleware.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load initializes the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: must be one of %q, %q, %q",
			cfg.StoreDriver, DriverPostgres, DriverMongo, DriverMemory)
	}

	return &cfg, nil
}
