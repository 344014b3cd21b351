package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"willow-api" validate:"required"`
	Version                       string   `env:"APP_VERSION" envDefault:"dev"`
	Port                          int      `env:"PORT" envDefault:"3004" validate:"min=1,max=65535"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"120"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"120"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST,PUT,DELETE"`
	MaxUploadBytes                int64    `env:"HTTP_SERVER_MAX_UPLOAD_BYTES" envDefault:"1073741824"` // 1GB
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" envDefault:"localhost" validate:"required"`
	DatabasePort                  string        `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" envDefault:""`
	DatabasePassword              string        `env:"DB_PASSWORD" envDefault:""`
	DatabaseName                  string        `env:"DB_NAME" envDefault:"willow" validate:"required"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"10m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`

	// Redis. Package locks stay in-process when RedisEnabled is false.
	RedisEnabled   bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost      string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	LockKeyPrefix  string `env:"LOCK_KEY_PREFIX" envDefault:"willow:lock:"`
	LockTTLSeconds int    `env:"LOCK_TTL_SECONDS" envDefault:"600" validate:"min=1"`

	// Kafka producer for import lifecycle events
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEventsTopic  string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"import-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" envDefault:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" envDefault:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Tracing
	OTLPEndpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol string        `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"none" validate:"oneof=none grpc http"`
	OTLPInsecure bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTLPTimeout  time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" envDefault:"10s"`

	// Package handling
	PackageStoreRoot    string `env:"PACKAGE_STORE_ROOT" envDefault:"data/packages" validate:"required"`
	AttachmentStoreRoot string `env:"ATTACHMENT_STORE_ROOT" envDefault:"data/attachments" validate:"required"`
	StagingParallelism  int    `env:"STAGING_PARALLELISM" envDefault:"4" validate:"min=1"`
	RequireSignature    bool   `env:"PACKAGE_REQUIRE_SIGNATURE" envDefault:"false"`
	SigningKey          string `env:"PACKAGE_SIGNING_KEY" envDefault:"" validate:"required_if=RequireSignature true"`
	VocabularyFile      string `env:"VOCABULARY_FILE" envDefault:""`

	// Duplicate detection
	PersonMatchThreshold   float64 `env:"PERSON_MATCH_THRESHOLD" envDefault:"0.85" validate:"gt=0,lte=1"`
	BuildingMatchThreshold float64 `env:"BUILDING_MATCH_THRESHOLD" envDefault:"0.8" validate:"gt=0,lte=1"`
	BirthYearWindow        int     `env:"BIRTH_YEAR_WINDOW" envDefault:"2" validate:"min=0"`
	BuildingRadiusMeters   float64 `env:"BUILDING_RADIUS_METERS" envDefault:"50" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the given .env files (missing ones are skipped), then the
// process environment, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	var existing []string
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DatabaseURL is the lib/pq connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}
