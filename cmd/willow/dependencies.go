package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/willow/config"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/locks"
	"github.com/Ramsey-B/willow/pkg/tracing"
	"github.com/Ramsey-B/willow/pkg/tracing/exporters"
)

// dependency adapts a pair of closures to startup.StartupDependency.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

// infrastructure holds the connections opened during startup.
type infrastructure struct {
	cfg    *config.Config
	logger ectologger.Logger

	tracerProvider *sdktrace.TracerProvider
	db             database.DB
	sqlDB          *sqlx.DB
	redis          *redis.Client
	producer       *kafka.Producer
	server         *http.Server
}

func (i *infrastructure) tracingDependency() *dependency {
	return &dependency{
		name: "tracing",
		start: func(ctx context.Context) error {
			exporter, err := exporters.NewExporter(ctx, exporters.OTLPConfig{
				Endpoint: i.cfg.OTLPEndpoint,
				Protocol: i.cfg.OTLPProtocol,
				Insecure: i.cfg.OTLPInsecure,
				Timeout:  i.cfg.OTLPTimeout,
			})
			if err != nil {
				return fmt.Errorf("create span exporter: %w", err)
			}
			i.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(resource.NewSchemaless(
					attribute.String("service.name", i.cfg.AppName),
					attribute.String("service.version", i.cfg.Version),
				)),
			)
			otel.SetTracerProvider(i.tracerProvider)
			tracing.SetTracer(i.tracerProvider.Tracer(i.cfg.AppName))
			return nil
		},
		stop: func(ctx context.Context) error {
			if i.tracerProvider == nil {
				return nil
			}
			return i.tracerProvider.Shutdown(ctx)
		},
	}
}

func (i *infrastructure) postgresDependency() *dependency {
	return &dependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			db, err := sqlx.ConnectContext(ctx, i.cfg.DatabaseDriver, i.cfg.DatabaseURL())
			if err != nil {
				return fmt.Errorf("connect to %s: %w", i.cfg.DatabaseHost, err)
			}
			db.SetMaxOpenConns(i.cfg.DatabaseMaxOpenConns)
			db.SetMaxIdleConns(i.cfg.DatabaseMaxIdleConns)
			db.SetConnMaxLifetime(i.cfg.DatabaseConnMaxLifetime)

			migrations := database.NewMigrationService(i.logger, &database.MigrationConfig{
				MigrationFolderPath: i.cfg.DatabaseMigrationFolderPath,
				Version:             i.cfg.DatabaseMigrationVersion,
				Force:               i.cfg.DatabaseMigrationForce,
				AutoRollback:        i.cfg.DatabaseMigrationAutoRollback,
			})
			if err := migrations.MigratePostgres(db.DB, i.cfg.DatabaseName); err != nil {
				db.Close()
				return fmt.Errorf("migrate %s: %w", i.cfg.DatabaseName, err)
			}

			i.sqlDB = db
			i.db = database.NewDatabaseInstance(db, i.logger)
			return nil
		},
		stop: func(context.Context) error {
			if i.sqlDB == nil {
				return nil
			}
			return i.sqlDB.Close()
		},
	}
}

func (i *infrastructure) redisDependency() *dependency {
	return &dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			if !i.cfg.RedisEnabled {
				i.logger.Info("Redis disabled, package locks are process local")
				return nil
			}
			rdb, err := locks.NewRedisClient(ctx, locks.RedisConfig{
				Host:     i.cfg.RedisHost,
				Port:     i.cfg.RedisPort,
				Password: i.cfg.RedisPassword,
				DB:       i.cfg.RedisDB,
			}, i.logger)
			if err != nil {
				return err
			}
			i.redis = rdb
			return nil
		},
		stop: func(context.Context) error {
			if i.redis == nil {
				return nil
			}
			return i.redis.Close()
		},
	}
}

func (i *infrastructure) kafkaDependency() *dependency {
	return &dependency{
		name: "kafka",
		start: func(context.Context) error {
			if !i.cfg.KafkaEnabled {
				i.logger.Info("Kafka disabled, lifecycle events will not be published")
				return nil
			}
			i.producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      i.cfg.KafkaBrokers,
				Topic:        i.cfg.KafkaEventsTopic,
				BatchSize:    i.cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(i.cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: i.cfg.KafkaRequiredAcks,
				Compression:  i.cfg.KafkaCompression,
			}, i.logger)
			return nil
		},
		stop: func(context.Context) error {
			if i.producer == nil {
				return nil
			}
			return i.producer.Close()
		},
	}
}
