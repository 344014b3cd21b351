package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/willow/config"
	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/internal/repositories/conflict"
	"github.com/Ramsey-B/willow/internal/repositories/importpackage"
	"github.com/Ramsey-B/willow/pkg/committing"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/duplicates"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/importing"
	"github.com/Ramsey-B/willow/pkg/integrity"
	"github.com/Ramsey-B/willow/pkg/locks"
	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/middleware"
	"github.com/Ramsey-B/willow/pkg/packagestore"
	conflictroutes "github.com/Ramsey-B/willow/pkg/routes/conflict"
	"github.com/Ramsey-B/willow/pkg/routes/health"
	importroutes "github.com/Ramsey-B/willow/pkg/routes/importpackage"
	"github.com/Ramsey-B/willow/pkg/staging"
	"github.com/Ramsey-B/willow/pkg/startup"
	"github.com/Ramsey-B/willow/pkg/validation"
	"github.com/Ramsey-B/willow/pkg/vocabulary"
)

func runServe(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra := &infrastructure{cfg: cfg, logger: logger}
	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(infra.tracingDependency())
	s.AddDependency(infra.postgresDependency())
	s.AddDependency(infra.redisDependency())
	s.AddDependency(infra.kafkaDependency())
	s.AddDependency(infra.httpDependency())

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	logger.WithField("port", cfg.Port).Infof("%s %s started", cfg.AppName, cfg.Version)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.InitialFields = map[string]any{"app": cfg.AppName, "version": cfg.Version}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func (i *infrastructure) httpDependency() *dependency {
	return &dependency{
		name:      "http",
		dependsOn: []string{"tracing", "postgres", "redis", "kafka"},
		start: func(ctx context.Context) error {
			service, err := i.newImportService()
			if err != nil {
				return err
			}

			var redisPinger health.Pinger
			if i.redis != nil {
				redisPinger = health.PingFunc(func(ctx context.Context) error {
					return i.redis.Ping(ctx).Err()
				})
			}
			checker := health.NewChecker(i.db, redisPinger, i.cfg.Version)

			e := i.newEcho(service, checker)
			i.server = &http.Server{
				Addr:              fmt.Sprintf(":%d", i.cfg.Port),
				Handler:           e,
				ReadTimeout:       time.Duration(i.cfg.HttpServerReadTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(i.cfg.ReadHeaderTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(i.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(i.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    i.cfg.MaxHeaderBytes,
			}

			go func() {
				if err := i.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					i.logger.WithError(err).Error("HTTP server stopped")
					checker.SetReady(false)
				}
			}()
			checker.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			if i.server == nil {
				return nil
			}
			return i.server.Shutdown(ctx)
		},
	}
}

func (i *infrastructure) newImportService() (*importing.Service, error) {
	cfg, logger := i.cfg, i.logger

	files, err := packagestore.NewFileStore(cfg.PackageStoreRoot, logger)
	if err != nil {
		return nil, err
	}
	attachments, err := packagestore.NewAttachmentStore(cfg.AttachmentStoreRoot, logger)
	if err != nil {
		return nil, err
	}

	codes := vocabulary.Default()
	if cfg.VocabularyFile != "" {
		if codes, err = vocabulary.LoadFile(cfg.VocabularyFile); err != nil {
			return nil, err
		}
	}

	stagingStores := repositories.NewPostgresStagingStores(i.db, logger)
	production := repositories.NewPostgresProductionStores(i.db, logger)
	conflicts := conflict.NewRepository(i.db, logger)

	var locker locks.Locker = locks.NewLocalLocker()
	if i.redis != nil {
		locker = locks.NewRedisLocker(i.redis, cfg.LockKeyPrefix, logger)
	}

	emitter := events.NewNoopEmitter(logger)
	if i.producer != nil {
		emitter = events.NewEmitter(i.producer, logger)
	}

	return importing.NewService(importing.Dependencies{
		Packages:   importpackage.NewRepository(i.db, logger),
		Conflicts:  conflicts,
		Staging:    stagingStores,
		Production: production,
		Transactor: database.NewTransactor(i.db),
		Files:      files,
		Verifier: integrity.NewVerifier(integrity.Config{
			RequireSignature: cfg.RequireSignature,
			SigningKey:       cfg.SigningKey,
		}, codes, logger),
		Stager:   staging.NewService(stagingStores, attachments, staging.Config{Parallelism: cfg.StagingParallelism}, logger),
		Pipeline: validation.NewDefaultPipeline(stagingStores, production, codes, logger),
		Detector: duplicates.NewService(stagingStores, production, conflicts, duplicates.Config{
			PersonThreshold:      cfg.PersonMatchThreshold,
			BuildingThreshold:    cfg.BuildingMatchThreshold,
			BirthYearWindow:      cfg.BirthYearWindow,
			BuildingRadiusMeters: cfg.BuildingRadiusMeters,
		}, logger),
		Merger:    merging.NewEngine(stagingStores, production, logger),
		Committer: committing.NewCommitter(stagingStores, production, logger),
		Locker:    locker,
		Events:    emitter,
	}, importing.Config{LockTTL: cfg.LockTTL()}, logger), nil
}

func (i *infrastructure) newEcho(service *importing.Service, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(i.logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(i.cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: i.cfg.AllowOrigins,
		AllowMethods: i.cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(i.logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	importroutes.NewHandler(service, i.logger).Register(
		api.Group("/import-packages", echomiddleware.BodyLimit(fmt.Sprintf("%dB", i.cfg.MaxUploadBytes))),
	)
	conflictroutes.NewHandler(service, i.logger).Register(api.Group("/conflicts"))
	return e
}
