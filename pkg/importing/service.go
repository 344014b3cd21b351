// Package importing drives an import package through its lifecycle: intake,
// staging and validation, duplicate review, approval and commit.
package importing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/pkg/committing"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/duplicates"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/integrity"
	"github.com/Ramsey-B/willow/pkg/locks"
	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/packagestore"
	"github.com/Ramsey-B/willow/pkg/staging"
	"github.com/Ramsey-B/willow/pkg/validation"
)

type Config struct {
	// LockTTL bounds how long one command may hold a package.
	LockTTL time.Duration
}

// Dependencies are the collaborators the service orchestrates.
type Dependencies struct {
	Packages   repositories.ImportPackageRepository
	Conflicts  repositories.ConflictRepository
	Staging    *repositories.StagingStores
	Production *repositories.ProductionStores
	Transactor database.Transactor
	Files      *packagestore.FileStore
	Verifier   *integrity.Verifier
	Stager     *staging.Service
	Pipeline   *validation.Pipeline
	Detector   *duplicates.Service
	Merger     *merging.Engine
	Committer  *committing.Committer
	Locker     locks.Locker
	Events     *events.Emitter
}

type Service struct {
	Dependencies
	config Config
	logger ectologger.Logger
	now    func() time.Time
}

func NewService(deps Dependencies, config Config, logger ectologger.Logger) *Service {
	if config.LockTTL <= 0 {
		config.LockTTL = 10 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = locks.NewLocalLocker()
	}
	if deps.Events == nil {
		deps.Events = events.NewNoopEmitter(logger)
	}
	return &Service{
		Dependencies: deps,
		config:       config,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// stateError maps domain sentinel errors onto status-carrying errors.
func stateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrConflictNotPending):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNotApprovable):
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return err
}

func (s *Service) withPackageLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	return locks.WithLock(ctx, s.Locker, locks.PackageKey(id.String()), s.config.LockTTL, fn)
}

// save persists pkg and, when its status moved away from `from`, records
// the transition and emits it. Event delivery never fails the command.
func (s *Service) save(ctx context.Context, pkg *models.ImportPackage, from models.PackageStatus, reason, actorID string) error {
	if err := s.Packages.Update(ctx, pkg); err != nil {
		return err
	}
	if pkg.Status != from {
		s.transitioned(ctx, pkg, from, reason, actorID)
	}
	return nil
}

func (s *Service) transitioned(ctx context.Context, pkg *models.ImportPackage, from models.PackageStatus, reason, actorID string) {
	metrics.RecordTransition(string(pkg.Status))
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"import_package_id": pkg.ID,
		"package_number":    pkg.PackageNumber,
		"from":              from,
		"to":                pkg.Status,
	}).Info("Import package status changed")
	if err := s.Events.EmitStatusChanged(ctx, pkg, from, reason, actorID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Status change event not delivered")
	}
}

// fail records cause on the package and returns it. The package is reloaded
// so a half-applied in-memory copy never reaches the store.
func (s *Service) fail(ctx context.Context, id uuid.UUID, step string, cause error, actorID string) error {
	log := s.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"import_package_id": id,
		"step":              step,
	})
	log.Error("Import step failed")

	pkg, err := s.Packages.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to reload package to record failure")
		return cause
	}
	from := pkg.Status
	diagnostics := map[string]any{
		"step":  step,
		"error": cause.Error(),
	}
	if httperror.IsHTTPError(cause) {
		diagnostics["status_code"] = httperror.GetStatusCode(cause)
	}
	if err := pkg.MarkAsFailed(cause.Error(), diagnostics, actorID, s.now()); err != nil {
		log.WithError(err).Warn("Package cannot be marked failed")
		return cause
	}
	if err := s.save(ctx, pkg, from, cause.Error(), actorID); err != nil {
		log.WithError(err).Error("Failed to record package failure")
	}
	return cause
}

func (s *Service) GetPackage(ctx context.Context, id uuid.UUID) (*models.ImportPackage, error) {
	return s.Packages.GetByID(ctx, id)
}

func (s *Service) ListPackages(ctx context.Context, filter models.ImportPackageFilter) ([]*models.ImportPackage, error) {
	return s.Packages.List(ctx, filter)
}
