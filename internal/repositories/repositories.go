// Package repositories declares the persistence ports used by the import
// pipeline and the per-kind registries that let services iterate every
// staging and production table without knowing the concrete row types.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

type ImportPackageRepository interface {
	Create(ctx context.Context, pkg *models.ImportPackage) error
	// GetByID returns a 404 httperror when the package does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImportPackage, error)
	// GetByPackageID looks a package up by its client GUID. It returns nil
	// and no error when none exists.
	GetByPackageID(ctx context.Context, packageID uuid.UUID) (*models.ImportPackage, error)
	// Update saves pkg when its RowVersion still matches the stored one and
	// returns a 409 httperror otherwise.
	Update(ctx context.Context, pkg *models.ImportPackage) error
	List(ctx context.Context, filter models.ImportPackageFilter) ([]*models.ImportPackage, error)
	NextPackageNumber(ctx context.Context, now time.Time) (string, error)
}

type ConflictRepository interface {
	Create(ctx context.Context, conflict *models.ConflictResolution) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConflictResolution, error)
	// Update is optimistic on RowVersion like ImportPackageRepository.Update.
	Update(ctx context.Context, conflict *models.ConflictResolution) error
	ListByPackage(ctx context.Context, importPackageID uuid.UUID, filter models.ConflictFilter) ([]*models.ConflictResolution, error)
	CountPendingByPackage(ctx context.Context, importPackageID uuid.UUID) (int, error)
	// FindPendingForPair returns the PendingReview conflict covering a and b
	// in either order, or nil.
	FindPendingForPair(ctx context.Context, importPackageID uuid.UUID, a, b uuid.UUID) (*models.ConflictResolution, error)
	// IgnorePendingByPackage moves every PendingReview conflict of the
	// package to Ignored and returns how many were touched.
	IgnorePendingByPackage(ctx context.Context, importPackageID uuid.UUID, reason, actorID string, now time.Time) (int, error)
	NextConflictNumber(ctx context.Context, now time.Time) (string, error)
}

// StagingRepository stores the staging rows of one kind. Rows are unique
// per (ImportPackageID, OriginalEntityID).
type StagingRepository[T models.StagingRecord] interface {
	Insert(ctx context.Context, rows []T) error
	GetByPackageID(ctx context.Context, importPackageID uuid.UUID) ([]T, error)
	GetByPackageAndOriginalID(ctx context.Context, importPackageID, originalID uuid.UUID) (T, bool, error)
	GetByPackageAndStatus(ctx context.Context, importPackageID uuid.UUID, status models.ValidationStatus) ([]T, error)
	GetByIDs(ctx context.Context, importPackageID uuid.UUID, ids []uuid.UUID) ([]T, error)
	GetStatusCountsByPackage(ctx context.Context, importPackageID uuid.UUID) (models.StatusCounts, error)
	Update(ctx context.Context, row T) error
	UpdateRange(ctx context.Context, rows []T) error
	DeleteByPackageID(ctx context.Context, importPackageID uuid.UUID) (int, error)
}

// ProductionRepository stores production entities of one kind. Readers
// never return soft-deleted rows.
type ProductionRepository[T models.ProductionRecord] interface {
	Insert(ctx context.Context, entity T) error
	GetByID(ctx context.Context, id uuid.UUID) (T, bool, error)
	Update(ctx context.Context, entity T) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type PersonRepository interface {
	ProductionRepository[*models.Person]
	FindByNationalID(ctx context.Context, nationalID string) ([]*models.Person, error)
	// FindByBirthYearRange returns persons born in [from, to].
	FindByBirthYearRange(ctx context.Context, from, to int) ([]*models.Person, error)
}

type BuildingRepository interface {
	ProductionRepository[*models.Building]
	FindByAdministrativeCode(ctx context.Context, code string) ([]*models.Building, error)
}

// ReferenceRepository rewrites foreign keys in production tables.
type ReferenceRepository interface {
	// Repoint changes fk from one entity to another on live rows and
	// returns the number of rows changed.
	Repoint(ctx context.Context, fk models.ForeignKey, from, to uuid.UUID, actorID string, now time.Time) (int, error)
}
