package importpackage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const table = "import_packages"

var packageStruct = database.NewStruct(new(models.ImportPackage))

// Repository handles import package persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, pkg *models.ImportPackage) error {
	ctx, span := tracing.StartSpan(ctx, "importpackage.Repository.Create")
	defer span.End()

	query, args := packageStruct.InsertInto(table, pkg).Build()
	if _, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"package_id": pkg.PackageID}).Error("Failed to create import package")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import package")
	}
	return nil
}

func (r *Repository) getOne(ctx context.Context, column string, value any) (*models.ImportPackage, error) {
	sb := packageStruct.SelectFrom(table)
	sb.Where(sb.Equal(column, value))
	query, args := sb.Build()

	var pkg models.ImportPackage
	if err := database.GetExecutor(ctx, r.db).GetContext(ctx, &pkg, query, args...); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportPackage, error) {
	ctx, span := tracing.StartSpan(ctx, "importpackage.Repository.GetByID")
	defer span.End()

	pkg, err := r.getOne(ctx, "id", id)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "import package %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_package_id": id}).Error("Failed to get import package")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import package")
	}
	return pkg, nil
}

func (r *Repository) GetByPackageID(ctx context.Context, packageID uuid.UUID) (*models.ImportPackage, error) {
	ctx, span := tracing.StartSpan(ctx, "importpackage.Repository.GetByPackageID")
	defer span.End()

	pkg, err := r.getOne(ctx, "package_id", packageID)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"package_id": packageID}).Error("Failed to get import package by package id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import package")
	}
	return pkg, nil
}

func (r *Repository) Update(ctx context.Context, pkg *models.ImportPackage) error {
	ctx, span := tracing.StartSpan(ctx, "importpackage.Repository.Update")
	defer span.End()

	expected := pkg.RowVersion
	pkg.RowVersion++

	ub := packageStruct.Update(table, pkg)
	ub.Where(
		ub.Equal("id", pkg.ID),
		ub.Equal("row_version", expected),
	)
	query, args := ub.Build()

	result, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		pkg.RowVersion = expected
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_package_id": pkg.ID}).Error("Failed to update import package")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import package")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		pkg.RowVersion = expected
		return httperror.NewHTTPErrorf(http.StatusConflict, "import package %s was modified concurrently", pkg.ID)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter models.ImportPackageFilter) ([]*models.ImportPackage, error) {
	ctx, span := tracing.StartSpan(ctx, "importpackage.Repository.List")
	defer span.End()

	limit := filter.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := packageStruct.SelectFrom(table)
	if filter.Status != "" {
		sb.Where(sb.Equal("status", filter.Status))
	}
	sb.OrderBy("created_at_utc").Desc()
	sb.Limit(limit)
	sb.Offset(filter.Offset)

	query, args := sb.Build()
	var pkgs []*models.ImportPackage
	if err := database.GetExecutor(ctx, r.db).SelectContext(ctx, &pkgs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list import packages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import packages")
	}
	return pkgs, nil
}

// NextPackageNumber draws from import_package_number_seq, formatted as
// PKG-YYYY-NNNNN.
func (r *Repository) NextPackageNumber(ctx context.Context, now time.Time) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "importpackage.Repository.NextPackageNumber")
	defer span.End()

	var seq int64
	if err := database.GetExecutor(ctx, r.db).GetContext(ctx, &seq, "SELECT nextval('import_package_number_seq')"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to draw package number")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to assign package number")
	}
	return FormatPackageNumber(now, seq), nil
}

func FormatPackageNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("PKG-%d-%05d", now.Year(), seq)
}
