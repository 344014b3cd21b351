package conflict

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

const table = "conflict_resolutions"

var conflictStruct = database.NewStruct(new(models.ConflictResolution))

// Repository handles conflict resolution persistence
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

func (r *Repository) Create(ctx context.Context, c *models.ConflictResolution) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Create")
	defer span.End()

	query, args := conflictStruct.InsertInto(table, c).Build()
	if _, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conflict_type":    c.ConflictType,
			"first_entity_id":  c.FirstEntityID,
			"second_entity_id": c.SecondEntityID,
		}).Error("Failed to create conflict")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create conflict")
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConflictResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.GetByID")
	defer span.End()

	sb := conflictStruct.SelectFrom(table)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var c models.ConflictResolution
	if err := database.GetExecutor(ctx, r.db).GetContext(ctx, &c, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "conflict %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conflict_id": id}).Error("Failed to get conflict")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflict")
	}
	return &c, nil
}

func (r *Repository) Update(ctx context.Context, c *models.ConflictResolution) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Update")
	defer span.End()

	expected := c.RowVersion
	c.RowVersion++

	ub := conflictStruct.Update(table, c)
	ub.Where(
		ub.Equal("id", c.ID),
		ub.Equal("row_version", expected),
	)
	query, args := ub.Build()

	result, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		c.RowVersion = expected
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conflict_id": c.ID}).Error("Failed to update conflict")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update conflict")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.RowVersion = expected
		return httperror.NewHTTPErrorf(http.StatusConflict, "conflict %s was modified concurrently", c.ID)
	}
	return nil
}

func (r *Repository) ListByPackage(ctx context.Context, importPackageID uuid.UUID, filter models.ConflictFilter) ([]*models.ConflictResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.ListByPackage")
	defer span.End()

	sb := conflictStruct.SelectFrom(table)
	where := []string{sb.Equal("import_package_id", importPackageID)}
	if filter.Type != "" {
		// within-batch variants share the family name as a prefix
		where = append(where, sb.Like("conflict_type", string(filter.Type)+"%"))
	}
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	sb.Where(where...)
	sb.OrderBy("conflict_number")

	query, args := sb.Build()
	var conflicts []*models.ConflictResolution
	if err := database.GetExecutor(ctx, r.db).SelectContext(ctx, &conflicts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_package_id": importPackageID}).Error("Failed to list conflicts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conflicts")
	}
	return conflicts, nil
}

func (r *Repository) CountPendingByPackage(ctx context.Context, importPackageID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.CountPendingByPackage")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(
		sb.Equal("import_package_id", importPackageID),
		sb.Equal("status", models.ConflictStatusPendingReview),
	)
	query, args := sb.Build()

	var n int
	if err := database.GetExecutor(ctx, r.db).GetContext(ctx, &n, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_package_id": importPackageID}).Error("Failed to count pending conflicts")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending conflicts")
	}
	return n, nil
}

func (r *Repository) FindPendingForPair(ctx context.Context, importPackageID uuid.UUID, a, b uuid.UUID) (*models.ConflictResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.FindPendingForPair")
	defer span.End()

	sb := conflictStruct.SelectFrom(table)
	sb.Where(
		sb.Equal("import_package_id", importPackageID),
		sb.Equal("status", models.ConflictStatusPendingReview),
		sb.Or(
			sb.And(sb.Equal("first_entity_id", a), sb.Equal("second_entity_id", b)),
			sb.And(sb.Equal("first_entity_id", b), sb.Equal("second_entity_id", a)),
		),
	)
	sb.Limit(1)
	query, args := sb.Build()

	var c models.ConflictResolution
	if err := database.GetExecutor(ctx, r.db).GetContext(ctx, &c, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find pending conflict for pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find conflict")
	}
	return &c, nil
}

func (r *Repository) IgnorePendingByPackage(ctx context.Context, importPackageID uuid.UUID, reason, actorID string, now time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.IgnorePendingByPackage")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", models.ConflictStatusIgnored),
		ub.Assign("resolution_reason", reason),
		ub.Assign("reviewed_by", actorID),
		ub.Assign("reviewed_at_utc", now),
		ub.Assign("updated_at_utc", now),
		"row_version = row_version + 1",
	)
	ub.Where(
		ub.Equal("import_package_id", importPackageID),
		ub.Equal("status", models.ConflictStatusPendingReview),
	)
	query, args := ub.Build()

	result, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_package_id": importPackageID}).Error("Failed to ignore stale conflicts")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to ignore stale conflicts")
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *Repository) NextConflictNumber(ctx context.Context, now time.Time) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.NextConflictNumber")
	defer span.End()

	var seq int64
	if err := database.GetExecutor(ctx, r.db).GetContext(ctx, &seq, "SELECT nextval('conflict_number_seq')"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to draw conflict number")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to assign conflict number")
	}
	return FormatConflictNumber(now, seq), nil
}

func FormatConflictNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("CNF-%d-%05d", now.Year(), seq)
}
