// Package staging is the Postgres store for staging rows. One generic
// Repository serves every kind; the table is derived from the row type.
package staging

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const insertBatchSize = 500

type Repository[T models.StagingRecord] struct {
	db     database.DB
	logger ectologger.Logger
	table  string
	kind   models.EntityKind
	st     *sqlbuilder.Struct
}

// NewRepository builds the store for the kind of the rows newRow returns.
func NewRepository[T models.StagingRecord](db database.DB, logger ectologger.Logger, newRow func() T) *Repository[T] {
	row := newRow()
	return &Repository[T]{
		db:     db,
		logger: logger,
		table:  models.StagingTable(row.Kind()),
		kind:   row.Kind(),
		st:     database.NewStruct(row),
	}
}

func (r *Repository[T]) fields(importPackageID uuid.UUID) map[string]any {
	return map[string]any{"table": r.table, "import_package_id": importPackageID}
}

func (r *Repository[T]) Insert(ctx context.Context, rows []T) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.Insert")
	defer span.End()

	exec := database.GetExecutor(ctx, r.db)
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		values := make([]any, 0, end-start)
		for _, row := range rows[start:end] {
			values = append(values, row)
		}

		ib := r.st.InsertInto(r.table, values...)
		ib.SQL("ON CONFLICT (import_package_id, original_entity_id) DO NOTHING")
		query, args := ib.Build()
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": r.table, "batch": end - start}).Error("Failed to insert staging rows")
			return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert %s staging rows", r.kind)
		}
	}
	return nil
}

func (r *Repository[T]) selectRows(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]T, error) {
	query, args := sb.Build()
	var rows []T
	if err := database.GetExecutor(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository[T]) GetByPackageID(ctx context.Context, importPackageID uuid.UUID) ([]T, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.GetByPackageID")
	defer span.End()

	sb := r.st.SelectFrom(r.table)
	sb.Where(sb.Equal("import_package_id", importPackageID))
	sb.OrderBy("staged_at_utc", "id")

	rows, err := r.selectRows(ctx, sb)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(r.fields(importPackageID)).Error("Failed to list staging rows")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list %s staging rows", r.kind)
	}
	return rows, nil
}

func (r *Repository[T]) GetByPackageAndOriginalID(ctx context.Context, importPackageID, originalID uuid.UUID) (T, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.GetByPackageAndOriginalID")
	defer span.End()

	var zero T
	sb := r.st.SelectFrom(r.table)
	sb.Where(
		sb.Equal("import_package_id", importPackageID),
		sb.Equal("original_entity_id", originalID),
	)
	sb.Limit(1)

	rows, err := r.selectRows(ctx, sb)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(r.fields(importPackageID)).Error("Failed to get staging row")
		return zero, false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get %s staging row", r.kind)
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	return rows[0], true, nil
}

func (r *Repository[T]) GetByPackageAndStatus(ctx context.Context, importPackageID uuid.UUID, status models.ValidationStatus) ([]T, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.GetByPackageAndStatus")
	defer span.End()

	sb := r.st.SelectFrom(r.table)
	sb.Where(
		sb.Equal("import_package_id", importPackageID),
		sb.Equal("validation_status", status),
	)
	sb.OrderBy("staged_at_utc", "id")

	rows, err := r.selectRows(ctx, sb)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(r.fields(importPackageID)).Error("Failed to list staging rows by status")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list %s staging rows", r.kind)
	}
	return rows, nil
}

func (r *Repository[T]) GetByIDs(ctx context.Context, importPackageID uuid.UUID, ids []uuid.UUID) ([]T, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	sb := r.st.SelectFrom(r.table)
	sb.Where(
		sb.Equal("import_package_id", importPackageID),
		sb.In("id", values...),
	)

	rows, err := r.selectRows(ctx, sb)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(r.fields(importPackageID)).Error("Failed to get staging rows by id")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get %s staging rows", r.kind)
	}
	return rows, nil
}

type statusCount struct {
	Status   models.ValidationStatus `db:"validation_status"`
	Approved bool                    `db:"is_approved_for_commit"`
	Count    int                     `db:"n"`
}

func (r *Repository[T]) GetStatusCountsByPackage(ctx context.Context, importPackageID uuid.UUID) (models.StatusCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.GetStatusCountsByPackage")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("validation_status", "is_approved_for_commit", "COUNT(*) AS n")
	sb.From(r.table)
	sb.Where(sb.Equal("import_package_id", importPackageID))
	sb.GroupBy("validation_status", "is_approved_for_commit")

	query, args := sb.Build()
	var groups []statusCount
	if err := database.GetExecutor(ctx, r.db).SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(r.fields(importPackageID)).Error("Failed to count staging rows")
		return models.StatusCounts{}, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count %s staging rows", r.kind)
	}

	var counts models.StatusCounts
	for _, g := range groups {
		counts.AddN(g.Status, g.Approved, g.Count)
	}
	return counts, nil
}

func (r *Repository[T]) Update(ctx context.Context, row T) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.Update")
	defer span.End()

	base := row.Staging()
	if base.UpdatedAtUtc.IsZero() {
		base.UpdatedAtUtc = time.Now().UTC()
	}

	ub := r.st.Update(r.table, row)
	ub.Where(ub.Equal("id", base.ID))
	query, args := ub.Build()

	result, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": r.table, "staging_id": base.ID}).Error("Failed to update staging row")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update %s staging row", r.kind)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "%s staging row %s not found", r.kind, base.ID)
	}
	return nil
}

func (r *Repository[T]) UpdateRange(ctx context.Context, rows []T) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.UpdateRange")
	defer span.End()

	for _, row := range rows {
		if err := r.Update(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository[T]) DeleteByPackageID(ctx context.Context, importPackageID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.DeleteByPackageID")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(r.table)
	db.Where(db.Equal("import_package_id", importPackageID))
	query, args := db.Build()

	result, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(r.fields(importPackageID)).Error("Failed to purge staging rows")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to purge %s staging rows", r.kind)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
