// Package production is the Postgres store for committed entities.
package production

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

type Repository[T models.ProductionRecord] struct {
	db     database.DB
	logger ectologger.Logger
	table  string
	kind   models.EntityKind
	st     *sqlbuilder.Struct
}

func NewRepository[T models.ProductionRecord](db database.DB, logger ectologger.Logger, newEntity func() T) *Repository[T] {
	e := newEntity()
	return &Repository[T]{
		db:     db,
		logger: logger,
		table:  models.ProductionTable(e.Kind()),
		kind:   e.Kind(),
		st:     database.NewStruct(e),
	}
}

func (r *Repository[T]) Insert(ctx context.Context, entity T) error {
	ctx, span := tracing.StartSpan(ctx, "production.Repository.Insert")
	defer span.End()

	query, args := r.st.InsertInto(r.table, entity).Build()
	if _, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": r.table, "entity_id": entity.Production().ID}).Error("Failed to insert entity")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert %s", r.kind)
	}
	return nil
}

// live selects non-deleted rows.
func (r *Repository[T]) live() *sqlbuilder.SelectBuilder {
	sb := r.st.SelectFrom(r.table)
	sb.Where(sb.Equal("is_deleted", false))
	return sb
}

func (r *Repository[T]) find(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]T, error) {
	query, args := sb.Build()
	var rows []T
	if err := database.GetExecutor(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": r.table}).Error("Failed to query entities")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query %s", r.kind)
	}
	return rows, nil
}

func (r *Repository[T]) GetByID(ctx context.Context, id uuid.UUID) (T, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "production.Repository.GetByID")
	defer span.End()

	var zero T
	sb := r.live()
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	rows, err := r.find(ctx, sb)
	if err != nil || len(rows) == 0 {
		return zero, false, err
	}
	return rows[0], true, nil
}

func (r *Repository[T]) Update(ctx context.Context, entity T) error {
	ctx, span := tracing.StartSpan(ctx, "production.Repository.Update")
	defer span.End()

	ub := r.st.Update(r.table, entity)
	ub.Where(ub.Equal("id", entity.Production().ID))
	query, args := ub.Build()

	result, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": r.table, "entity_id": entity.Production().ID}).Error("Failed to update entity")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update %s", r.kind)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", r.kind, entity.Production().ID)
	}
	return nil
}

func (r *Repository[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "production.Repository.Exists")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(r.table)
	sb.Where(sb.Equal("id", id), sb.Equal("is_deleted", false))
	query, args := sb.Build()

	var n int
	if err := database.GetExecutor(ctx, r.db).GetContext(ctx, &n, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": r.table, "entity_id": id}).Error("Failed to check entity existence")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to look up %s", r.kind)
	}
	return n > 0, nil
}

type PersonRepository struct {
	*Repository[*models.Person]
}

func NewPersonRepository(db database.DB, logger ectologger.Logger) *PersonRepository {
	return &PersonRepository{Repository: NewRepository(db, logger, func() *models.Person { return new(models.Person) })}
}

func (r *PersonRepository) FindByNationalID(ctx context.Context, nationalID string) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "production.PersonRepository.FindByNationalID")
	defer span.End()

	if nationalID == "" {
		return nil, nil
	}
	sb := r.live()
	sb.Where(sb.Equal("national_id", nationalID))
	return r.find(ctx, sb)
}

func (r *PersonRepository) FindByBirthYearRange(ctx context.Context, from, to int) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "production.PersonRepository.FindByBirthYearRange")
	defer span.End()

	sb := r.live()
	sb.Where(sb.Between("EXTRACT(YEAR FROM date_of_birth)", from, to))
	return r.find(ctx, sb)
}

type BuildingRepository struct {
	*Repository[*models.Building]
}

func NewBuildingRepository(db database.DB, logger ectologger.Logger) *BuildingRepository {
	return &BuildingRepository{Repository: NewRepository(db, logger, func() *models.Building { return new(models.Building) })}
}

func (r *BuildingRepository) FindByAdministrativeCode(ctx context.Context, code string) ([]*models.Building, error) {
	ctx, span := tracing.StartSpan(ctx, "production.BuildingRepository.FindByAdministrativeCode")
	defer span.End()

	if code == "" {
		return nil, nil
	}
	sb := r.live()
	sb.Where(sb.Equal("administrative_code", code))
	return r.find(ctx, sb)
}
