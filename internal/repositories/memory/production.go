package memory

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

type ProductionRepository[T models.ProductionRecord] struct {
	mu    sync.RWMutex
	kind  models.EntityKind
	rows  map[uuid.UUID]T
	order []uuid.UUID
}

func NewProductionRepository[T models.ProductionRecord](kind models.EntityKind) *ProductionRepository[T] {
	return &ProductionRepository[T]{kind: kind, rows: map[uuid.UUID]T{}}
}

func (r *ProductionRepository[T]) Insert(_ context.Context, entity T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := entity.Production().ID
	if _, ok := r.rows[id]; ok {
		return httperror.NewHTTPErrorf(http.StatusConflict, "%s %s already exists", r.kind, id)
	}
	r.rows[id] = clone(entity)
	r.order = append(r.order, id)
	return nil
}

func (r *ProductionRepository[T]) GetByID(_ context.Context, id uuid.UUID) (T, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok || row.Production().IsDeleted {
		var zero T
		return zero, false, nil
	}
	return clone(row), true, nil
}

func (r *ProductionRepository[T]) Update(_ context.Context, entity T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := entity.Production().ID
	if _, ok := r.rows[id]; !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", r.kind, id)
	}
	r.rows[id] = clone(entity)
	return nil
}

func (r *ProductionRepository[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok, err := r.GetByID(ctx, id)
	return ok, err
}

// Peek returns the stored row even when it is soft-deleted.
func (r *ProductionRepository[T]) Peek(id uuid.UUID) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok {
		return row, false
	}
	return clone(row), true
}

// Live returns every non-deleted row in insertion order.
func (r *ProductionRepository[T]) Live() []T {
	return r.where(func(T) bool { return true })
}

func (r *ProductionRepository[T]) where(pred func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []T
	for _, id := range r.order {
		row := r.rows[id]
		if row.Production().IsDeleted || !pred(row) {
			continue
		}
		out = append(out, clone(row))
	}
	return out
}

func (r *ProductionRepository[T]) tableName() string {
	return models.ProductionTable(r.kind)
}

func (r *ProductionRepository[T]) repoint(column string, from, to uuid.UUID, actorID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, id := range r.order {
		row := r.rows[id]
		base := row.Production()
		if base.IsDeleted {
			continue
		}
		if setUUIDColumn(reflect.ValueOf(row).Elem(), column, from, to) {
			base.UpdatedAtUtc = now
			base.LastModifiedBy = actorID
			changed++
		}
	}
	return changed
}

// setUUIDColumn rewrites the field tagged db:"column" when it holds from.
// Embedded structs are searched too.
func setUUIDColumn(v reflect.Value, column string, from, to uuid.UUID) bool {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if field.Anonymous && fv.Kind() == reflect.Struct {
			if setUUIDColumn(fv, column, from, to) {
				return true
			}
			continue
		}
		if field.Tag.Get("db") != column {
			continue
		}
		switch val := fv.Interface().(type) {
		case uuid.UUID:
			if val == from {
				fv.Set(reflect.ValueOf(to))
				return true
			}
		case *uuid.UUID:
			if val != nil && *val == from {
				id := to
				fv.Set(reflect.ValueOf(&id))
				return true
			}
		}
		return false
	}
	return false
}

type PersonRepository struct {
	*ProductionRepository[*models.Person]
}

func NewPersonRepository() *PersonRepository {
	return &PersonRepository{ProductionRepository: NewProductionRepository[*models.Person](models.EntityKindPerson)}
}

func (r *PersonRepository) FindByNationalID(_ context.Context, nationalID string) ([]*models.Person, error) {
	if nationalID == "" {
		return nil, nil
	}
	return r.where(func(p *models.Person) bool { return p.NationalID == nationalID }), nil
}

func (r *PersonRepository) FindByBirthYearRange(_ context.Context, from, to int) ([]*models.Person, error) {
	return r.where(func(p *models.Person) bool {
		y := p.BirthYear()
		return y != 0 && y >= from && y <= to
	}), nil
}

type BuildingRepository struct {
	*ProductionRepository[*models.Building]
}

func NewBuildingRepository() *BuildingRepository {
	return &BuildingRepository{ProductionRepository: NewProductionRepository[*models.Building](models.EntityKindBuilding)}
}

func (r *BuildingRepository) FindByAdministrativeCode(_ context.Context, code string) ([]*models.Building, error) {
	if code == "" {
		return nil, nil
	}
	return r.where(func(b *models.Building) bool { return b.AdministrativeCode == code }), nil
}

type referenceTable interface {
	tableName() string
	repoint(column string, from, to uuid.UUID, actorID string, now time.Time) int
}

type ReferenceRepository struct {
	tables map[string]referenceTable
}

func NewReferenceRepository(tables ...referenceTable) *ReferenceRepository {
	r := &ReferenceRepository{tables: map[string]referenceTable{}}
	for _, t := range tables {
		r.tables[t.tableName()] = t
	}
	return r
}

func (r *ReferenceRepository) Repoint(_ context.Context, fk models.ForeignKey, from, to uuid.UUID, actorID string, now time.Time) (int, error) {
	t, ok := r.tables[fk.Table]
	if !ok {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "unknown table %s", fk.Table)
	}
	return t.repoint(fk.Column, from, to, actorID, now), nil
}
