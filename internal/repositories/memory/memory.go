// Package memory holds in-process implementations of the repository ports.
// They back service tests and keep the same not-found, conflict and
// soft-delete semantics as the Postgres stores.
package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/pkg/models"
)

// clone returns a shallow copy of the struct v points to so callers never
// share memory with the store.
func clone[T any](v T) T {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return v
	}
	cp := reflect.New(rv.Elem().Type())
	cp.Elem().Set(rv.Elem())
	return cp.Interface().(T)
}

type txMarker struct{}

// Transactor serializes units of work. Nested calls join the outer one.
// Nothing is rolled back on error.
type Transactor struct {
	mu sync.Mutex
}

func NewTransactor() *Transactor {
	return &Transactor{}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txMarker{}, true))
}

func newStaging[T models.StagingRecord]() *StagingRepository[T] {
	return NewStagingRepository[T]()
}

// NewStagingStores returns a staging registry backed by memory.
func NewStagingStores() *repositories.StagingStores {
	return &repositories.StagingStores{
		Buildings:     newStaging[*models.StagingBuilding](),
		PropertyUnits: newStaging[*models.StagingPropertyUnit](),
		Persons:       newStaging[*models.StagingPerson](),
		Households:    newStaging[*models.StagingHousehold](),
		Relations:     newStaging[*models.StagingPersonPropertyRelation](),
		Evidences:     newStaging[*models.StagingEvidence](),
		Claims:        newStaging[*models.StagingClaim](),
		Surveys:       newStaging[*models.StagingSurvey](),
	}
}

// NewProductionStores returns a production registry backed by memory. The
// reference repository rewrites columns on the same in-memory tables.
func NewProductionStores() *repositories.ProductionStores {
	buildings := NewBuildingRepository()
	units := NewProductionRepository[*models.PropertyUnit](models.EntityKindPropertyUnit)
	persons := NewPersonRepository()
	households := NewProductionRepository[*models.Household](models.EntityKindHousehold)
	relations := NewProductionRepository[*models.PersonPropertyRelation](models.EntityKindPersonPropertyRelation)
	evidences := NewProductionRepository[*models.Evidence](models.EntityKindEvidence)
	claims := NewProductionRepository[*models.Claim](models.EntityKindClaim)
	surveys := NewProductionRepository[*models.Survey](models.EntityKindSurvey)

	refs := NewReferenceRepository(buildings, units, persons, households, relations, evidences, claims, surveys)

	return &repositories.ProductionStores{
		Buildings:     buildings,
		PropertyUnits: units,
		Persons:       persons,
		Households:    households,
		Relations:     relations,
		Evidences:     evidences,
		Claims:        claims,
		Surveys:       surveys,
		References:    refs,
	}
}
