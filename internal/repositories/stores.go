package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

// KindStore is the kind-agnostic view of one StagingRepository.
type KindStore interface {
	Kind() models.EntityKind
	Insert(ctx context.Context, rows []models.StagingRecord) error
	Records(ctx context.Context, importPackageID uuid.UUID) ([]models.StagingRecord, error)
	Find(ctx context.Context, importPackageID, originalID uuid.UUID) (models.StagingRecord, bool, error)
	FindByIDs(ctx context.Context, importPackageID uuid.UUID, ids []uuid.UUID) ([]models.StagingRecord, error)
	StatusCounts(ctx context.Context, importPackageID uuid.UUID) (models.StatusCounts, error)
	Save(ctx context.Context, rows []models.StagingRecord) error
	Purge(ctx context.Context, importPackageID uuid.UUID) (int, error)
}

type kindStore[T models.StagingRecord] struct {
	kind models.EntityKind
	repo StagingRepository[T]
}

// Erase wraps a typed repository as a KindStore.
func Erase[T models.StagingRecord](kind models.EntityKind, repo StagingRepository[T]) KindStore {
	return &kindStore[T]{kind: kind, repo: repo}
}

func (s *kindStore[T]) Kind() models.EntityKind {
	return s.kind
}

func (s *kindStore[T]) typed(rows []models.StagingRecord) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		t, ok := row.(T)
		if !ok {
			return nil, fmt.Errorf("%s store cannot hold %T", s.kind, row)
		}
		out = append(out, t)
	}
	return out, nil
}

func erase[T models.StagingRecord](rows []T) []models.StagingRecord {
	out := make([]models.StagingRecord, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}

func (s *kindStore[T]) Insert(ctx context.Context, rows []models.StagingRecord) error {
	typed, err := s.typed(rows)
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, typed)
}

func (s *kindStore[T]) Records(ctx context.Context, importPackageID uuid.UUID) ([]models.StagingRecord, error) {
	rows, err := s.repo.GetByPackageID(ctx, importPackageID)
	if err != nil {
		return nil, err
	}
	return erase(rows), nil
}

func (s *kindStore[T]) Find(ctx context.Context, importPackageID, originalID uuid.UUID) (models.StagingRecord, bool, error) {
	row, ok, err := s.repo.GetByPackageAndOriginalID(ctx, importPackageID, originalID)
	if err != nil || !ok {
		return nil, false, err
	}
	return row, true, nil
}

func (s *kindStore[T]) FindByIDs(ctx context.Context, importPackageID uuid.UUID, ids []uuid.UUID) ([]models.StagingRecord, error) {
	rows, err := s.repo.GetByIDs(ctx, importPackageID, ids)
	if err != nil {
		return nil, err
	}
	return erase(rows), nil
}

func (s *kindStore[T]) StatusCounts(ctx context.Context, importPackageID uuid.UUID) (models.StatusCounts, error) {
	return s.repo.GetStatusCountsByPackage(ctx, importPackageID)
}

func (s *kindStore[T]) Save(ctx context.Context, rows []models.StagingRecord) error {
	typed, err := s.typed(rows)
	if err != nil {
		return err
	}
	return s.repo.UpdateRange(ctx, typed)
}

func (s *kindStore[T]) Purge(ctx context.Context, importPackageID uuid.UUID) (int, error) {
	return s.repo.DeleteByPackageID(ctx, importPackageID)
}

// StagingStores is the registry of staging repositories, one per kind.
type StagingStores struct {
	Buildings     StagingRepository[*models.StagingBuilding]
	PropertyUnits StagingRepository[*models.StagingPropertyUnit]
	Persons       StagingRepository[*models.StagingPerson]
	Households    StagingRepository[*models.StagingHousehold]
	Relations     StagingRepository[*models.StagingPersonPropertyRelation]
	Evidences     StagingRepository[*models.StagingEvidence]
	Claims        StagingRepository[*models.StagingClaim]
	Surveys       StagingRepository[*models.StagingSurvey]
}

// All returns every kind in commit order.
func (s *StagingStores) All() []KindStore {
	return []KindStore{
		Erase(models.EntityKindBuilding, s.Buildings),
		Erase(models.EntityKindPropertyUnit, s.PropertyUnits),
		Erase(models.EntityKindPerson, s.Persons),
		Erase(models.EntityKindHousehold, s.Households),
		Erase(models.EntityKindPersonPropertyRelation, s.Relations),
		Erase(models.EntityKindEvidence, s.Evidences),
		Erase(models.EntityKindClaim, s.Claims),
		Erase(models.EntityKindSurvey, s.Surveys),
	}
}

// ForKind returns the store for kind or a 400 httperror for an unknown kind.
func (s *StagingStores) ForKind(kind models.EntityKind) (KindStore, error) {
	for _, store := range s.All() {
		if store.Kind() == kind {
			return store, nil
		}
	}
	return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity kind %q", kind)
}

// ProductionStores is the registry of production repositories.
type ProductionStores struct {
	Buildings     BuildingRepository
	PropertyUnits ProductionRepository[*models.PropertyUnit]
	Persons       PersonRepository
	Households    ProductionRepository[*models.Household]
	Relations     ProductionRepository[*models.PersonPropertyRelation]
	Evidences     ProductionRepository[*models.Evidence]
	Claims        ProductionRepository[*models.Claim]
	Surveys       ProductionRepository[*models.Survey]
	References    ReferenceRepository
}

// Insert writes a production entity to the repository of its kind.
func (s *ProductionStores) Insert(ctx context.Context, entity models.ProductionRecord) error {
	switch e := entity.(type) {
	case *models.Building:
		return s.Buildings.Insert(ctx, e)
	case *models.PropertyUnit:
		return s.PropertyUnits.Insert(ctx, e)
	case *models.Person:
		return s.Persons.Insert(ctx, e)
	case *models.Household:
		return s.Households.Insert(ctx, e)
	case *models.PersonPropertyRelation:
		return s.Relations.Insert(ctx, e)
	case *models.Evidence:
		return s.Evidences.Insert(ctx, e)
	case *models.Claim:
		return s.Claims.Insert(ctx, e)
	case *models.Survey:
		return s.Surveys.Insert(ctx, e)
	}
	return fmt.Errorf("no production store for %T", entity)
}

// Exists reports whether a live production entity of kind has id.
func (s *ProductionStores) Exists(ctx context.Context, kind models.EntityKind, id uuid.UUID) (bool, error) {
	switch kind {
	case models.EntityKindBuilding:
		return s.Buildings.Exists(ctx, id)
	case models.EntityKindPropertyUnit:
		return s.PropertyUnits.Exists(ctx, id)
	case models.EntityKindPerson:
		return s.Persons.Exists(ctx, id)
	case models.EntityKindHousehold:
		return s.Households.Exists(ctx, id)
	case models.EntityKindPersonPropertyRelation:
		return s.Relations.Exists(ctx, id)
	case models.EntityKindEvidence:
		return s.Evidences.Exists(ctx, id)
	case models.EntityKindClaim:
		return s.Claims.Exists(ctx, id)
	case models.EntityKindSurvey:
		return s.Surveys.Exists(ctx, id)
	}
	return false, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity kind %q", kind)
}

func getRecord[T models.ProductionRecord](ctx context.Context, repo ProductionRepository[T], id uuid.UUID) (models.ProductionRecord, bool, error) {
	row, ok, err := repo.GetByID(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return row, true, nil
}

// Get loads a live production entity of kind. A missing or soft-deleted
// entity is reported through the bool.
func (s *ProductionStores) Get(ctx context.Context, kind models.EntityKind, id uuid.UUID) (models.ProductionRecord, bool, error) {
	switch kind {
	case models.EntityKindBuilding:
		return getRecord(ctx, s.Buildings, id)
	case models.EntityKindPropertyUnit:
		return getRecord(ctx, s.PropertyUnits, id)
	case models.EntityKindPerson:
		return getRecord(ctx, s.Persons, id)
	case models.EntityKindHousehold:
		return getRecord(ctx, s.Households, id)
	case models.EntityKindPersonPropertyRelation:
		return getRecord(ctx, s.Relations, id)
	case models.EntityKindEvidence:
		return getRecord(ctx, s.Evidences, id)
	case models.EntityKindClaim:
		return getRecord(ctx, s.Claims, id)
	case models.EntityKindSurvey:
		return getRecord(ctx, s.Surveys, id)
	}
	return nil, false, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity kind %q", kind)
}

// Update saves a production entity through the repository of its kind.
func (s *ProductionStores) Update(ctx context.Context, entity models.ProductionRecord) error {
	switch e := entity.(type) {
	case *models.Building:
		return s.Buildings.Update(ctx, e)
	case *models.PropertyUnit:
		return s.PropertyUnits.Update(ctx, e)
	case *models.Person:
		return s.Persons.Update(ctx, e)
	case *models.Household:
		return s.Households.Update(ctx, e)
	case *models.PersonPropertyRelation:
		return s.Relations.Update(ctx, e)
	case *models.Evidence:
		return s.Evidences.Update(ctx, e)
	case *models.Claim:
		return s.Claims.Update(ctx, e)
	case *models.Survey:
		return s.Surveys.Update(ctx, e)
	}
	return fmt.Errorf("no production store for %T", entity)
}
