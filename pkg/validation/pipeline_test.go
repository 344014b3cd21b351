package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/internal/repositories/memory"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/vocabulary"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	pkgID  uuid.UUID
	stores *repositories.StagingStores
	prod   *repositories.ProductionStores
}

func newFixture() *fixture {
	return &fixture{pkgID: uuid.New(), stores: memory.NewStagingStores(), prod: memory.NewProductionStores()}
}

func (f *fixture) base() models.StagingBase {
	return models.NewStagingBase(f.pkgID, uuid.New(), fixedNow)
}

func (f *fixture) building(t *testing.T) *models.StagingBuilding {
	b := &models.StagingBuilding{StagingBase: f.base(), BuildingFields: models.BuildingFields{
		BuildingNumber: "B-1", AdministrativeCode: "AL-01", BuildingType: "residential",
		NumberOfUnits: 2, Latitude: ptr(36.2), Longitude: ptr(37.1),
	}}
	require.NoError(t, f.stores.Buildings.Insert(context.Background(), []*models.StagingBuilding{b}))
	return b
}

func (f *fixture) unit(t *testing.T, buildingID uuid.UUID, number string) *models.StagingPropertyUnit {
	u := &models.StagingPropertyUnit{StagingBase: f.base(), OriginalBuildingID: buildingID,
		PropertyUnitFields: models.PropertyUnitFields{UnitNumber: number, UnitType: "apartment", AreaSquareMeters: ptr(80.0)}}
	require.NoError(t, f.stores.PropertyUnits.Insert(context.Background(), []*models.StagingPropertyUnit{u}))
	return u
}

func (f *fixture) person(t *testing.T, first, last, nationalID string) *models.StagingPerson {
	born := time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC)
	p := &models.StagingPerson{StagingBase: f.base(), PersonFields: models.PersonFields{
		FirstName: first, LastName: last, NationalID: nationalID, Gender: "female", DateOfBirth: &born,
	}}
	require.NoError(t, f.stores.Persons.Insert(context.Background(), []*models.StagingPerson{p}))
	return p
}

func (f *fixture) relation(t *testing.T, personID, unitID uuid.UUID, share float64) *models.StagingPersonPropertyRelation {
	r := &models.StagingPersonPropertyRelation{StagingBase: f.base(), OriginalPersonID: personID, OriginalPropertyUnitID: unitID,
		RelationFields: models.RelationFields{RelationType: "owner", OwnershipShare: ptr(share)}}
	require.NoError(t, f.stores.Relations.Insert(context.Background(), []*models.StagingPersonPropertyRelation{r}))
	return r
}

func (f *fixture) pipeline() *Pipeline {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	return NewPipeline(f.stores, logger,
		BusinessRules{},
		Structural{},
		Format{Now: func() time.Time { return fixedNow }},
		References{Production: f.prod},
		Vocabulary{Codes: vocabulary.Default()},
	)
}

func personStatus(t *testing.T, f *fixture, id uuid.UUID) *models.StagingPerson {
	p, ok, err := f.stores.Persons.GetByPackageAndOriginalID(context.Background(), f.pkgID, id)
	require.NoError(t, err)
	require.True(t, ok)
	return p
}

func TestPipeline_Run_CleanPackage(t *testing.T) {
	f := newFixture()
	b := f.building(t)
	u := f.unit(t, b.OriginalEntityID, "1")
	p := f.person(t, "Lina", "Saleh", "01234567890")
	f.relation(t, p.OriginalEntityID, u.OriginalEntityID, 1.0)

	summary, err := f.pipeline().Run(context.Background(), f.pkgID)
	require.NoError(t, err)

	assert.True(t, summary.Passed())
	assert.Equal(t, 4, summary.TotalRecords)
	assert.Equal(t, 4, summary.ValidCount)
	require.Len(t, summary.Levels, 5)
	for i, level := range summary.Levels {
		assert.Equal(t, i+1, level.Level)
	}
	assert.Equal(t, "structural", summary.Levels[0].Name)
	assert.Equal(t, models.ValidationStatusValid, personStatus(t, f, p.OriginalEntityID).ValidationStatus)
}

func TestPipeline_Run_AccumulatesAcrossLevels(t *testing.T) {
	f := newFixture()
	// missing last name (structural), bad national id (format), bad gender (vocabulary)
	p := f.person(t, "Omar", "", "12AB")
	p.Gender = "unknown"
	require.NoError(t, f.stores.Persons.Update(context.Background(), p))

	summary, err := f.pipeline().Run(context.Background(), f.pkgID)
	require.NoError(t, err)
	assert.False(t, summary.Passed())
	assert.Equal(t, 1, summary.InvalidCount)
	assert.Equal(t, 3, summary.ErrorCount)

	stored := personStatus(t, f, p.OriginalEntityID)
	assert.Equal(t, models.ValidationStatusInvalid, stored.ValidationStatus)
	levels := map[int]bool{}
	for _, m := range stored.ValidationErrors.GetValue() {
		levels[m.Level] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 4: true}, levels)
	assert.Len(t, summary.Errors, 3)
}

func TestPipeline_Run_References(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	existing := &models.Building{ProductionBase: models.NewProductionBase(nil, "seed", fixedNow)}
	require.NoError(t, f.prod.Buildings.Insert(ctx, existing))

	bound := f.unit(t, existing.ID, "1")
	orphan := f.unit(t, uuid.New(), "2")

	summary, err := f.pipeline().Run(ctx, f.pkgID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InvalidCount)

	got, _, err := f.stores.PropertyUnits.GetByPackageAndOriginalID(ctx, f.pkgID, bound.OriginalEntityID)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationStatusWarning, got.ValidationStatus)

	got, _, err = f.stores.PropertyUnits.GetByPackageAndOriginalID(ctx, f.pkgID, orphan.OriginalEntityID)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationStatusInvalid, got.ValidationStatus)
	assert.Equal(t, "unresolved_reference", got.ValidationErrors.GetValue()[0].Code)
}

func TestPipeline_Run_OwnershipShares(t *testing.T) {
	ctx := context.Background()

	t.Run("exact decimal sum of one passes", func(t *testing.T) {
		f := newFixture()
		b := f.building(t)
		u := f.unit(t, b.OriginalEntityID, "1")
		for _, share := range []float64{0.1, 0.2, 0.7} {
			p := f.person(t, "A", "B", "")
			f.relation(t, p.OriginalEntityID, u.OriginalEntityID, share)
		}
		summary, err := f.pipeline().Run(ctx, f.pkgID)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.ByKind[models.EntityKindPersonPropertyRelation].Invalid)
	})

	t.Run("over-allocated unit fails", func(t *testing.T) {
		f := newFixture()
		b := f.building(t)
		u := f.unit(t, b.OriginalEntityID, "1")
		for _, share := range []float64{0.6, 0.6} {
			p := f.person(t, "A", "B", "")
			f.relation(t, p.OriginalEntityID, u.OriginalEntityID, share)
		}
		summary, err := f.pipeline().Run(ctx, f.pkgID)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.ByKind[models.EntityKindPersonPropertyRelation].Invalid)
	})
}

func TestPipeline_Run_SkippedRowsUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.person(t, "", "", "bad")
	target := uuid.New()
	p.MarkSkipped("merged", &target, nil, fixedNow)
	require.NoError(t, f.stores.Persons.Update(ctx, p))

	summary, err := f.pipeline().Run(ctx, f.pkgID)
	require.NoError(t, err)
	assert.True(t, summary.Passed())
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Equal(t, models.ValidationStatusSkipped, personStatus(t, f, p.OriginalEntityID).ValidationStatus)
}

func TestPipeline_Run_RevalidationClearsOldFindings(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.person(t, "Huda", "", "01234567890")

	summary, err := f.pipeline().Run(ctx, f.pkgID)
	require.NoError(t, err)
	require.False(t, summary.Passed())

	fixed := personStatus(t, f, p.OriginalEntityID)
	fixed.LastName = "Khalil"
	require.NoError(t, f.stores.Persons.Update(ctx, fixed))

	summary, err = f.pipeline().Run(ctx, f.pkgID)
	require.NoError(t, err)
	assert.True(t, summary.Passed())
	assert.Empty(t, personStatus(t, f, p.OriginalEntityID).ValidationErrors.GetValue())
}

type failingValidator struct{}

func (failingValidator) Level() int   { return 9 }
func (failingValidator) Name() string { return "failing" }
func (failingValidator) Validate(context.Context, *Dataset, *Findings) error {
	return errors.New("boom")
}

func TestPipeline_Run_ValidatorError(t *testing.T) {
	f := newFixture()
	f.person(t, "A", "B", "")
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})

	_, err := NewPipeline(f.stores, logger, Structural{}, failingValidator{}).Run(context.Background(), f.pkgID)
	assert.ErrorContains(t, err, "boom")
}

func TestFormat_FutureDates(t *testing.T) {
	f := newFixture()
	p := f.person(t, "A", "B", "")
	future := fixedNow.AddDate(1, 0, 0)
	p.DateOfBirth = &future

	ds := NewDataset(f.pkgID, map[models.EntityKind][]models.StagingRecord{models.EntityKindPerson: {p}})
	out := newFindings(2, "format")
	require.NoError(t, Format{Now: func() time.Time { return fixedNow }}.Validate(context.Background(), ds, out))
	assert.Equal(t, 1, out.ErrorCount())
	assert.Equal(t, "future_date", out.errors[p.ID][0].Code)
}
