package duplicates

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/internal/repositories/memory"
	"github.com/Ramsey-B/willow/pkg/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	pkgID      uuid.UUID
	staging    *repositories.StagingStores
	production *repositories.ProductionStores
	conflicts  *memory.ConflictRepository
	service    *Service
}

func newFixture() *fixture {
	f := &fixture{
		pkgID:      uuid.New(),
		staging:    memory.NewStagingStores(),
		production: memory.NewProductionStores(),
		conflicts:  memory.NewConflictRepository(),
	}
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	f.service = NewService(f.staging, f.production, f.conflicts, DefaultConfig(), logger)
	f.service.now = func() time.Time { return now }
	return f
}

func born(year int) *time.Time {
	t := time.Date(year, 3, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func (f *fixture) stagePerson(t *testing.T, fields models.PersonFields) *models.StagingPerson {
	p := &models.StagingPerson{StagingBase: models.NewStagingBase(f.pkgID, uuid.New(), now), PersonFields: fields}
	require.NoError(t, f.staging.Persons.Insert(context.Background(), []*models.StagingPerson{p}))
	return p
}

func (f *fixture) productionPerson(t *testing.T, fields models.PersonFields) *models.Person {
	p := &models.Person{ProductionBase: models.NewProductionBase(nil, "seed", now), PersonFields: fields}
	require.NoError(t, f.production.Persons.Insert(context.Background(), p))
	return p
}

func (f *fixture) list(t *testing.T, filter models.ConflictFilter) []*models.ConflictResolution {
	rows, err := f.conflicts.ListByPackage(context.Background(), f.pkgID, filter)
	require.NoError(t, err)
	return rows
}

func TestDetect_NationalIDMatchesProduction(t *testing.T) {
	f := newFixture()
	existing := f.productionPerson(t, models.PersonFields{FirstName: "Ahmad", LastName: "Darwish", NationalID: "01020304050", DateOfBirth: born(1970)})
	staged := f.stagePerson(t, models.PersonFields{FirstName: "Ahmed", LastName: "Darweesh", NationalID: "0102 0304 050", DateOfBirth: born(1971)})

	result, err := f.service.Detect(context.Background(), f.pkgID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.PersonDuplicates)
	assert.Equal(t, 0, result.PersonWithinBatch)
	require.Len(t, result.ConflictIDs, 1)

	conflicts := f.list(t, models.ConflictFilter{})
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.ConflictTypePersonDuplicate, c.ConflictType)
	assert.Equal(t, models.ConfidenceHigh, c.ConfidenceLevel)
	assert.Equal(t, staged.OriginalEntityID, c.FirstEntityID)
	assert.Equal(t, existing.ID, c.SecondEntityID)
	assert.Equal(t, models.ConflictStatusPendingReview, c.Status)
	assert.Equal(t, []string{"national_id_exact"}, c.MatchReasons.GetValue())
	assert.NotEmpty(t, c.ConflictNumber)
}

func TestDetect_WithinBatchNationalID(t *testing.T) {
	f := newFixture()
	a := f.stagePerson(t, models.PersonFields{FirstName: "Sara", LastName: "Haddad", NationalID: "11122233344"})
	b := f.stagePerson(t, models.PersonFields{FirstName: "Sarah", LastName: "Haddad", NationalID: "11122233344"})

	result, err := f.service.Detect(context.Background(), f.pkgID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 0, result.PersonDuplicates)
	assert.Equal(t, 1, result.PersonWithinBatch)

	conflicts := f.list(t, models.ConflictFilter{})
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTypePersonDuplicateWithinBatch, conflicts[0].ConflictType)
	assert.True(t, conflicts[0].SamePair(a.OriginalEntityID, b.OriginalEntityID))

	// the family filter still finds within-batch conflicts
	assert.Len(t, f.list(t, models.ConflictFilter{Type: models.ConflictTypePersonDuplicate}), 1)
}

func TestDetect_Rerun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.productionPerson(t, models.PersonFields{FirstName: "Ahmad", LastName: "Darwish", NationalID: "01020304050"})
	f.stagePerson(t, models.PersonFields{FirstName: "Ahmad", LastName: "Darwish", NationalID: "01020304050"})

	_, err := f.service.Detect(ctx, f.pkgID, "user-1")
	require.NoError(t, err)

	t.Run("pending pair is not reported twice", func(t *testing.T) {
		result, err := f.service.Detect(ctx, f.pkgID, "user-1")
		require.NoError(t, err)
		assert.Empty(t, result.ConflictIDs)
		assert.Equal(t, 1, result.SkippedExistingConflicts)
		assert.Len(t, f.list(t, models.ConflictFilter{Status: models.ConflictStatusPendingReview}), 1)
	})

	t.Run("ignored pair is detected again", func(t *testing.T) {
		n, err := f.conflicts.IgnorePendingByPackage(ctx, f.pkgID, "re-run", "user-1", now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		result, err := f.service.Detect(ctx, f.pkgID, "user-1")
		require.NoError(t, err)
		assert.Len(t, result.ConflictIDs, 1)
		assert.Len(t, f.list(t, models.ConflictFilter{Status: models.ConflictStatusPendingReview}), 1)
		assert.Len(t, f.list(t, models.ConflictFilter{Status: models.ConflictStatusIgnored}), 1)
	})
}

func TestDetect_FuzzyNames(t *testing.T) {
	f := newFixture()
	f.productionPerson(t, models.PersonFields{FirstName: "Mohammad", LastName: "Al-Hassan", DateOfBirth: born(1980)})
	f.stagePerson(t, models.PersonFields{FirstName: "Mohamad", LastName: "Al Hassan", DateOfBirth: born(1980)})
	f.stagePerson(t, models.PersonFields{FirstName: "Layla", LastName: "Nasser", DateOfBirth: born(1980)})

	result, err := f.service.Detect(context.Background(), f.pkgID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.PersonsScanned)
	assert.Equal(t, 1, result.PersonDuplicates)
	assert.Equal(t, 0, result.PersonWithinBatch)

	c := f.list(t, models.ConflictFilter{})[0]
	assert.GreaterOrEqual(t, c.SimilarityScore, DefaultConfig().PersonThreshold)
	assert.Contains(t, c.MatchReasons.GetValue(), "birth_year_delta=0")
}

func TestDetect_SkippedRowsIgnored(t *testing.T) {
	f := newFixture()
	f.stagePerson(t, models.PersonFields{FirstName: "Sara", LastName: "Haddad", NationalID: "11122233344"})
	b := f.stagePerson(t, models.PersonFields{FirstName: "Sara", LastName: "Haddad", NationalID: "11122233344"})
	b.MarkSkipped("merged", nil, nil, now)
	require.NoError(t, f.staging.Persons.Update(context.Background(), b))

	result, err := f.service.Detect(context.Background(), f.pkgID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.PersonsScanned)
	assert.Empty(t, result.ConflictIDs)
}

func TestDetect_Properties(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	lat, lon := 36.2021, 37.1343

	existing := &models.Building{ProductionBase: models.NewProductionBase(nil, "seed", now), BuildingFields: models.BuildingFields{
		BuildingNumber: "B-12", AdministrativeCode: "AL-01", Latitude: &lat, Longitude: &lon,
	}}
	require.NoError(t, f.production.Buildings.Insert(ctx, existing))

	near := lat + 0.00005
	staged := &models.StagingBuilding{StagingBase: models.NewStagingBase(f.pkgID, uuid.New(), now), BuildingFields: models.BuildingFields{
		BuildingNumber: "b12", AdministrativeCode: "AL-01", Latitude: &near, Longitude: &lon,
	}}
	other := &models.StagingBuilding{StagingBase: models.NewStagingBase(f.pkgID, uuid.New(), now), BuildingFields: models.BuildingFields{
		BuildingNumber: "B-99", AdministrativeCode: "AL-01",
	}}
	require.NoError(t, f.staging.Buildings.Insert(ctx, []*models.StagingBuilding{staged, other}))

	unit := func(number string) *models.StagingPropertyUnit {
		return &models.StagingPropertyUnit{StagingBase: models.NewStagingBase(f.pkgID, uuid.New(), now),
			OriginalBuildingID: staged.OriginalEntityID, PropertyUnitFields: models.PropertyUnitFields{UnitNumber: number}}
	}
	u1, u2, u3 := unit("1A"), unit("1-a"), unit("2")
	require.NoError(t, f.staging.PropertyUnits.Insert(ctx, []*models.StagingPropertyUnit{u1, u2, u3}))

	result, err := f.service.Detect(ctx, f.pkgID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.BuildingsScanned)
	assert.Equal(t, 3, result.PropertyUnitsScanned)
	assert.Equal(t, 1, result.PropertyDuplicates)
	assert.Equal(t, 1, result.PropertyWithinBatch)

	cross := f.list(t, models.ConflictFilter{Type: models.ConflictTypePropertyDuplicate})
	require.Len(t, cross, 2)
	for _, c := range cross {
		if c.ConflictType.IsWithinBatch() {
			assert.Equal(t, models.EntityKindPropertyUnit, c.EntityType)
			assert.True(t, c.SamePair(u1.OriginalEntityID, u2.OriginalEntityID))
			continue
		}
		assert.Equal(t, models.EntityKindBuilding, c.EntityType)
		assert.True(t, c.SamePair(staged.OriginalEntityID, existing.ID))
	}
}

func TestScorePersons(t *testing.T) {
	s := newFixture().service

	tests := []struct {
		name  string
		a, b  models.PersonFields
		match bool
	}{
		{
			name:  "different national ids never match",
			a:     models.PersonFields{FirstName: "Omar", LastName: "Khalil", NationalID: "11111111111", DateOfBirth: born(1990)},
			b:     models.PersonFields{FirstName: "Omar", LastName: "Khalil", NationalID: "22222222222", DateOfBirth: born(1990)},
			match: false,
		},
		{
			name:  "no birth year on one side",
			a:     models.PersonFields{FirstName: "Omar", LastName: "Khalil", DateOfBirth: born(1990)},
			b:     models.PersonFields{FirstName: "Omar", LastName: "Khalil"},
			match: false,
		},
		{
			name:  "diacritics and hamza variants fold together",
			a:     models.PersonFields{FirstName: "أحمد", LastName: "خليل", DateOfBirth: born(1990)},
			b:     models.PersonFields{FirstName: "احمد", LastName: "خليل", DateOfBirth: born(1991)},
			match: true,
		},
		{
			name:  "unrelated names",
			a:     models.PersonFields{FirstName: "Omar", LastName: "Khalil", DateOfBirth: born(1990)},
			b:     models.PersonFields{FirstName: "Rania", LastName: "Tannous", DateOfBirth: born(1990)},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := s.ScorePersons(&tt.a, &tt.b)
			assert.Equal(t, tt.match, score >= s.config.PersonThreshold, "score %.3f", score)
		})
	}
}
