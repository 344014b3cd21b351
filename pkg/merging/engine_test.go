package merging

import (
	"context"
	"encoding/json"
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
	engine     *Engine
}

func newFixture() *fixture {
	f := &fixture{
		pkgID:      uuid.New(),
		staging:    memory.NewStagingStores(),
		production: memory.NewProductionStores(),
	}
	f.engine = NewEngine(f.staging, f.production, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	f.engine.now = func() time.Time { return now }
	return f
}

func (f *fixture) prodPerson(t *testing.T, fields models.PersonFields) *models.Person {
	p := &models.Person{ProductionBase: models.NewProductionBase(nil, "seed", now), PersonFields: fields}
	require.NoError(t, f.production.Persons.Insert(context.Background(), p))
	return p
}

func (f *fixture) stagedPerson(t *testing.T, fields models.PersonFields) *models.StagingPerson {
	p := &models.StagingPerson{StagingBase: models.NewStagingBase(f.pkgID, uuid.New(), now), PersonFields: fields}
	p.ValidationStatus = models.ValidationStatusValid
	require.NoError(t, f.staging.Persons.Insert(context.Background(), []*models.StagingPerson{p}))
	return p
}

func (f *fixture) stagedRow(t *testing.T, id uuid.UUID) *models.StagingPerson {
	row, ok, err := f.staging.Persons.GetByPackageAndOriginalID(context.Background(), f.pkgID, id)
	require.NoError(t, err)
	require.True(t, ok)
	return row
}

func (f *fixture) request(master, discarded uuid.UUID) Request {
	pkgID := f.pkgID
	return Request{
		EntityType:      models.EntityKindPerson,
		MasterID:        master,
		DiscardedID:     discarded,
		ImportPackageID: &pkgID,
		ActorID:         "reviewer-1",
	}
}

func mapping(t *testing.T, result *models.MergeResult) models.MergeMapping {
	var m models.MergeMapping
	require.NoError(t, json.Unmarshal([]byte(result.MergeMappingJSON), &m))
	return m
}

func TestMerge_ProductionToProduction(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	master := f.prodPerson(t, models.PersonFields{FirstName: "Ahmad", LastName: "Darwish", NationalID: "01020304050"})
	discarded := f.prodPerson(t, models.PersonFields{FirstName: "Ahmed", LastName: "Darwish", MobileNumber: "0944123456"})

	unitID := uuid.New()
	for i := 0; i < 2; i++ {
		rel := &models.PersonPropertyRelation{ProductionBase: models.NewProductionBase(nil, "seed", now), PersonID: discarded.ID, PropertyUnitID: unitID}
		require.NoError(t, f.production.Relations.Insert(ctx, rel))
	}
	claimant := discarded.ID
	claim := &models.Claim{ProductionBase: models.NewProductionBase(nil, "seed", now), PropertyUnitID: unitID, PrimaryClaimantID: &claimant}
	require.NoError(t, f.production.Claims.Insert(ctx, claim))
	untouched := &models.PersonPropertyRelation{ProductionBase: models.NewProductionBase(nil, "seed", now), PersonID: master.ID, PropertyUnitID: unitID}
	require.NoError(t, f.production.Relations.Insert(ctx, untouched))

	req := f.request(master.ID, discarded.ID)
	req.ImportPackageID = nil
	result := f.engine.Merge(ctx, req)

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, models.MergeCaseProductionProduction, result.Case)
	assert.Equal(t, master.ID, result.SurvivingRecordID)
	assert.Equal(t, 3, result.ReferencesUpdated)
	assert.Equal(t, 2, result.ReferenceBreakdown["person_property_relations.person_id"])
	assert.Equal(t, 1, result.ReferenceBreakdown["claims.primary_claimant_id"])

	persons := f.production.Persons.(*memory.PersonRepository)
	gone, ok := persons.Peek(discarded.ID)
	require.True(t, ok)
	assert.True(t, gone.IsDeleted)
	assert.Equal(t, "reviewer-1", gone.DeletedBy)
	exists, err := f.production.Persons.Exists(ctx, discarded.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	survivor, ok, err := f.production.Persons.GetByID(ctx, master.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ahmad", survivor.FirstName)
	assert.Equal(t, "0944123456", survivor.MobileNumber)

	relations := f.production.Relations.(*memory.ProductionRepository[*models.PersonPropertyRelation])
	pointing := 0
	for _, rel := range relations.Live() {
		assert.NotEqual(t, discarded.ID, rel.PersonID)
		if rel.PersonID == master.ID {
			pointing++
		}
	}
	assert.Equal(t, 3, pointing)

	storedClaim, _, err := f.production.Claims.GetByID(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, master.ID, *storedClaim.PrimaryClaimantID)

	m := mapping(t, result)
	assert.Equal(t, models.FieldSourceMaster, m.Fields["first_name"])
	assert.Equal(t, models.FieldSourceDiscarded, m.Fields["mobile_number"])
	assert.Nil(t, m.Redirect)
}

func TestMerge_ProductionMasterStagingDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	master := f.prodPerson(t, models.PersonFields{FirstName: "Ahmad", LastName: "Darwish", NationalID: "01020304050"})
	staged := f.stagedPerson(t, models.PersonFields{FirstName: "Ahmed", LastName: "Darwish", NationalID: "01020304050", MotherName: "Fatima"})

	result := f.engine.Merge(ctx, f.request(master.ID, staged.OriginalEntityID))
	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, models.MergeCaseProductionStaging, result.Case)
	assert.Equal(t, master.ID, result.SurvivingRecordID)

	row := f.stagedRow(t, staged.OriginalEntityID)
	assert.Equal(t, models.ValidationStatusSkipped, row.ValidationStatus)
	require.NotNil(t, row.CommittedEntityID)
	assert.Equal(t, master.ID, *row.CommittedEntityID)
	assert.Nil(t, row.MergedIntoOriginalID)

	survivor, _, err := f.production.Persons.GetByID(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ahmad", survivor.FirstName)
	assert.Equal(t, "Fatima", survivor.MotherName)
	assert.Equal(t, "reviewer-1", survivor.LastModifiedBy)

	m := mapping(t, result)
	assert.Equal(t, models.FieldSourceProduction, m.Fields["first_name"])
	assert.Equal(t, models.FieldSourceStaging, m.Fields["mother_name"])
}

func TestMerge_StagingMasterProductionDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	existing := f.prodPerson(t, models.PersonFields{FirstName: "Ahmad", LastName: "Darwish", MobileNumber: "0944000000", FatherName: "Khaled"})
	staged := f.stagedPerson(t, models.PersonFields{FirstName: "Ahmad", LastName: "Darwish", MobileNumber: "0944123456"})

	result := f.engine.Merge(ctx, f.request(staged.OriginalEntityID, existing.ID))
	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, models.MergeCaseStagingProduction, result.Case)
	assert.Equal(t, existing.ID, result.SurvivingRecordID)
	assert.Zero(t, result.ReferencesUpdated)

	survivor, ok, err := f.production.Persons.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0944123456", survivor.MobileNumber)
	assert.Equal(t, "Khaled", survivor.FatherName)

	row := f.stagedRow(t, staged.OriginalEntityID)
	assert.Equal(t, models.ValidationStatusSkipped, row.ValidationStatus)
	require.NotNil(t, row.CommittedEntityID)
	assert.Equal(t, existing.ID, *row.CommittedEntityID)

	m := mapping(t, result)
	assert.Equal(t, models.FieldSourceStaging, m.Fields["mobile_number"])
	assert.Equal(t, models.FieldSourceProduction, m.Fields["father_name"])
}

func TestMerge_StagingToStaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	master := f.stagedPerson(t, models.PersonFields{FirstName: "Sara", LastName: "Haddad", NationalID: "11122233344"})
	discarded := f.stagedPerson(t, models.PersonFields{FirstName: "Sarah", LastName: "Haddad", NationalID: "11122233344", MobileNumber: "0933111222"})

	result := f.engine.Merge(ctx, f.request(master.OriginalEntityID, discarded.OriginalEntityID))
	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, models.MergeCaseStagingStaging, result.Case)
	assert.Equal(t, master.OriginalEntityID, result.SurvivingRecordID)

	kept := f.stagedRow(t, master.OriginalEntityID)
	assert.Equal(t, models.ValidationStatusValid, kept.ValidationStatus)
	assert.Equal(t, "0933111222", kept.MobileNumber)
	assert.Equal(t, "Sara", kept.FirstName)

	skipped := f.stagedRow(t, discarded.OriginalEntityID)
	assert.Equal(t, models.ValidationStatusSkipped, skipped.ValidationStatus)
	require.NotNil(t, skipped.MergedIntoOriginalID)
	assert.Equal(t, master.OriginalEntityID, *skipped.MergedIntoOriginalID)
	assert.Nil(t, skipped.CommittedEntityID)

	m := mapping(t, result)
	require.NotNil(t, m.Redirect)
	assert.Equal(t, discarded.OriginalEntityID, m.Redirect.From)
	assert.Equal(t, master.OriginalEntityID, m.Redirect.To)

	t.Run("merging an already skipped row fails", func(t *testing.T) {
		again := f.engine.Merge(ctx, f.request(master.OriginalEntityID, discarded.OriginalEntityID))
		assert.False(t, again.Success)
		assert.Contains(t, again.ErrorMessage, "already merged")
	})
}

func TestMerge_Failures(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.prodPerson(t, models.PersonFields{FirstName: "A", LastName: "B"})

	tests := []struct {
		name    string
		req     Request
		message string
	}{
		{name: "unknown entity", req: f.request(p.ID, uuid.New()), message: "not found"},
		{name: "self merge", req: f.request(p.ID, p.ID), message: "into itself"},
		{
			name:    "unmergeable kind",
			req:     Request{EntityType: models.EntityKindClaim, MasterID: uuid.New(), DiscardedID: uuid.New()},
			message: "cannot be merged",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.engine.Merge(ctx, tt.req)
			assert.False(t, result.Success)
			assert.Contains(t, result.ErrorMessage, tt.message)
		})
	}
}

type panickingReferences struct{}

func (panickingReferences) Repoint(context.Context, models.ForeignKey, uuid.UUID, uuid.UUID, string, time.Time) (int, error) {
	panic("boom")
}

func TestMerge_RecoversPanics(t *testing.T) {
	f := newFixture()
	f.production.References = panickingReferences{}
	a := f.prodPerson(t, models.PersonFields{FirstName: "A", LastName: "B"})
	b := f.prodPerson(t, models.PersonFields{FirstName: "A", LastName: "B"})

	req := f.request(a.ID, b.ID)
	result := f.engine.Merge(context.Background(), req)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "boom")
}

func TestFieldMerger(t *testing.T) {
	m := NewFieldMerger()
	born := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fill gaps copies pointers", func(t *testing.T) {
		dst := &models.PersonFields{FirstName: "Ahmad"}
		src := &models.PersonFields{FirstName: "Ahmed", DateOfBirth: &born}
		sources, err := m.FillGaps(dst, src, models.FieldSourceMaster, models.FieldSourceDiscarded)
		require.NoError(t, err)
		assert.Equal(t, "Ahmad", dst.FirstName)
		require.NotNil(t, dst.DateOfBirth)
		assert.NotSame(t, src.DateOfBirth, dst.DateOfBirth)
		assert.Equal(t, map[string]models.FieldSource{
			"first_name":    models.FieldSourceMaster,
			"date_of_birth": models.FieldSourceDiscarded,
		}, sources)
	})

	t.Run("mismatched types", func(t *testing.T) {
		_, err := m.Overwrite(&models.PersonFields{}, &models.BuildingFields{}, models.FieldSourceStaging, models.FieldSourceProduction)
		assert.Error(t, err)
	})
}
