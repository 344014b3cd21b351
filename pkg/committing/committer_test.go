package committing

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
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
	committer  *Committer
}

func newFixture() *fixture {
	f := &fixture{
		pkgID:      uuid.New(),
		staging:    memory.NewStagingStores(),
		production: memory.NewProductionStores(),
	}
	f.committer = NewCommitter(f.staging, f.production, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	f.committer.now = func() time.Time { return now }
	return f
}

func (f *fixture) base(approved bool) models.StagingBase {
	b := models.NewStagingBase(f.pkgID, uuid.New(), now)
	b.ValidationStatus = models.ValidationStatusValid
	b.IsApprovedForCommit = approved
	return b
}

func (f *fixture) building(t *testing.T) *models.StagingBuilding {
	b := &models.StagingBuilding{StagingBase: f.base(true), BuildingFields: models.BuildingFields{BuildingNumber: "B-1", AdministrativeCode: "01-02"}}
	require.NoError(t, f.staging.Buildings.Insert(context.Background(), []*models.StagingBuilding{b}))
	return b
}

func (f *fixture) unit(t *testing.T, buildingID uuid.UUID) *models.StagingPropertyUnit {
	u := &models.StagingPropertyUnit{StagingBase: f.base(true), PropertyUnitFields: models.PropertyUnitFields{UnitNumber: "1A"}, OriginalBuildingID: buildingID}
	require.NoError(t, f.staging.PropertyUnits.Insert(context.Background(), []*models.StagingPropertyUnit{u}))
	return u
}

func (f *fixture) person(t *testing.T, approved bool, name string) *models.StagingPerson {
	p := &models.StagingPerson{StagingBase: f.base(approved), PersonFields: models.PersonFields{FirstName: name, LastName: "Haddad"}}
	require.NoError(t, f.staging.Persons.Insert(context.Background(), []*models.StagingPerson{p}))
	return p
}

func (f *fixture) relation(t *testing.T, personID, unitID uuid.UUID) *models.StagingPersonPropertyRelation {
	r := &models.StagingPersonPropertyRelation{StagingBase: f.base(true), RelationFields: models.RelationFields{RelationType: "owner"}, OriginalPersonID: personID, OriginalPropertyUnitID: unitID}
	require.NoError(t, f.staging.Relations.Insert(context.Background(), []*models.StagingPersonPropertyRelation{r}))
	return r
}

func (f *fixture) committedID(t *testing.T, store repositories.KindStore, originalID uuid.UUID) uuid.UUID {
	row, ok, err := store.Find(context.Background(), f.pkgID, originalID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, row.Staging().CommittedEntityID, "%s %s was not committed", store.Kind(), originalID)
	return *row.Staging().CommittedEntityID
}

func (f *fixture) store(t *testing.T, kind models.EntityKind) repositories.KindStore {
	s, err := f.staging.ForKind(kind)
	require.NoError(t, err)
	return s
}

func TestCommit_ResolvesParentsInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.building(t)
	u := f.unit(t, b.OriginalEntityID)
	p := f.person(t, true, "Rami")
	r := f.relation(t, p.OriginalEntityID, u.OriginalEntityID)
	claimant := p.OriginalEntityID
	c := &models.StagingClaim{StagingBase: f.base(true), ClaimFields: models.ClaimFields{ClaimType: "ownership"}, OriginalPropertyUnitID: u.OriginalEntityID, OriginalPrimaryClaimantID: &claimant}
	require.NoError(t, f.staging.Claims.Insert(ctx, []*models.StagingClaim{c}))

	result, err := f.committer.Commit(ctx, f.pkgID, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalCommitted)
	assert.Equal(t, 1, result.CommittedByKind[models.EntityKindBuilding])
	assert.Equal(t, 1, result.CommittedByKind[models.EntityKindClaim])

	buildingID := f.committedID(t, f.store(t, models.EntityKindBuilding), b.OriginalEntityID)
	unitID := f.committedID(t, f.store(t, models.EntityKindPropertyUnit), u.OriginalEntityID)
	personID := f.committedID(t, f.store(t, models.EntityKindPerson), p.OriginalEntityID)
	relationID := f.committedID(t, f.store(t, models.EntityKindPersonPropertyRelation), r.OriginalEntityID)
	claimID := f.committedID(t, f.store(t, models.EntityKindClaim), c.OriginalEntityID)

	unit, ok, err := f.production.PropertyUnits.GetByID(ctx, unitID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, buildingID, unit.BuildingID)
	assert.Equal(t, "1A", unit.UnitNumber)
	require.NotNil(t, unit.ImportPackageID)
	assert.Equal(t, f.pkgID, *unit.ImportPackageID)

	rel, ok, err := f.production.Relations.GetByID(ctx, relationID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, personID, rel.PersonID)
	assert.Equal(t, unitID, rel.PropertyUnitID)

	claim, ok, err := f.production.Claims.GetByID(ctx, claimID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, claim.PrimaryClaimantID)
	assert.Equal(t, personID, *claim.PrimaryClaimantID)
}

func TestCommit_SkipsUnapprovedAndSkippedRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	approved := f.person(t, true, "Rami")
	pending := f.person(t, false, "Sami")
	merged := f.person(t, true, "Ramy")
	merged.MarkSkipped("merged", nil, &approved.OriginalEntityID, now)
	require.NoError(t, f.staging.Persons.Update(ctx, merged))

	result, err := f.committer.Commit(ctx, f.pkgID, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCommitted)

	rows, err := f.store(t, models.EntityKindPerson).FindByIDs(ctx, f.pkgID, []uuid.UUID{pending.ID, merged.ID})
	require.NoError(t, err)
	for _, row := range rows {
		assert.Nil(t, row.Staging().CommittedEntityID)
	}
}

func TestCommit_FollowsMergeBindings(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	existing := &models.Person{ProductionBase: models.NewProductionBase(nil, "seed", now), PersonFields: models.PersonFields{FirstName: "Rami"}}
	require.NoError(t, f.production.Persons.Insert(ctx, existing))

	b := f.building(t)
	u := f.unit(t, b.OriginalEntityID)

	// bound to production by a staging/production merge
	bound := f.person(t, true, "Rami")
	bound.MarkSkipped("merged into production", &existing.ID, nil, now)
	require.NoError(t, f.staging.Persons.Update(ctx, bound))

	// redirected to another staging row by a within-batch merge
	master := f.person(t, true, "Nour")
	redirected := f.person(t, true, "Noor")
	redirected.MarkSkipped("merged", nil, &master.OriginalEntityID, now)
	require.NoError(t, f.staging.Persons.Update(ctx, redirected))

	r1 := f.relation(t, bound.OriginalEntityID, u.OriginalEntityID)
	r2 := f.relation(t, redirected.OriginalEntityID, u.OriginalEntityID)

	result, err := f.committer.Commit(ctx, f.pkgID, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.BoundToExisting)
	assert.Equal(t, 1, result.CommittedByKind[models.EntityKindPerson])

	masterID := f.committedID(t, f.store(t, models.EntityKindPerson), master.OriginalEntityID)
	relations := f.store(t, models.EntityKindPersonPropertyRelation)

	rel1, _, err := f.production.Relations.GetByID(ctx, f.committedID(t, relations, r1.OriginalEntityID))
	require.NoError(t, err)
	assert.Equal(t, existing.ID, rel1.PersonID)

	rel2, _, err := f.production.Relations.GetByID(ctx, f.committedID(t, relations, r2.OriginalEntityID))
	require.NoError(t, err)
	assert.Equal(t, masterID, rel2.PersonID)
}

func TestCommit_ReferencesExistingProductionEntity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	existing := &models.Building{ProductionBase: models.NewProductionBase(nil, "seed", now), BuildingFields: models.BuildingFields{BuildingNumber: "B-9"}}
	require.NoError(t, f.production.Buildings.Insert(ctx, existing))
	u := f.unit(t, existing.ID)

	_, err := f.committer.Commit(ctx, f.pkgID, "clerk-1")
	require.NoError(t, err)

	unit, ok, err := f.production.PropertyUnits.GetByID(ctx, f.committedID(t, f.store(t, models.EntityKindPropertyUnit), u.OriginalEntityID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, existing.ID, unit.BuildingID)
}

func TestCommit_UnapprovedParentIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.building(t)
	u := f.unit(t, b.OriginalEntityID)
	p := f.person(t, false, "Rami")
	f.relation(t, p.OriginalEntityID, u.OriginalEntityID)

	_, err := f.committer.Commit(ctx, f.pkgID, "clerk-1")
	require.Error(t, err)
	assert.Equal(t, 409, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "not approved for commit")
}

func TestCommit_MissingParentIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.unit(t, uuid.New())

	_, err := f.committer.Commit(ctx, f.pkgID, "clerk-1")
	require.Error(t, err)
	assert.Equal(t, 409, httperror.GetStatusCode(err))
}
