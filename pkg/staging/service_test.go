package staging

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/internal/repositories/memory"
	"github.com/Ramsey-B/willow/internal/testutil/packagebuilder"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/packagestore"
)

func newTestService(t *testing.T) (*Service, *repositories.StagingStores) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	attachments, err := packagestore.NewAttachmentStore(t.TempDir(), logger)
	require.NoError(t, err)

	stores := memory.NewStagingStores()
	return NewService(stores, attachments, Config{}, logger), stores
}

func TestService_UnpackAndStage(t *testing.T) {
	ctx := context.Background()
	svc, stores := newTestService(t)

	builder, g := packagebuilder.Sample(uuid.New())
	builder.Row("weather_readings", map[string]any{"id": uuid.New(), "celsius": 21.5})
	path, err := builder.WriteTemp(ctx, t.TempDir())
	require.NoError(t, err)

	importPackageID := uuid.New()
	result, err := svc.UnpackAndStage(ctx, importPackageID, path)
	require.NoError(t, err)

	assert.Equal(t, 8, result.TotalRecords)
	for _, kind := range models.CommitOrder {
		assert.Equal(t, 1, result.CountsByKind[kind], kind)
	}
	assert.Equal(t, 1, result.AttachmentsExtracted)
	assert.Equal(t, 0, result.UnresolvedReferences)
	assert.Equal(t, 0, result.RejectedRows)
	assert.Equal(t, []string{"weather_readings"}, result.IgnoredTables)

	t.Run("keeps original ids and parent references", func(t *testing.T) {
		unit, ok, err := stores.PropertyUnits.GetByPackageAndOriginalID(ctx, importPackageID, g.Unit)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, g.Building, unit.OriginalBuildingID)
		assert.Equal(t, models.ValidationStatusPending, unit.ValidationStatus)
		assert.Equal(t, "1A", unit.UnitNumber)

		household, ok, err := stores.Households.GetByPackageAndOriginalID(ctx, importPackageID, g.Household)
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, household.OriginalHeadPersonID)
		assert.Equal(t, g.Person, *household.OriginalHeadPersonID)
	})

	t.Run("binds evidence to its extracted attachment", func(t *testing.T) {
		ev, ok, err := stores.Evidences.GetByPackageAndOriginalID(ctx, importPackageID, g.Evidence)
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEmpty(t, ev.AttachmentStorageKey)
		assert.Equal(t, "application/pdf", ev.MimeType)
		assert.Positive(t, ev.AttachmentSizeBytes)
	})

	t.Run("person fields", func(t *testing.T) {
		p, ok, err := stores.Persons.GetByPackageAndOriginalID(ctx, importPackageID, g.Person)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "01020304050", p.NationalID)
		assert.Equal(t, 1975, p.BirthYear())
	})
}

func TestService_UnpackAndStage_RowProblems(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	dup := uuid.New()
	orphanUnit := uuid.New()
	path, err := packagebuilder.New(uuid.New()).
		Row("buildings", packagebuilder.Building(dup, "B-1", "X")).
		Row("buildings", packagebuilder.Building(dup, "B-1 again", "X")).
		Row("buildings", map[string]any{"id": "not-a-guid", "building_number": "B-2"}).
		Row("property_units", packagebuilder.PropertyUnit(orphanUnit, uuid.New(), "9")).
		Row("persons", map[string]any{"id": uuid.New(), "first_name": "Sara", "date_of_birth": "someday"}).
		WriteTemp(ctx, t.TempDir())
	require.NoError(t, err)

	result, err := svc.UnpackAndStage(ctx, uuid.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CountsByKind[models.EntityKindBuilding])
	assert.Equal(t, 2, result.RejectedRows)
	assert.Equal(t, 1, result.UnresolvedReferences)
	assert.NotEmpty(t, result.Warnings)
}

func TestService_CleanupThenRestage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	builder, _ := packagebuilder.Sample(uuid.New())
	path, err := builder.WriteTemp(ctx, t.TempDir())
	require.NoError(t, err)

	importPackageID := uuid.New()
	first, err := svc.UnpackAndStage(ctx, importPackageID, path)
	require.NoError(t, err)

	cleanup, err := svc.Cleanup(ctx, importPackageID)
	require.NoError(t, err)
	assert.Equal(t, 1, cleanup.RowsDeleted[models.EntityKindPerson])
	assert.Equal(t, 1, cleanup.AttachmentsDeleted)

	_, totals, err := svc.Summary(ctx, importPackageID)
	require.NoError(t, err)
	assert.Equal(t, 0, totals.Total)

	second, err := svc.UnpackAndStage(ctx, importPackageID, path)
	require.NoError(t, err)
	assert.Equal(t, first.CountsByKind, second.CountsByKind)

	kinds, totals, err := svc.Summary(ctx, importPackageID)
	require.NoError(t, err)
	assert.Equal(t, 8, totals.Total)
	assert.Equal(t, 8, totals.Pending)
	require.Len(t, kinds, len(models.CommitOrder))
	assert.Equal(t, models.EntityKindBuilding, kinds[0].Kind)
}

func TestService_UnpackAndStage_MissingFile(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.UnpackAndStage(context.Background(), uuid.New(), "/nonexistent/dir/pkg.uhc")
	assert.Error(t, err)
}
