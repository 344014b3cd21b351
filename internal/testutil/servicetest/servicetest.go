// Package servicetest wires an importing.Service over in-memory stores for
// tests outside the importing package.
package servicetest

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/internal/repositories/memory"
	"github.com/Ramsey-B/willow/pkg/committing"
	"github.com/Ramsey-B/willow/pkg/duplicates"
	"github.com/Ramsey-B/willow/pkg/importing"
	"github.com/Ramsey-B/willow/pkg/integrity"
	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/packagestore"
	"github.com/Ramsey-B/willow/pkg/staging"
	"github.com/Ramsey-B/willow/pkg/validation"
	"github.com/Ramsey-B/willow/pkg/vocabulary"
)

type Env struct {
	Service    *importing.Service
	Staging    *repositories.StagingStores
	Production *repositories.ProductionStores
	Conflicts  *memory.ConflictRepository
	Logger     ectologger.Logger
}

func New(t *testing.T) *Env {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})

	files, err := packagestore.NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)
	attachments, err := packagestore.NewAttachmentStore(t.TempDir(), logger)
	require.NoError(t, err)

	stagingStores := memory.NewStagingStores()
	production := memory.NewProductionStores()
	conflicts := memory.NewConflictRepository()
	codes := vocabulary.Default()

	svc := importing.NewService(importing.Dependencies{
		Packages:   memory.NewImportPackageRepository(),
		Conflicts:  conflicts,
		Staging:    stagingStores,
		Production: production,
		Transactor: memory.NewTransactor(),
		Files:      files,
		Verifier:   integrity.NewVerifier(integrity.Config{}, codes, logger),
		Stager:     staging.NewService(stagingStores, attachments, staging.Config{}, logger),
		Pipeline:   validation.NewDefaultPipeline(stagingStores, production, codes, logger),
		Detector:   duplicates.NewService(stagingStores, production, conflicts, duplicates.Config{}, logger),
		Merger:     merging.NewEngine(stagingStores, production, logger),
		Committer:  committing.NewCommitter(stagingStores, production, logger),
	}, importing.Config{}, logger)

	return &Env{
		Service:    svc,
		Staging:    stagingStores,
		Production: production,
		Conflicts:  conflicts,
		Logger:     logger,
	}
}
