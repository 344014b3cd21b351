package repositories

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/internal/repositories/production"
	"github.com/Ramsey-B/willow/internal/repositories/staging"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
)

func newRow[T any]() *T {
	return new(T)
}

// NewPostgresStagingStores builds the staging registry on Postgres.
func NewPostgresStagingStores(db database.DB, logger ectologger.Logger) *StagingStores {
	return &StagingStores{
		Buildings:     staging.NewRepository(db, logger, newRow[models.StagingBuilding]),
		PropertyUnits: staging.NewRepository(db, logger, newRow[models.StagingPropertyUnit]),
		Persons:       staging.NewRepository(db, logger, newRow[models.StagingPerson]),
		Households:    staging.NewRepository(db, logger, newRow[models.StagingHousehold]),
		Relations:     staging.NewRepository(db, logger, newRow[models.StagingPersonPropertyRelation]),
		Evidences:     staging.NewRepository(db, logger, newRow[models.StagingEvidence]),
		Claims:        staging.NewRepository(db, logger, newRow[models.StagingClaim]),
		Surveys:       staging.NewRepository(db, logger, newRow[models.StagingSurvey]),
	}
}

// NewPostgresProductionStores builds the production registry on Postgres.
func NewPostgresProductionStores(db database.DB, logger ectologger.Logger) *ProductionStores {
	return &ProductionStores{
		Buildings:     production.NewBuildingRepository(db, logger),
		PropertyUnits: production.NewRepository(db, logger, newRow[models.PropertyUnit]),
		Persons:       production.NewPersonRepository(db, logger),
		Households:    production.NewRepository(db, logger, newRow[models.Household]),
		Relations:     production.NewRepository(db, logger, newRow[models.PersonPropertyRelation]),
		Evidences:     production.NewRepository(db, logger, newRow[models.Evidence]),
		Claims:        production.NewRepository(db, logger, newRow[models.Claim]),
		Surveys:       production.NewRepository(db, logger, newRow[models.Survey]),
		References:    production.NewReferenceRepository(db, logger),
	}
}
