package validation

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/internal/repositories"
)

// NewDefaultPipeline wires the five standard levels.
func NewDefaultPipeline(stores *repositories.StagingStores, production ProductionLookup, codes CodeList, logger ectologger.Logger) *Pipeline {
	return NewPipeline(stores, logger,
		Structural{},
		Format{},
		References{Production: production},
		Vocabulary{Codes: codes},
		BusinessRules{},
	)
}
