// Package duplicates finds likely duplicate persons and properties in a
// staged package, both against production and within the package itself,
// and records each pair as a conflict for operator review.
package duplicates

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/pkg/matching"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Config contains the similarity thresholds used by detection.
type Config struct {
	PersonThreshold      float64 // Minimum person score to raise a conflict (default: 0.85)
	BuildingThreshold    float64 // Minimum building score to raise a conflict (default: 0.8)
	BirthYearWindow      int     // Candidate birth years searched either side (default: 2)
	BuildingRadiusMeters float64 // Distance at which location similarity reaches zero (default: 50)
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		PersonThreshold:      0.85,
		BuildingThreshold:    0.8,
		BirthYearWindow:      2,
		BuildingRadiusMeters: 50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PersonThreshold <= 0 {
		c.PersonThreshold = d.PersonThreshold
	}
	if c.BuildingThreshold <= 0 {
		c.BuildingThreshold = d.BuildingThreshold
	}
	if c.BirthYearWindow <= 0 {
		c.BirthYearWindow = d.BirthYearWindow
	}
	if c.BuildingRadiusMeters <= 0 {
		c.BuildingRadiusMeters = d.BuildingRadiusMeters
	}
	return c
}

// candidate is a pair above threshold, not yet persisted.
type candidate struct {
	conflictType models.ConflictType
	entityType   models.EntityKind
	first        uuid.UUID
	second       uuid.UUID
	score        float64
	reasons      []string
}

type Service struct {
	logger     ectologger.Logger
	staging    *repositories.StagingStores
	production *repositories.ProductionStores
	conflicts  repositories.ConflictRepository
	scorer     *matching.Scorer
	config     Config
	now        func() time.Time
}

func NewService(
	staging *repositories.StagingStores,
	production *repositories.ProductionStores,
	conflicts repositories.ConflictRepository,
	config Config,
	logger ectologger.Logger,
) *Service {
	return &Service{
		logger:     logger,
		staging:    staging,
		production: production,
		conflicts:  conflicts,
		scorer:     matching.NewScorer(),
		config:     config.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Detect scans the staged persons, buildings and property units of a
// package and creates one PendingReview conflict per matching pair. A pair
// that already has a pending conflict is skipped, so callers that want a
// clean re-run must ignore the previous pass's conflicts first.
func (s *Service) Detect(ctx context.Context, importPackageID uuid.UUID, actorID string) (*models.DuplicateDetectionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Service.Detect")
	defer span.End()

	start := time.Now()
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"import_package_id": importPackageID,
		"actor_id":          actorID,
	})

	result := &models.DuplicateDetectionResult{
		ImportPackageID: importPackageID,
		ConflictIDs:     []uuid.UUID{},
	}

	var persons, properties []candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		persons, result.PersonsScanned, err = s.detectPersons(gctx, importPackageID)
		return err
	})
	g.Go(func() error {
		var err error
		properties, result.BuildingsScanned, result.PropertyUnitsScanned, err = s.detectProperties(gctx, importPackageID)
		return err
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Failed to detect duplicates")
		return nil, err
	}

	now := s.now()
	var created []string
	for _, c := range append(persons, properties...) {
		existing, err := s.conflicts.FindPendingForPair(ctx, importPackageID, c.first, c.second)
		if err != nil {
			log.WithError(err).Error("Failed to check for an existing conflict")
			return nil, err
		}
		if existing != nil {
			result.SkippedExistingConflicts++
			continue
		}

		number, err := s.conflicts.NextConflictNumber(ctx, now)
		if err != nil {
			return nil, err
		}
		pkgID := importPackageID
		conflict := models.NewConflict(c.conflictType, c.entityType, &pkgID, c.first, c.second, c.score, c.reasons, actorID, now)
		conflict.ConflictNumber = number
		if err := s.conflicts.Create(ctx, conflict); err != nil {
			log.WithError(err).WithFields(map[string]any{"conflict_type": c.conflictType}).Error("Failed to create conflict")
			return nil, err
		}

		result.ConflictIDs = append(result.ConflictIDs, conflict.ID)
		created = append(created, string(c.conflictType))
		switch c.conflictType {
		case models.ConflictTypePersonDuplicate:
			result.PersonDuplicates++
		case models.ConflictTypePersonDuplicateWithinBatch:
			result.PersonWithinBatch++
		case models.ConflictTypePropertyDuplicate:
			result.PropertyDuplicates++
		case models.ConflictTypePropertyDuplicateWithinBatch:
			result.PropertyWithinBatch++
		}
	}

	result.Duration = time.Since(start)
	metrics.RecordDetection(result.Duration.Seconds(), created)

	log.WithFields(map[string]any{
		"person_conflicts":   result.TotalPersonConflicts(),
		"property_conflicts": result.TotalPropertyConflicts(),
		"skipped_existing":   result.SkippedExistingConflicts,
		"duration":           result.Duration.String(),
	}).Info("Duplicate detection complete")
	return result, nil
}

// pairKey identifies an unordered pair.
type pairKey struct{ a, b uuid.UUID }

func newPairKey(a, b uuid.UUID) pairKey {
	if b.String() < a.String() {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// live drops rows a merge already took out of the commit.
func live[T models.StagingRecord](rows []T) []T {
	out := rows[:0]
	for _, r := range rows {
		if !r.Staging().IsSkipped() {
			out = append(out, r)
		}
	}
	return out
}
