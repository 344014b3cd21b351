package duplicates

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/normalizers"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// ScoreBuildings compares two buildings. Buildings in different
// administrative areas never match. Within one area the building number
// dominates and location refines it when both sides have coordinates.
func (s *Service) ScoreBuildings(a, b *models.BuildingFields) (float64, []string) {
	codeA := normalizers.NormalizeCode(a.AdministrativeCode)
	if codeA == "" || codeA != normalizers.NormalizeCode(b.AdministrativeCode) {
		return 0, nil
	}
	reasons := []string{"administrative_code_exact"}

	number := s.scorer.ExactMatch(normalizers.NormalizeCode(a.BuildingNumber), normalizers.NormalizeCode(b.BuildingNumber), true)
	if number == 1 {
		reasons = append(reasons, "building_number_exact")
	}

	scores := map[string]float64{"administrative_code": 1, "building_number": number}
	weights := map[string]float64{"administrative_code": 0.3, "building_number": 0.7}
	if a.HasLocation() && b.HasLocation() {
		location := s.scorer.DistanceProximity(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude, s.config.BuildingRadiusMeters)
		scores["location"] = location
		weights["building_number"] = 0.5
		weights["location"] = 0.2
		reasons = append(reasons, fmt.Sprintf("location_similarity=%.2f", location))
	}
	return s.scorer.WeightedScore(scores, weights), reasons
}

func (s *Service) detectProperties(ctx context.Context, importPackageID uuid.UUID) ([]candidate, int, int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Service.detectProperties")
	defer span.End()

	buildingRows, err := s.staging.Buildings.GetByPackageID(ctx, importPackageID)
	if err != nil {
		return nil, 0, 0, err
	}
	unitRows, err := s.staging.PropertyUnits.GetByPackageID(ctx, importPackageID)
	if err != nil {
		return nil, 0, 0, err
	}
	buildings, units := live(buildingRows), live(unitRows)

	seen := map[pairKey]bool{}
	var out []candidate
	add := func(c candidate) {
		key := newPairKey(c.first, c.second)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	areas := map[string][]*models.Building{}
	for _, b := range buildings {
		code := b.AdministrativeCode
		if code == "" {
			continue
		}
		matches, ok := areas[code]
		if !ok {
			matches, err = s.production.Buildings.FindByAdministrativeCode(ctx, code)
			if err != nil {
				return nil, 0, 0, err
			}
			areas[code] = matches
		}
		for _, m := range matches {
			score, reasons := s.ScoreBuildings(&b.BuildingFields, &m.BuildingFields)
			if score < s.config.BuildingThreshold {
				continue
			}
			add(candidate{
				conflictType: models.ConflictTypePropertyDuplicate,
				entityType:   models.EntityKindBuilding,
				first:        b.OriginalEntityID,
				second:       m.ID,
				score:        score,
				reasons:      reasons,
			})
		}
	}

	for i := range buildings {
		for j := i + 1; j < len(buildings); j++ {
			a, b := buildings[i], buildings[j]
			score, reasons := s.ScoreBuildings(&a.BuildingFields, &b.BuildingFields)
			if score < s.config.BuildingThreshold {
				continue
			}
			add(candidate{
				conflictType: models.ConflictTypePropertyDuplicateWithinBatch,
				entityType:   models.EntityKindBuilding,
				first:        a.OriginalEntityID,
				second:       b.OriginalEntityID,
				score:        score,
				reasons:      reasons,
			})
		}
	}

	// Units only collide inside one building of the same package.
	type unitKey struct {
		building uuid.UUID
		number   string
	}
	firstUnit := map[unitKey]uuid.UUID{}
	for _, u := range units {
		number := normalizers.NormalizeCode(u.UnitNumber)
		if number == "" {
			continue
		}
		k := unitKey{building: u.OriginalBuildingID, number: number}
		other, ok := firstUnit[k]
		if !ok {
			firstUnit[k] = u.OriginalEntityID
			continue
		}
		add(candidate{
			conflictType: models.ConflictTypePropertyDuplicateWithinBatch,
			entityType:   models.EntityKindPropertyUnit,
			first:        other,
			second:       u.OriginalEntityID,
			score:        1.0,
			reasons:      []string{"same_building", "unit_number_exact"},
		})
	}

	return out, len(buildings), len(units), nil
}
