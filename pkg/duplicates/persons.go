package duplicates

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/normalizers"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

var personWeights = map[string]float64{
	"name":       0.85,
	"birth_year": 0.15,
}

// ScorePersons compares two persons. An exact national ID match scores 1.
// Two different national IDs never match. Otherwise the folded full names
// and birth years are compared; without both birth years there is no match.
func (s *Service) ScorePersons(a, b *models.PersonFields) (float64, []string) {
	idA, idB := normalizers.NormalizeCode(a.NationalID), normalizers.NormalizeCode(b.NationalID)
	if idA != "" && idA == idB {
		return 1.0, []string{"national_id_exact"}
	}
	if idA != "" && idB != "" {
		return 0, nil
	}

	yearA, yearB := a.BirthYear(), b.BirthYear()
	if yearA == 0 || yearB == 0 {
		return 0, nil
	}
	nameA, nameB := normalizers.NormalizeName(a.FullName()), normalizers.NormalizeName(b.FullName())
	if nameA == "" || nameB == "" {
		return 0, nil
	}

	name := max(s.scorer.JaroWinkler(nameA, nameB), s.scorer.TokenSetSimilarity(nameA, nameB))
	year := s.scorer.NumericProximity(float64(yearA), float64(yearB), float64(s.config.BirthYearWindow+1))
	score := s.scorer.WeightedScore(
		map[string]float64{"name": name, "birth_year": year},
		personWeights,
	)

	delta := yearA - yearB
	if delta < 0 {
		delta = -delta
	}
	return score, []string{
		fmt.Sprintf("name_similarity=%.2f", name),
		fmt.Sprintf("birth_year_delta=%d", delta),
	}
}

func (s *Service) detectPersons(ctx context.Context, importPackageID uuid.UUID) ([]candidate, int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Service.detectPersons")
	defer span.End()

	rows, err := s.staging.Persons.GetByPackageID(ctx, importPackageID)
	if err != nil {
		return nil, 0, err
	}
	persons := live(rows)

	seen := map[pairKey]bool{}
	var out []candidate

	for _, p := range persons {
		matches, err := s.productionCandidates(ctx, &p.PersonFields)
		if err != nil {
			return nil, 0, err
		}
		for _, m := range matches {
			score, reasons := s.ScorePersons(&p.PersonFields, &m.PersonFields)
			if score < s.config.PersonThreshold {
				continue
			}
			key := newPairKey(p.OriginalEntityID, m.ID)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, candidate{
				conflictType: models.ConflictTypePersonDuplicate,
				entityType:   models.EntityKindPerson,
				first:        p.OriginalEntityID,
				second:       m.ID,
				score:        score,
				reasons:      reasons,
			})
		}
	}

	for i := range persons {
		for j := i + 1; j < len(persons); j++ {
			a, b := persons[i], persons[j]
			score, reasons := s.ScorePersons(&a.PersonFields, &b.PersonFields)
			if score < s.config.PersonThreshold {
				continue
			}
			key := newPairKey(a.OriginalEntityID, b.OriginalEntityID)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, candidate{
				conflictType: models.ConflictTypePersonDuplicateWithinBatch,
				entityType:   models.EntityKindPerson,
				first:        a.OriginalEntityID,
				second:       b.OriginalEntityID,
				score:        score,
				reasons:      reasons,
			})
		}
	}
	return out, len(persons), nil
}

// productionCandidates loads the production persons worth scoring against
// p: national ID hits plus everyone born within the window.
func (s *Service) productionCandidates(ctx context.Context, p *models.PersonFields) ([]*models.Person, error) {
	byID := map[uuid.UUID]*models.Person{}
	var order []uuid.UUID
	add := func(people []*models.Person) {
		for _, person := range people {
			if _, ok := byID[person.ID]; ok {
				continue
			}
			byID[person.ID] = person
			order = append(order, person.ID)
		}
	}

	if raw := strings.TrimSpace(p.NationalID); raw != "" {
		lookups := []string{raw}
		if code := normalizers.NormalizeCode(raw); code != raw {
			lookups = append(lookups, code)
		}
		for _, nationalID := range lookups {
			people, err := s.production.Persons.FindByNationalID(ctx, nationalID)
			if err != nil {
				return nil, err
			}
			add(people)
		}
	}

	if year := p.BirthYear(); year != 0 {
		window := s.config.BirthYearWindow
		people, err := s.production.Persons.FindByBirthYearRange(ctx, year-window, year+window)
		if err != nil {
			return nil, err
		}
		add(people)
	}

	out := make([]*models.Person, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}
