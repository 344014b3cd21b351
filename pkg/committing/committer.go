// Package committing writes approved staging rows into the production tables.
package committing

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// maxRedirects bounds how many within-batch merge redirects a reference may
// follow before it is treated as a cycle.
const maxRedirects = 16

// Committer copies approved staging rows to production. It does not open a
// transaction; callers run Commit inside one.
type Committer struct {
	staging    *repositories.StagingStores
	production *repositories.ProductionStores
	logger     ectologger.Logger
	now        func() time.Time
}

func NewCommitter(staging *repositories.StagingStores, production *repositories.ProductionStores, logger ectologger.Logger) *Committer {
	return &Committer{
		staging:    staging,
		production: production,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// commitRun carries the weak-reference table for one commit: original
// entity IDs of the package mapped to the production IDs they became.
type commitRun struct {
	importPackageID uuid.UUID
	actorID         string
	now             time.Time
	rows            map[models.EntityKind]map[uuid.UUID]models.StagingRecord
	committed       map[models.EntityKind]map[uuid.UUID]uuid.UUID
}

// Commit writes every approved, non-skipped staging row that is not yet
// bound to production, parents before children, and stamps
// CommittedEntityID on each.
func (c *Committer) Commit(ctx context.Context, importPackageID uuid.UUID, actorID string) (*models.CommitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "committing.Committer.Commit")
	defer span.End()

	start := time.Now()
	run := &commitRun{
		importPackageID: importPackageID,
		actorID:         actorID,
		now:             c.now(),
		rows:            map[models.EntityKind]map[uuid.UUID]models.StagingRecord{},
		committed:       map[models.EntityKind]map[uuid.UUID]uuid.UUID{},
	}
	result := &models.CommitResult{
		ImportPackageID: importPackageID,
		CommittedByKind: map[models.EntityKind]int{},
	}

	stores := c.staging.All()
	for _, store := range stores {
		rows, err := store.Records(ctx, importPackageID)
		if err != nil {
			return nil, err
		}
		byOrig := make(map[uuid.UUID]models.StagingRecord, len(rows))
		bound := map[uuid.UUID]uuid.UUID{}
		for _, r := range rows {
			b := r.Staging()
			byOrig[b.OriginalEntityID] = r
			if b.CommittedEntityID != nil {
				bound[b.OriginalEntityID] = *b.CommittedEntityID
				if b.IsSkipped() {
					result.BoundToExisting++
				}
			}
		}
		run.rows[store.Kind()] = byOrig
		run.committed[store.Kind()] = bound
	}

	for _, store := range stores {
		kind := store.Kind()
		var written []models.StagingRecord
		for _, r := range orderedRows(run.rows[kind]) {
			b := r.Staging()
			if !b.IsApprovedForCommit || b.IsSkipped() || b.CommittedEntityID != nil {
				continue
			}

			entity, err := c.build(ctx, run, r)
			if err != nil {
				return nil, err
			}
			if err := c.production.Insert(ctx, entity); err != nil {
				c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"import_package_id":  importPackageID,
					"entity_type":        kind,
					"original_entity_id": b.OriginalEntityID,
				}).Error("Failed to insert production record")
				return nil, err
			}

			id := entity.Production().ID
			b.CommittedEntityID = &id
			b.UpdatedAtUtc = run.now
			run.committed[kind][b.OriginalEntityID] = id
			written = append(written, r)
		}

		if len(written) == 0 {
			continue
		}
		if err := store.Save(ctx, written); err != nil {
			return nil, err
		}
		result.CommittedByKind[kind] = len(written)
		result.TotalCommitted += len(written)
	}

	for kind, n := range result.CommittedByKind {
		metrics.RecordCommitted(string(kind), n)
	}
	result.Duration = time.Since(start)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"import_package_id": importPackageID,
		"committed":         result.TotalCommitted,
		"bound_to_existing": result.BoundToExisting,
	}).Info("Committed staging rows to production")
	return result, nil
}

// orderedRows returns rows in staging order.
func orderedRows(rows map[uuid.UUID]models.StagingRecord) []models.StagingRecord {
	out := make([]models.StagingRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Staging(), out[j].Staging()
		if !a.StagedAtUtc.Equal(b.StagedAtUtc) {
			return a.StagedAtUtc.Before(b.StagedAtUtc)
		}
		return a.OriginalEntityID.String() < b.OriginalEntityID.String()
	})
	return out
}

// resolve maps a parent reference to a production ID. Parents committed in
// this run or bound by a merge win; within-batch merge redirects are
// followed; an ID that already exists in production is used as is.
func (c *Committer) resolve(ctx context.Context, run *commitRun, child models.StagingRecord, ref models.ParentRef) (uuid.UUID, error) {
	where := fmt.Sprintf("%s %s field %s", child.Kind(), child.Staging().OriginalEntityID, ref.Field)
	id := ref.OriginalID
	for hops := 0; hops <= maxRedirects; hops++ {
		if prodID, ok := run.committed[ref.Kind][id]; ok {
			return prodID, nil
		}
		row, ok := run.rows[ref.Kind][id]
		if ok && row.Staging().MergedIntoOriginalID != nil {
			id = *row.Staging().MergedIntoOriginalID
			continue
		}
		exists, err := c.production.Exists(ctx, ref.Kind, id)
		if err != nil {
			return uuid.Nil, err
		}
		if exists {
			return id, nil
		}
		if ok {
			return uuid.Nil, httperror.NewHTTPErrorf(http.StatusConflict,
				"%s: %s %s is referenced but was not approved for commit", where, ref.Kind, id)
		}
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"%s: %s %s does not exist in this package or in production", where, ref.Kind, id)
	}
	return uuid.Nil, httperror.NewHTTPErrorf(http.StatusConflict,
		"%s: merge redirects from %s %s form a cycle", where, ref.Kind, ref.OriginalID)
}

func (c *Committer) optional(ctx context.Context, run *commitRun, child models.StagingRecord, kind models.EntityKind, field string, id *uuid.UUID) (*uuid.UUID, error) {
	if id == nil || *id == uuid.Nil {
		return nil, nil
	}
	resolved, err := c.resolve(ctx, run, child, models.ParentRef{Kind: kind, Field: field, OriginalID: *id})
	if err != nil {
		return nil, err
	}
	return &resolved, nil
}

// build converts one staging row to its production entity with parent
// references resolved.
func (c *Committer) build(ctx context.Context, run *commitRun, r models.StagingRecord) (models.ProductionRecord, error) {
	pkgID := run.importPackageID
	base := models.NewProductionBase(&pkgID, run.actorID, run.now)

	switch s := r.(type) {
	case *models.StagingBuilding:
		return &models.Building{ProductionBase: base, BuildingFields: s.BuildingFields}, nil

	case *models.StagingPropertyUnit:
		buildingID, err := c.resolve(ctx, run, r, s.ParentRefs()[0])
		if err != nil {
			return nil, err
		}
		return &models.PropertyUnit{ProductionBase: base, PropertyUnitFields: s.PropertyUnitFields, BuildingID: buildingID}, nil

	case *models.StagingPerson:
		return &models.Person{ProductionBase: base, PersonFields: s.PersonFields}, nil

	case *models.StagingHousehold:
		unitID, err := c.resolve(ctx, run, r, s.ParentRefs()[0])
		if err != nil {
			return nil, err
		}
		head, err := c.optional(ctx, run, r, models.EntityKindPerson, "original_head_person_id", s.OriginalHeadPersonID)
		if err != nil {
			return nil, err
		}
		return &models.Household{ProductionBase: base, HouseholdFields: s.HouseholdFields, PropertyUnitID: unitID, HeadPersonID: head}, nil

	case *models.StagingPersonPropertyRelation:
		refs := s.ParentRefs()
		personID, err := c.resolve(ctx, run, r, refs[0])
		if err != nil {
			return nil, err
		}
		unitID, err := c.resolve(ctx, run, r, refs[1])
		if err != nil {
			return nil, err
		}
		return &models.PersonPropertyRelation{ProductionBase: base, RelationFields: s.RelationFields, PersonID: personID, PropertyUnitID: unitID}, nil

	case *models.StagingEvidence:
		personID, err := c.optional(ctx, run, r, models.EntityKindPerson, "original_person_id", s.OriginalPersonID)
		if err != nil {
			return nil, err
		}
		relationID, err := c.optional(ctx, run, r, models.EntityKindPersonPropertyRelation, "original_relation_id", s.OriginalRelationID)
		if err != nil {
			return nil, err
		}
		return &models.Evidence{ProductionBase: base, EvidenceFields: s.EvidenceFields, PersonID: personID, RelationID: relationID}, nil

	case *models.StagingClaim:
		unitID, err := c.resolve(ctx, run, r, s.ParentRefs()[0])
		if err != nil {
			return nil, err
		}
		claimant, err := c.optional(ctx, run, r, models.EntityKindPerson, "original_primary_claimant_id", s.OriginalPrimaryClaimantID)
		if err != nil {
			return nil, err
		}
		return &models.Claim{ProductionBase: base, ClaimFields: s.ClaimFields, PropertyUnitID: unitID, PrimaryClaimantID: claimant}, nil

	case *models.StagingSurvey:
		buildingID, err := c.resolve(ctx, run, r, s.ParentRefs()[0])
		if err != nil {
			return nil, err
		}
		unitID, err := c.optional(ctx, run, r, models.EntityKindPropertyUnit, "original_property_unit_id", s.OriginalPropertyUnitID)
		if err != nil {
			return nil, err
		}
		return &models.Survey{ProductionBase: base, SurveyFields: s.SurveyFields, BuildingID: buildingID, PropertyUnitID: unitID}, nil
	}
	return nil, fmt.Errorf("no production mapping for %T", r)
}
