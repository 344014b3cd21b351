package validation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/normalizers"
)

// ownershipRelations are the relation types whose shares must add up.
var ownershipRelations = map[string]bool{"owner": true, "co_owner": true}

// BusinessRules checks constraints spanning several rows.
type BusinessRules struct{}

func (BusinessRules) Level() int   { return 5 }
func (BusinessRules) Name() string { return "business_rules" }

func (v BusinessRules) Validate(_ context.Context, ds *Dataset, out *Findings) error {
	v.ownershipShares(ds, out)
	v.unitNumbers(ds, out)
	v.buildingCapacity(ds, out)
	v.claimants(ds, out)
	return nil
}

// ownershipShares rejects units whose declared owner shares exceed one.
// Shares are summed as decimals so 0.1+0.2+0.7 is exactly one.
func (BusinessRules) ownershipShares(ds *Dataset, out *Findings) {
	type unitShares struct {
		total     decimal.Decimal
		relations []models.StagingRecord
	}
	byUnit := map[uuid.UUID]*unitShares{}
	var order []uuid.UUID

	out.Scan(ds.Records[models.EntityKindPersonPropertyRelation], func(r models.StagingRecord) {
		rel := r.(*models.StagingPersonPropertyRelation)
		if rel.OwnershipShare == nil || !ownershipRelations[strings.ToLower(rel.RelationType)] {
			return
		}
		us, ok := byUnit[rel.OriginalPropertyUnitID]
		if !ok {
			us = &unitShares{total: decimal.Zero}
			byUnit[rel.OriginalPropertyUnitID] = us
			order = append(order, rel.OriginalPropertyUnitID)
		}
		us.total = us.total.Add(decimal.NewFromFloat(*rel.OwnershipShare))
		us.relations = append(us.relations, r)
	})

	one := decimal.NewFromInt(1)
	for _, unitID := range order {
		us := byUnit[unitID]
		if us.total.LessThanOrEqual(one) {
			continue
		}
		for _, r := range us.relations {
			out.Error(r, "ownership_exceeded", "ownership_share", "ownership shares of unit %s add up to %s", unitID, us.total.String())
		}
	}
}

// unitNumbers warns about two units of one building sharing a number.
func (BusinessRules) unitNumbers(ds *Dataset, out *Findings) {
	type key struct {
		building uuid.UUID
		number   string
	}
	first := map[key]uuid.UUID{}

	out.Scan(ds.Records[models.EntityKindPropertyUnit], func(r models.StagingRecord) {
		u := r.(*models.StagingPropertyUnit)
		if u.UnitNumber == "" {
			return
		}
		k := key{building: u.OriginalBuildingID, number: normalizers.NormalizeCode(u.UnitNumber)}
		if other, ok := first[k]; ok {
			out.Warn(r, "duplicate_unit_number", "unit_number", "unit number %q is also used by unit %s", u.UnitNumber, other)
			return
		}
		first[k] = u.OriginalEntityID
	})
}

// buildingCapacity warns when a building declares fewer units than the
// package stages for it.
func (BusinessRules) buildingCapacity(ds *Dataset, out *Findings) {
	units := map[uuid.UUID]int{}
	for _, r := range ds.Records[models.EntityKindPropertyUnit] {
		if r.Staging().IsSkipped() {
			continue
		}
		units[r.(*models.StagingPropertyUnit).OriginalBuildingID]++
	}

	out.Scan(ds.Records[models.EntityKindBuilding], func(r models.StagingRecord) {
		b := r.(*models.StagingBuilding)
		if n := units[b.OriginalEntityID]; b.NumberOfUnits > 0 && n > b.NumberOfUnits {
			out.Warn(r, "capacity_exceeded", "number_of_units", "building declares %d units but the package has %d", b.NumberOfUnits, n)
		}
	})
}

// claimants warns when a claim's primary claimant has no relation to the
// claimed unit in the package.
func (BusinessRules) claimants(ds *Dataset, out *Findings) {
	type key struct{ person, unit uuid.UUID }
	related := map[key]bool{}
	for _, r := range ds.Records[models.EntityKindPersonPropertyRelation] {
		rel := r.(*models.StagingPersonPropertyRelation)
		related[key{rel.OriginalPersonID, rel.OriginalPropertyUnitID}] = true
	}

	out.Scan(ds.Records[models.EntityKindClaim], func(r models.StagingRecord) {
		c := r.(*models.StagingClaim)
		if c.OriginalPrimaryClaimantID == nil {
			return
		}
		if _, staged := ds.Lookup(models.EntityKindPerson, *c.OriginalPrimaryClaimantID); !staged {
			return
		}
		if !related[key{*c.OriginalPrimaryClaimantID, c.OriginalPropertyUnitID}] {
			out.Warn(r, "claimant_not_related", "primary_claimant_id", "primary claimant has no recorded relation to the claimed unit")
		}
	})
}
