package validation

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

// Structural checks that every row carries the fields it cannot be
// committed without.
type Structural struct{}

func (Structural) Level() int   { return 1 }
func (Structural) Name() string { return "structural" }

func required(out *Findings, r models.StagingRecord, field, value string) {
	if value == "" {
		out.Error(r, "required", field, "%s is required", field)
	}
}

func requiredRef(out *Findings, r models.StagingRecord, field string, id uuid.UUID) {
	if id == uuid.Nil {
		out.Error(r, "required", field, "%s is required", field)
	}
}

func (Structural) Validate(_ context.Context, ds *Dataset, out *Findings) error {
	out.Scan(ds.Records[models.EntityKindBuilding], func(r models.StagingRecord) {
		b := r.(*models.StagingBuilding)
		required(out, r, "building_number", b.BuildingNumber)
		required(out, r, "administrative_code", b.AdministrativeCode)
		required(out, r, "building_type", b.BuildingType)
	})

	out.Scan(ds.Records[models.EntityKindPropertyUnit], func(r models.StagingRecord) {
		u := r.(*models.StagingPropertyUnit)
		required(out, r, "unit_number", u.UnitNumber)
		required(out, r, "unit_type", u.UnitType)
		requiredRef(out, r, "building_id", u.OriginalBuildingID)
	})

	out.Scan(ds.Records[models.EntityKindPerson], func(r models.StagingRecord) {
		p := r.(*models.StagingPerson)
		required(out, r, "first_name", p.FirstName)
		required(out, r, "last_name", p.LastName)
		if p.NationalID == "" && p.DateOfBirth == nil {
			out.Warn(r, "weak_identity", "national_id", "person has neither national_id nor date_of_birth and cannot be matched reliably")
		}
	})

	out.Scan(ds.Records[models.EntityKindHousehold], func(r models.StagingRecord) {
		h := r.(*models.StagingHousehold)
		requiredRef(out, r, "property_unit_id", h.OriginalPropertyUnitID)
	})

	out.Scan(ds.Records[models.EntityKindPersonPropertyRelation], func(r models.StagingRecord) {
		rel := r.(*models.StagingPersonPropertyRelation)
		required(out, r, "relation_type", rel.RelationType)
		requiredRef(out, r, "person_id", rel.OriginalPersonID)
		requiredRef(out, r, "property_unit_id", rel.OriginalPropertyUnitID)
	})

	out.Scan(ds.Records[models.EntityKindEvidence], func(r models.StagingRecord) {
		e := r.(*models.StagingEvidence)
		required(out, r, "evidence_type", e.EvidenceType)
		if e.OriginalPersonID == nil && e.OriginalRelationID == nil {
			out.Warn(r, "unlinked", "person_id", "evidence is linked to neither a person nor a relation")
		}
	})

	out.Scan(ds.Records[models.EntityKindClaim], func(r models.StagingRecord) {
		c := r.(*models.StagingClaim)
		required(out, r, "claim_type", c.ClaimType)
		requiredRef(out, r, "property_unit_id", c.OriginalPropertyUnitID)
	})

	out.Scan(ds.Records[models.EntityKindSurvey], func(r models.StagingRecord) {
		s := r.(*models.StagingSurvey)
		requiredRef(out, r, "building_id", s.OriginalBuildingID)
	})
	return nil
}
