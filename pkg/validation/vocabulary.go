package validation

import (
	"context"

	"github.com/Ramsey-B/willow/pkg/models"
)

// CodeList answers whether a code belongs to a controlled vocabulary.
type CodeList interface {
	Has(domain string) bool
	IsValid(domain, code string) bool
}

// Vocabulary checks coded fields against the server's code lists. Empty
// codes are left to the structural level.
type Vocabulary struct {
	Codes CodeList
}

func (Vocabulary) Level() int   { return 4 }
func (Vocabulary) Name() string { return "vocabulary" }

func (v Vocabulary) check(out *Findings, r models.StagingRecord, field, domain, code string) {
	if code == "" || !v.Codes.Has(domain) {
		return
	}
	if !v.Codes.IsValid(domain, code) {
		out.Error(r, "unknown_code", field, "%q is not a valid %s", code, domain)
	}
}

func (v Vocabulary) Validate(_ context.Context, ds *Dataset, out *Findings) error {
	out.Scan(ds.Records[models.EntityKindBuilding], func(r models.StagingRecord) {
		b := r.(*models.StagingBuilding)
		v.check(out, r, "building_type", "building_type", b.BuildingType)
		v.check(out, r, "building_status", "building_status", b.BuildingStatus)
	})
	out.Scan(ds.Records[models.EntityKindPropertyUnit], func(r models.StagingRecord) {
		v.check(out, r, "unit_type", "unit_type", r.(*models.StagingPropertyUnit).UnitType)
	})
	out.Scan(ds.Records[models.EntityKindPerson], func(r models.StagingRecord) {
		v.check(out, r, "gender", "gender", r.(*models.StagingPerson).Gender)
	})
	out.Scan(ds.Records[models.EntityKindPersonPropertyRelation], func(r models.StagingRecord) {
		v.check(out, r, "relation_type", "relation_type", r.(*models.StagingPersonPropertyRelation).RelationType)
	})
	out.Scan(ds.Records[models.EntityKindEvidence], func(r models.StagingRecord) {
		v.check(out, r, "evidence_type", "evidence_type", r.(*models.StagingEvidence).EvidenceType)
	})
	out.Scan(ds.Records[models.EntityKindClaim], func(r models.StagingRecord) {
		v.check(out, r, "claim_type", "claim_type", r.(*models.StagingClaim).ClaimType)
	})
	out.Scan(ds.Records[models.EntityKindSurvey], func(r models.StagingRecord) {
		v.check(out, r, "survey_type", "survey_type", r.(*models.StagingSurvey).SurveyType)
	})
	return nil
}
