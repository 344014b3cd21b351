package staging

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/packagefile"
)

// rowDecoder converts one package row into typed fields and collects the
// values it had to drop.
type rowDecoder struct {
	row      packagefile.Row
	problems []string
}

func (d *rowDecoder) text(col string) string {
	return strings.TrimSpace(d.row.Text(col))
}

func (d *rowDecoder) problem(format string, args ...any) {
	d.problems = append(d.problems, fmt.Sprintf(format, args...))
}

// ref parses a parent reference. A missing or unparseable value becomes
// uuid.Nil and is left for validation to report.
func (d *rowDecoder) ref(col string) uuid.UUID {
	if d.text(col) == "" {
		return uuid.Nil
	}
	id, err := d.row.UUID(col)
	if err != nil {
		d.problem("%v", err)
		return uuid.Nil
	}
	return id
}

func (d *rowDecoder) optionalRef(col string) *uuid.UUID {
	id, err := d.row.OptionalUUID(col)
	if err != nil {
		d.problem("%v", err)
		return nil
	}
	return id
}

func (d *rowDecoder) time(col string) *time.Time {
	t := d.row.Time(col)
	if t == nil && d.text(col) != "" {
		d.problem("%s is not a date: %q", col, d.text(col))
	}
	return t
}

func (d *rowDecoder) float(col string) *float64 {
	f := d.row.OptionalFloat(col)
	if f == nil && d.text(col) != "" {
		d.problem("%s is not a number: %q", col, d.text(col))
	}
	return f
}

type decodeFunc func(d *rowDecoder, base models.StagingBase) models.StagingRecord

var decoders = map[models.EntityKind]decodeFunc{
	models.EntityKindBuilding:               decodeBuilding,
	models.EntityKindPropertyUnit:           decodePropertyUnit,
	models.EntityKindPerson:                 decodePerson,
	models.EntityKindHousehold:              decodeHousehold,
	models.EntityKindPersonPropertyRelation: decodeRelation,
	models.EntityKindEvidence:               decodeEvidence,
	models.EntityKindClaim:                  decodeClaim,
	models.EntityKindSurvey:                 decodeSurvey,
}

func decodeBuilding(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingBuilding{
		StagingBase: base,
		BuildingFields: models.BuildingFields{
			BuildingNumber:     d.text("building_number"),
			AdministrativeCode: d.text("administrative_code"),
			BuildingType:       d.text("building_type"),
			BuildingStatus:     d.text("building_status"),
			NumberOfFloors:     d.row.Int("number_of_floors"),
			NumberOfUnits:      d.row.Int("number_of_units"),
			Latitude:           d.float("latitude"),
			Longitude:          d.float("longitude"),
			Address:            d.text("address"),
		},
	}
}

func decodePropertyUnit(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingPropertyUnit{
		StagingBase: base,
		PropertyUnitFields: models.PropertyUnitFields{
			UnitNumber:       d.text("unit_number"),
			UnitType:         d.text("unit_type"),
			FloorNumber:      d.row.OptionalInt("floor_number"),
			AreaSquareMeters: d.float("area_square_meters"),
			Description:      d.text("description"),
		},
		OriginalBuildingID: d.ref("building_id"),
	}
}

func decodePerson(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingPerson{
		StagingBase: base,
		PersonFields: models.PersonFields{
			FirstName:    d.text("first_name"),
			FatherName:   d.text("father_name"),
			LastName:     d.text("last_name"),
			MotherName:   d.text("mother_name"),
			Gender:       d.text("gender"),
			DateOfBirth:  d.time("date_of_birth"),
			NationalID:   d.text("national_id"),
			MobileNumber: d.text("mobile_number"),
		},
	}
}

func decodeHousehold(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingHousehold{
		StagingBase: base,
		HouseholdFields: models.HouseholdFields{
			HouseholdSize: d.row.Int("household_size"),
			Notes:         d.text("notes"),
		},
		OriginalPropertyUnitID: d.ref("property_unit_id"),
		OriginalHeadPersonID:   d.optionalRef("head_person_id"),
	}
}

func decodeRelation(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingPersonPropertyRelation{
		StagingBase: base,
		RelationFields: models.RelationFields{
			RelationType:   d.text("relation_type"),
			OwnershipShare: d.float("ownership_share"),
			StartDate:      d.time("start_date"),
		},
		OriginalPersonID:       d.ref("person_id"),
		OriginalPropertyUnitID: d.ref("property_unit_id"),
	}
}

func decodeEvidence(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingEvidence{
		StagingBase: base,
		EvidenceFields: models.EvidenceFields{
			EvidenceType:   d.text("evidence_type"),
			DocumentNumber: d.text("document_number"),
			IssuedAt:       d.time("issued_at"),
			Description:    d.text("description"),
			AttachmentID:   d.text("attachment_id"),
			MimeType:       d.text("mime_type"),
		},
		OriginalPersonID:   d.optionalRef("person_id"),
		OriginalRelationID: d.optionalRef("relation_id"),
	}
}

func decodeClaim(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingClaim{
		StagingBase: base,
		ClaimFields: models.ClaimFields{
			ClaimType:   d.text("claim_type"),
			Description: d.text("description"),
			SubmittedAt: d.time("submitted_at"),
		},
		OriginalPropertyUnitID:    d.ref("property_unit_id"),
		OriginalPrimaryClaimantID: d.optionalRef("primary_claimant_id"),
	}
}

func decodeSurvey(d *rowDecoder, base models.StagingBase) models.StagingRecord {
	return &models.StagingSurvey{
		StagingBase: base,
		SurveyFields: models.SurveyFields{
			SurveyType:   d.text("survey_type"),
			SurveyDate:   d.time("survey_date"),
			SurveyorName: d.text("surveyor_name"),
			Notes:        d.text("notes"),
		},
		OriginalBuildingID:     d.ref("building_id"),
		OriginalPropertyUnitID: d.optionalRef("property_unit_id"),
	}
}
