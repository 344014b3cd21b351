package packagebuilder

import (
	"time"

	"github.com/google/uuid"
)

// Row helpers carrying valid values for every required column. Callers
// override individual columns on the returned map.

func Building(id uuid.UUID, number, administrativeCode string) map[string]any {
	return map[string]any{
		"id":                  id,
		"building_number":     number,
		"administrative_code": administrativeCode,
		"building_type":       "residential",
		"building_status":     "intact",
		"number_of_floors":    3,
		"number_of_units":     6,
		"latitude":            36.2021,
		"longitude":           37.1343,
		"address":             "Old City",
	}
}

func PropertyUnit(id, buildingID uuid.UUID, number string) map[string]any {
	return map[string]any{
		"id":                 id,
		"building_id":        buildingID,
		"unit_number":        number,
		"unit_type":          "apartment",
		"floor_number":       1,
		"area_square_meters": 95.5,
	}
}

func Person(id uuid.UUID, firstName, lastName, nationalID string, born time.Time) map[string]any {
	return map[string]any{
		"id":            id,
		"first_name":    firstName,
		"father_name":   "",
		"last_name":     lastName,
		"gender":        "male",
		"date_of_birth": born.Format("2006-01-02"),
		"national_id":   nationalID,
		"mobile_number": "0944123456",
	}
}

func Household(id, unitID uuid.UUID, headPersonID *uuid.UUID, size int) map[string]any {
	return map[string]any{
		"id":               id,
		"property_unit_id": unitID,
		"head_person_id":   headPersonID,
		"household_size":   size,
	}
}

func Relation(id, personID, unitID uuid.UUID, relationType string, share float64) map[string]any {
	return map[string]any{
		"id":               id,
		"person_id":        personID,
		"property_unit_id": unitID,
		"relation_type":    relationType,
		"ownership_share":  share,
		"start_date":       "2010-06-01",
	}
}

func Evidence(id uuid.UUID, personID, relationID *uuid.UUID, attachmentID string) map[string]any {
	return map[string]any{
		"id":              id,
		"person_id":       personID,
		"relation_id":     relationID,
		"evidence_type":   "title_deed",
		"document_number": "TD-1",
		"issued_at":       "2011-02-03",
		"attachment_id":   attachmentID,
	}
}

func Claim(id, unitID uuid.UUID, claimantID *uuid.UUID) map[string]any {
	return map[string]any{
		"id":                  id,
		"property_unit_id":    unitID,
		"primary_claimant_id": claimantID,
		"claim_type":          "ownership",
		"submitted_at":        "2024-04-20",
	}
}

func Survey(id, buildingID uuid.UUID, unitID *uuid.UUID) map[string]any {
	return map[string]any{
		"id":               id,
		"building_id":      buildingID,
		"property_unit_id": unitID,
		"survey_type":      "field",
		"survey_date":      "2024-04-18",
		"surveyor_name":    "S. Haddad",
	}
}

// Graph holds the original IDs of a Sample package.
type Graph struct {
	Building, Unit, Person, Household, Relation, Evidence, Claim, Survey uuid.UUID
	AttachmentID                                                         string
}

// Sample returns a builder with one consistent row of every kind.
func Sample(packageID uuid.UUID) (*Builder, Graph) {
	g := Graph{
		Building:     uuid.New(),
		Unit:         uuid.New(),
		Person:       uuid.New(),
		Household:    uuid.New(),
		Relation:     uuid.New(),
		Evidence:     uuid.New(),
		Claim:        uuid.New(),
		Survey:       uuid.New(),
		AttachmentID: "deed-1.pdf",
	}
	born := time.Date(1975, 8, 14, 0, 0, 0, 0, time.UTC)

	b := New(packageID).
		Row("buildings", Building(g.Building, "B-101", "AL-01-03")).
		Row("property_units", PropertyUnit(g.Unit, g.Building, "1A")).
		Row("persons", Person(g.Person, "Ahmad", "Haddad", "01020304050", born)).
		Row("households", Household(g.Household, g.Unit, &g.Person, 4)).
		Row("person_property_relations", Relation(g.Relation, g.Person, g.Unit, "owner", 1.0)).
		Row("evidences", Evidence(g.Evidence, &g.Person, &g.Relation, g.AttachmentID)).
		Row("claims", Claim(g.Claim, g.Unit, &g.Person)).
		Row("surveys", Survey(g.Survey, g.Building, &g.Unit)).
		Attachment(g.AttachmentID, "deed.pdf", "", []byte("%PDF-1.4\n%sample\n"))
	return b, g
}
