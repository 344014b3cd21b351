package models

import "time"

// Business fields shared by a staging kind and its production table. Merges
// copy values between the two through these structs.

type PersonFields struct {
	FirstName    string     `json:"first_name" db:"first_name"`
	FatherName   string     `json:"father_name" db:"father_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	MotherName   string     `json:"mother_name" db:"mother_name"`
	Gender       string     `json:"gender" db:"gender"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	NationalID   string     `json:"national_id" db:"national_id"`
	MobileNumber string     `json:"mobile_number" db:"mobile_number"`
}

// BirthYear returns 0 when the date of birth is unknown.
func (f *PersonFields) BirthYear() int {
	if f.DateOfBirth == nil {
		return 0
	}
	return f.DateOfBirth.Year()
}

// FullName joins the name parts used for fuzzy matching.
func (f *PersonFields) FullName() string {
	name := f.FirstName
	for _, part := range []string{f.FatherName, f.LastName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

type BuildingFields struct {
	BuildingNumber     string   `json:"building_number" db:"building_number"`
	AdministrativeCode string   `json:"administrative_code" db:"administrative_code"`
	BuildingType       string   `json:"building_type" db:"building_type"`
	BuildingStatus     string   `json:"building_status" db:"building_status"`
	NumberOfFloors     int      `json:"number_of_floors" db:"number_of_floors"`
	NumberOfUnits      int      `json:"number_of_units" db:"number_of_units"`
	Latitude           *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude          *float64 `json:"longitude,omitempty" db:"longitude"`
	Address            string   `json:"address" db:"address"`
}

// HasLocation reports whether both coordinates are present.
func (f *BuildingFields) HasLocation() bool {
	return f.Latitude != nil && f.Longitude != nil
}

type PropertyUnitFields struct {
	UnitNumber       string   `json:"unit_number" db:"unit_number"`
	UnitType         string   `json:"unit_type" db:"unit_type"`
	FloorNumber      *int     `json:"floor_number,omitempty" db:"floor_number"`
	AreaSquareMeters *float64 `json:"area_square_meters,omitempty" db:"area_square_meters"`
	Description      string   `json:"description" db:"description"`
}

type HouseholdFields struct {
	HouseholdSize int    `json:"household_size" db:"household_size"`
	Notes         string `json:"notes" db:"notes"`
}

type RelationFields struct {
	RelationType   string     `json:"relation_type" db:"relation_type"`
	OwnershipShare *float64   `json:"ownership_share,omitempty" db:"ownership_share"`
	StartDate      *time.Time `json:"start_date,omitempty" db:"start_date"`
}

type EvidenceFields struct {
	EvidenceType         string     `json:"evidence_type" db:"evidence_type"`
	DocumentNumber       string     `json:"document_number" db:"document_number"`
	IssuedAt             *time.Time `json:"issued_at,omitempty" db:"issued_at"`
	Description          string     `json:"description" db:"description"`
	AttachmentID         string     `json:"attachment_id" db:"attachment_id"`
	AttachmentStorageKey string     `json:"attachment_storage_key" db:"attachment_storage_key"`
	AttachmentSizeBytes  int64      `json:"attachment_size_bytes" db:"attachment_size_bytes"`
	MimeType             string     `json:"mime_type" db:"mime_type"`
}

type ClaimFields struct {
	ClaimType   string     `json:"claim_type" db:"claim_type"`
	Description string     `json:"description" db:"description"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`
}

type SurveyFields struct {
	SurveyType   string     `json:"survey_type" db:"survey_type"`
	SurveyDate   *time.Time `json:"survey_date,omitempty" db:"survey_date"`
	SurveyorName string     `json:"surveyor_name" db:"surveyor_name"`
	Notes        string     `json:"notes" db:"notes"`
}
