package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductionBase is shared by every production entity. Rows are never
// deleted; IsDeleted is respected by every reader.
type ProductionBase struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ImportPackageID *uuid.UUID `json:"import_package_id,omitempty" db:"import_package_id"`
	IsDeleted       bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAtUtc    *time.Time `json:"deleted_at_utc,omitempty" db:"deleted_at_utc"`
	DeletedBy       string     `json:"deleted_by,omitempty" db:"deleted_by"`
	CreatedAtUtc    time.Time  `json:"created_at_utc" db:"created_at_utc"`
	UpdatedAtUtc    time.Time  `json:"updated_at_utc" db:"updated_at_utc"`
	LastModifiedBy  string     `json:"last_modified_by" db:"last_modified_by"`
}

func NewProductionBase(importPackageID *uuid.UUID, actorID string, now time.Time) ProductionBase {
	return ProductionBase{
		ID:              uuid.New(),
		ImportPackageID: importPackageID,
		CreatedAtUtc:    now,
		UpdatedAtUtc:    now,
		LastModifiedBy:  actorID,
	}
}

func (b *ProductionBase) Production() *ProductionBase {
	return b
}

// MarkAsDeleted soft-deletes the record.
func (b *ProductionBase) MarkAsDeleted(actorID string, now time.Time) {
	b.IsDeleted = true
	b.DeletedAtUtc = &now
	b.DeletedBy = actorID
	b.UpdatedAtUtc = now
	b.LastModifiedBy = actorID
}

// ProductionRecord is implemented by the pointer to every production entity.
type ProductionRecord interface {
	Production() *ProductionBase
	Kind() EntityKind
}

// Mergeable exposes the business fields a merge copies between records.
type Mergeable interface {
	MergeFields() any
}

type Building struct {
	ProductionBase
	BuildingFields
}

func (e *Building) Kind() EntityKind { return EntityKindBuilding }
func (e *Building) MergeFields() any { return &e.BuildingFields }

type PropertyUnit struct {
	ProductionBase
	PropertyUnitFields
	BuildingID uuid.UUID `json:"building_id" db:"building_id"`
}

func (e *PropertyUnit) Kind() EntityKind { return EntityKindPropertyUnit }
func (e *PropertyUnit) MergeFields() any { return &e.PropertyUnitFields }

type Person struct {
	ProductionBase
	PersonFields
}

func (e *Person) Kind() EntityKind { return EntityKindPerson }
func (e *Person) MergeFields() any { return &e.PersonFields }

type Household struct {
	ProductionBase
	HouseholdFields
	PropertyUnitID uuid.UUID  `json:"property_unit_id" db:"property_unit_id"`
	HeadPersonID   *uuid.UUID `json:"head_person_id,omitempty" db:"head_person_id"`
}

func (e *Household) Kind() EntityKind { return EntityKindHousehold }

type PersonPropertyRelation struct {
	ProductionBase
	RelationFields
	PersonID       uuid.UUID `json:"person_id" db:"person_id"`
	PropertyUnitID uuid.UUID `json:"property_unit_id" db:"property_unit_id"`
}

func (e *PersonPropertyRelation) Kind() EntityKind { return EntityKindPersonPropertyRelation }

type Evidence struct {
	ProductionBase
	EvidenceFields
	PersonID   *uuid.UUID `json:"person_id,omitempty" db:"person_id"`
	RelationID *uuid.UUID `json:"relation_id,omitempty" db:"relation_id"`
}

func (e *Evidence) Kind() EntityKind { return EntityKindEvidence }

type Claim struct {
	ProductionBase
	ClaimFields
	PropertyUnitID    uuid.UUID  `json:"property_unit_id" db:"property_unit_id"`
	PrimaryClaimantID *uuid.UUID `json:"primary_claimant_id,omitempty" db:"primary_claimant_id"`
}

func (e *Claim) Kind() EntityKind { return EntityKindClaim }

type Survey struct {
	ProductionBase
	SurveyFields
	BuildingID     uuid.UUID  `json:"building_id" db:"building_id"`
	PropertyUnitID *uuid.UUID `json:"property_unit_id,omitempty" db:"property_unit_id"`
}

func (e *Survey) Kind() EntityKind { return EntityKindSurvey }

var productionTables = map[EntityKind]string{
	EntityKindBuilding:               "buildings",
	EntityKindPropertyUnit:           "property_units",
	EntityKindPerson:                 "persons",
	EntityKindHousehold:              "households",
	EntityKindPersonPropertyRelation: "person_property_relations",
	EntityKindEvidence:               "evidences",
	EntityKindClaim:                  "claims",
	EntityKindSurvey:                 "surveys",
}

// ProductionTable is the production table name for a kind.
func ProductionTable(kind EntityKind) string {
	return productionTables[kind]
}

// ForeignKey names a production column that points at another entity.
type ForeignKey struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

func (fk ForeignKey) String() string {
	return fk.Table + "." + fk.Column
}

// ReferencingKeys lists, per mergeable kind, the production columns that
// must be repointed when a record of that kind is merged away.
var ReferencingKeys = map[EntityKind][]ForeignKey{
	EntityKindPerson: {
		{Table: "person_property_relations", Column: "person_id"},
		{Table: "claims", Column: "primary_claimant_id"},
		{Table: "households", Column: "head_person_id"},
		{Table: "evidences", Column: "person_id"},
	},
	EntityKindBuilding: {
		{Table: "property_units", Column: "building_id"},
		{Table: "surveys", Column: "building_id"},
	},
	EntityKindPropertyUnit: {
		{Table: "person_property_relations", Column: "property_unit_id"},
		{Table: "claims", Column: "property_unit_id"},
		{Table: "households", Column: "property_unit_id"},
		{Table: "surveys", Column: "property_unit_id"},
	},
}
