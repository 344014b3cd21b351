package models

import "github.com/google/uuid"

type StagingBuilding struct {
	StagingBase
	BuildingFields
}

func (s *StagingBuilding) Kind() EntityKind       { return EntityKindBuilding }
func (s *StagingBuilding) ParentRefs() []ParentRef { return nil }
func (s *StagingBuilding) MergeFields() any        { return &s.BuildingFields }

type StagingPropertyUnit struct {
	StagingBase
	PropertyUnitFields
	OriginalBuildingID uuid.UUID `json:"original_building_id" db:"original_building_id"`
}

func (s *StagingPropertyUnit) Kind() EntityKind { return EntityKindPropertyUnit }
func (s *StagingPropertyUnit) MergeFields() any { return &s.PropertyUnitFields }
func (s *StagingPropertyUnit) ParentRefs() []ParentRef {
	return []ParentRef{{Kind: EntityKindBuilding, Field: "original_building_id", OriginalID: s.OriginalBuildingID, Required: true}}
}

type StagingPerson struct {
	StagingBase
	PersonFields
}

func (s *StagingPerson) Kind() EntityKind        { return EntityKindPerson }
func (s *StagingPerson) ParentRefs() []ParentRef { return nil }
func (s *StagingPerson) MergeFields() any        { return &s.PersonFields }

type StagingHousehold struct {
	StagingBase
	HouseholdFields
	OriginalPropertyUnitID uuid.UUID  `json:"original_property_unit_id" db:"original_property_unit_id"`
	OriginalHeadPersonID   *uuid.UUID `json:"original_head_person_id,omitempty" db:"original_head_person_id"`
}

func (s *StagingHousehold) Kind() EntityKind { return EntityKindHousehold }
func (s *StagingHousehold) ParentRefs() []ParentRef {
	refs := []ParentRef{{Kind: EntityKindPropertyUnit, Field: "original_property_unit_id", OriginalID: s.OriginalPropertyUnitID, Required: true}}
	return append(refs, optionalRef(EntityKindPerson, "original_head_person_id", s.OriginalHeadPersonID)...)
}

type StagingPersonPropertyRelation struct {
	StagingBase
	RelationFields
	OriginalPersonID       uuid.UUID `json:"original_person_id" db:"original_person_id"`
	OriginalPropertyUnitID uuid.UUID `json:"original_property_unit_id" db:"original_property_unit_id"`
}

func (s *StagingPersonPropertyRelation) Kind() EntityKind { return EntityKindPersonPropertyRelation }
func (s *StagingPersonPropertyRelation) ParentRefs() []ParentRef {
	return []ParentRef{
		{Kind: EntityKindPerson, Field: "original_person_id", OriginalID: s.OriginalPersonID, Required: true},
		{Kind: EntityKindPropertyUnit, Field: "original_property_unit_id", OriginalID: s.OriginalPropertyUnitID, Required: true},
	}
}

type StagingEvidence struct {
	StagingBase
	EvidenceFields
	OriginalPersonID   *uuid.UUID `json:"original_person_id,omitempty" db:"original_person_id"`
	OriginalRelationID *uuid.UUID `json:"original_relation_id,omitempty" db:"original_relation_id"`
}

func (s *StagingEvidence) Kind() EntityKind { return EntityKindEvidence }
func (s *StagingEvidence) ParentRefs() []ParentRef {
	refs := optionalRef(EntityKindPerson, "original_person_id", s.OriginalPersonID)
	return append(refs, optionalRef(EntityKindPersonPropertyRelation, "original_relation_id", s.OriginalRelationID)...)
}

type StagingClaim struct {
	StagingBase
	ClaimFields
	OriginalPropertyUnitID    uuid.UUID  `json:"original_property_unit_id" db:"original_property_unit_id"`
	OriginalPrimaryClaimantID *uuid.UUID `json:"original_primary_claimant_id,omitempty" db:"original_primary_claimant_id"`
}

func (s *StagingClaim) Kind() EntityKind { return EntityKindClaim }
func (s *StagingClaim) ParentRefs() []ParentRef {
	refs := []ParentRef{{Kind: EntityKindPropertyUnit, Field: "original_property_unit_id", OriginalID: s.OriginalPropertyUnitID, Required: true}}
	return append(refs, optionalRef(EntityKindPerson, "original_primary_claimant_id", s.OriginalPrimaryClaimantID)...)
}

type StagingSurvey struct {
	StagingBase
	SurveyFields
	OriginalBuildingID     uuid.UUID  `json:"original_building_id" db:"original_building_id"`
	OriginalPropertyUnitID *uuid.UUID `json:"original_property_unit_id,omitempty" db:"original_property_unit_id"`
}

func (s *StagingSurvey) Kind() EntityKind { return EntityKindSurvey }
func (s *StagingSurvey) ParentRefs() []ParentRef {
	refs := []ParentRef{{Kind: EntityKindBuilding, Field: "original_building_id", OriginalID: s.OriginalBuildingID, Required: true}}
	return append(refs, optionalRef(EntityKindPropertyUnit, "original_property_unit_id", s.OriginalPropertyUnitID)...)
}

// StagingTable is the staging table name for a kind.
func StagingTable(kind EntityKind) string {
	return "staging_" + ProductionTable(kind)
}
