package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MergeCase identifies where the two sides of a merge live.
type MergeCase string

const (
	MergeCaseProductionProduction MergeCase = "ProductionToProduction"
	MergeCaseProductionStaging    MergeCase = "ProductionMasterStagingDiscarded"
	MergeCaseStagingProduction    MergeCase = "StagingMasterProductionDiscarded"
	MergeCaseStagingStaging       MergeCase = "StagingToStaging"
)

// FieldSource records which side supplied a field's surviving value.
type FieldSource string

const (
	FieldSourceMaster     FieldSource = "master"
	FieldSourceDiscarded  FieldSource = "discarded"
	FieldSourceStaging    FieldSource = "staging"
	FieldSourceProduction FieldSource = "production"
)

// MergeRedirect maps a discarded staging original ID onto its master so
// commit can repoint rows that referenced it.
type MergeRedirect struct {
	From uuid.UUID `json:"from"`
	To   uuid.UUID `json:"to"`
}

// MergeMapping is the audit record stored as MergeMappingJSON.
type MergeMapping struct {
	Case     MergeCase              `json:"case"`
	Fields   map[string]FieldSource `json:"fields"`
	Redirect *MergeRedirect         `json:"redirect,omitempty"`
}

func (m MergeMapping) JSON() string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MergeResult is the outcome of one merge. Failures are reported through
// Success and ErrorMessage, never as an error value.
type MergeResult struct {
	Success            bool           `json:"success"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	EntityType         EntityKind     `json:"entity_type"`
	Case               MergeCase      `json:"case,omitempty"`
	MasterEntityID     uuid.UUID      `json:"master_entity_id"`
	DiscardedEntityID  uuid.UUID      `json:"discarded_entity_id"`
	SurvivingRecordID  uuid.UUID      `json:"surviving_record_id"`
	MergeMappingJSON   string         `json:"merge_mapping_json,omitempty"`
	ReferencesUpdated  int            `json:"references_updated"`
	ReferenceBreakdown map[string]int `json:"reference_breakdown,omitempty"`
	MergedAtUtc        time.Time      `json:"merged_at_utc"`
}

// FailedMerge builds an unsuccessful result.
func FailedMerge(kind EntityKind, master, discarded uuid.UUID, message string) *MergeResult {
	return &MergeResult{
		EntityType:        kind,
		MasterEntityID:    master,
		DiscardedEntityID: discarded,
		ErrorMessage:      message,
	}
}
