package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
)

// EntityKind names one of the record kinds carried by a package.
type EntityKind string

const (
	EntityKindBuilding               EntityKind = "Building"
	EntityKindPropertyUnit           EntityKind = "PropertyUnit"
	EntityKindPerson                 EntityKind = "Person"
	EntityKindHousehold              EntityKind = "Household"
	EntityKindPersonPropertyRelation EntityKind = "PersonPropertyRelation"
	EntityKindEvidence               EntityKind = "Evidence"
	EntityKindClaim                  EntityKind = "Claim"
	EntityKindSurvey                 EntityKind = "Survey"
)

// CommitOrder lists every kind with parents before children.
var CommitOrder = []EntityKind{
	EntityKindBuilding,
	EntityKindPropertyUnit,
	EntityKindPerson,
	EntityKindHousehold,
	EntityKindPersonPropertyRelation,
	EntityKindEvidence,
	EntityKindClaim,
	EntityKindSurvey,
}

type ValidationStatus string

const (
	ValidationStatusPending ValidationStatus = "Pending"
	ValidationStatusValid   ValidationStatus = "Valid"
	ValidationStatusWarning ValidationStatus = "Warning"
	ValidationStatusInvalid ValidationStatus = "Invalid"
	ValidationStatusSkipped ValidationStatus = "Skipped"
)

// ValidationMessage is one issue raised by a validation level.
type ValidationMessage struct {
	Level     int    `json:"level"`
	Validator string `json:"validator"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
}

// StagingBase is the shape shared by every staging row. Rows are keyed by
// (ImportPackageID, OriginalEntityID); parents are referenced by original ID,
// never by foreign key.
type StagingBase struct {
	ID                   uuid.UUID                           `json:"id" db:"id"`
	ImportPackageID      uuid.UUID                           `json:"import_package_id" db:"import_package_id"`
	OriginalEntityID     uuid.UUID                           `json:"original_entity_id" db:"original_entity_id"`
	ValidationStatus     ValidationStatus                    `json:"validation_status" db:"validation_status"`
	ValidationErrors     database.JSONB[[]ValidationMessage] `json:"validation_errors" db:"validation_errors"`
	ValidationWarnings   database.JSONB[[]ValidationMessage] `json:"validation_warnings" db:"validation_warnings"`
	IsApprovedForCommit  bool                                `json:"is_approved_for_commit" db:"is_approved_for_commit"`
	CommittedEntityID    *uuid.UUID                          `json:"committed_entity_id,omitempty" db:"committed_entity_id"`
	MergedIntoOriginalID *uuid.UUID                          `json:"merged_into_original_id,omitempty" db:"merged_into_original_id"`
	SkipReason           string                              `json:"skip_reason,omitempty" db:"skip_reason"`
	StagedAtUtc          time.Time                           `json:"staged_at_utc" db:"staged_at_utc"`
	UpdatedAtUtc         time.Time                           `json:"updated_at_utc" db:"updated_at_utc"`
}

// NewStagingBase returns a Pending row owned by importPackageID.
func NewStagingBase(importPackageID, originalEntityID uuid.UUID, now time.Time) StagingBase {
	return StagingBase{
		ID:                 uuid.New(),
		ImportPackageID:    importPackageID,
		OriginalEntityID:   originalEntityID,
		ValidationStatus:   ValidationStatusPending,
		ValidationErrors:   database.NewJSONB([]ValidationMessage{}),
		ValidationWarnings: database.NewJSONB([]ValidationMessage{}),
		StagedAtUtc:        now,
		UpdatedAtUtc:       now,
	}
}

func (b *StagingBase) Staging() *StagingBase {
	return b
}

// ApproveForCommit flags the row for the commit step. Only Valid and
// Warning rows can be approved.
func (b *StagingBase) ApproveForCommit() error {
	if !b.IsApprovable() {
		return fmt.Errorf("%w: %s is %s", ErrNotApprovable, b.OriginalEntityID, b.ValidationStatus)
	}
	b.IsApprovedForCommit = true
	return nil
}

// IsApprovable reports whether ApproveForCommit would succeed.
func (b *StagingBase) IsApprovable() bool {
	return b.ValidationStatus == ValidationStatusValid || b.ValidationStatus == ValidationStatusWarning
}

// IsSkipped reports whether the row was taken out of the commit by a merge.
func (b *StagingBase) IsSkipped() bool {
	return b.ValidationStatus == ValidationStatusSkipped
}

// ApplyValidation replaces the row's validation outcome. Skipped rows keep
// their status.
func (b *StagingBase) ApplyValidation(errs, warnings []ValidationMessage, now time.Time) {
	if b.IsSkipped() {
		return
	}
	if errs == nil {
		errs = []ValidationMessage{}
	}
	if warnings == nil {
		warnings = []ValidationMessage{}
	}
	b.ValidationErrors = database.NewJSONB(errs)
	b.ValidationWarnings = database.NewJSONB(warnings)

	switch {
	case len(errs) > 0:
		b.ValidationStatus = ValidationStatusInvalid
		b.IsApprovedForCommit = false
	case len(warnings) > 0:
		b.ValidationStatus = ValidationStatusWarning
	default:
		b.ValidationStatus = ValidationStatusValid
	}
	b.UpdatedAtUtc = now
}

// MarkSkipped removes the row from the commit. committedEntityID binds it to
// an existing production record; mergedInto redirects references to another
// staging row of the same package.
func (b *StagingBase) MarkSkipped(reason string, committedEntityID, mergedInto *uuid.UUID, now time.Time) {
	b.ValidationStatus = ValidationStatusSkipped
	b.IsApprovedForCommit = false
	b.SkipReason = reason
	if committedEntityID != nil {
		id := *committedEntityID
		b.CommittedEntityID = &id
	}
	if mergedInto != nil {
		id := *mergedInto
		b.MergedIntoOriginalID = &id
	}
	b.UpdatedAtUtc = now
}

// ParentRef is a weak reference from a staging row to another row of the
// same package, by original entity ID.
type ParentRef struct {
	Kind       EntityKind
	Field      string
	OriginalID uuid.UUID
	Required   bool
}

// StagingRecord is implemented by the pointer to every staging kind.
type StagingRecord interface {
	Staging() *StagingBase
	Kind() EntityKind
	ParentRefs() []ParentRef
}

func optionalRef(kind EntityKind, field string, id *uuid.UUID) []ParentRef {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return []ParentRef{{Kind: kind, Field: field, OriginalID: *id}}
}

// StatusCounts are per-status row counts for one kind within a package.
type StatusCounts struct {
	Pending  int `json:"pending"`
	Valid    int `json:"valid"`
	Warning  int `json:"warning"`
	Invalid  int `json:"invalid"`
	Skipped  int `json:"skipped"`
	Approved int `json:"approved"`
	Total    int `json:"total"`
}

// Add counts one row.
func (c *StatusCounts) Add(b *StagingBase) {
	c.AddN(b.ValidationStatus, b.IsApprovedForCommit, 1)
}

// AddN counts n rows sharing a status and approval flag.
func (c *StatusCounts) AddN(status ValidationStatus, approved bool, n int) {
	c.Total += n
	switch status {
	case ValidationStatusPending:
		c.Pending += n
	case ValidationStatusValid:
		c.Valid += n
	case ValidationStatusWarning:
		c.Warning += n
	case ValidationStatusInvalid:
		c.Invalid += n
	case ValidationStatusSkipped:
		c.Skipped += n
	}
	if approved {
		c.Approved += n
	}
}

// Merge adds other into c.
func (c *StatusCounts) Merge(other StatusCounts) {
	c.Pending += other.Pending
	c.Valid += other.Valid
	c.Warning += other.Warning
	c.Invalid += other.Invalid
	c.Skipped += other.Skipped
	c.Approved += other.Approved
	c.Total += other.Total
}
