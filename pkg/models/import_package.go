package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
)

// PackageStatus is the lifecycle state of an ImportPackage.
type PackageStatus string

const (
	PackageStatusUploading          PackageStatus = "Uploading"
	PackageStatusValidating         PackageStatus = "Validating"
	PackageStatusValidationFailed   PackageStatus = "ValidationFailed"
	PackageStatusStaging            PackageStatus = "Staging"
	PackageStatusReviewingConflicts PackageStatus = "ReviewingConflicts"
	PackageStatusReadyToCommit      PackageStatus = "ReadyToCommit"
	PackageStatusCommitting         PackageStatus = "Committing"
	PackageStatusCommitted          PackageStatus = "Committed"
	PackageStatusFailed             PackageStatus = "Failed"
	PackageStatusQuarantined        PackageStatus = "Quarantined"
	PackageStatusCancelled          PackageStatus = "Cancelled"
)

var packageTransitions = map[PackageStatus][]PackageStatus{
	PackageStatusUploading: {
		PackageStatusValidating, PackageStatusFailed, PackageStatusQuarantined, PackageStatusCancelled,
	},
	PackageStatusValidating: {
		PackageStatusStaging, PackageStatusValidationFailed, PackageStatusFailed, PackageStatusQuarantined, PackageStatusCancelled,
	},
	PackageStatusValidationFailed: {
		PackageStatusValidating, PackageStatusStaging, PackageStatusFailed, PackageStatusCancelled,
	},
	PackageStatusStaging: {
		PackageStatusValidating, PackageStatusReviewingConflicts, PackageStatusReadyToCommit, PackageStatusFailed, PackageStatusCancelled,
	},
	PackageStatusReviewingConflicts: {
		PackageStatusStaging, PackageStatusReadyToCommit, PackageStatusFailed, PackageStatusCancelled,
	},
	PackageStatusReadyToCommit: {
		PackageStatusCommitting, PackageStatusStaging, PackageStatusReviewingConflicts, PackageStatusFailed, PackageStatusCancelled,
	},
	PackageStatusCommitting: {
		PackageStatusCommitted, PackageStatusFailed,
	},
	PackageStatusFailed: {
		PackageStatusValidating, PackageStatusCancelled,
	},
}

// IsTerminal reports whether no further transition is possible.
func (s PackageStatus) IsTerminal() bool {
	return len(packageTransitions[s]) == 0
}

// CanTransitionTo reports whether next is reachable in one step.
func (s PackageStatus) CanTransitionTo(next PackageStatus) bool {
	for _, allowed := range packageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ImportPackage is the aggregate root for one uploaded offline package. It
// owns every staging row created from the package.
type ImportPackage struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	PackageID     uuid.UUID     `json:"package_id" db:"package_id"`
	PackageNumber string        `json:"package_number" db:"package_number"`
	Status        PackageStatus `json:"status" db:"status"`

	FileName        string `json:"file_name" db:"file_name"`
	FileSizeBytes   int64  `json:"file_size_bytes" db:"file_size_bytes"`
	FileChecksum    string `json:"file_checksum" db:"file_checksum"`
	ArchivePath     string `json:"archive_path" db:"archive_path"`
	ContentChecksum string `json:"content_checksum" db:"content_checksum"`

	SchemaVersion      string                            `json:"schema_version" db:"schema_version"`
	DeviceID           string                            `json:"device_id" db:"device_id"`
	ExportedBy         string                            `json:"exported_by" db:"exported_by"`
	ExportedAtUtc      *time.Time                        `json:"exported_at_utc,omitempty" db:"exported_at_utc"`
	VocabularyVersions database.JSONB[map[string]string] `json:"vocabulary_versions" db:"vocabulary_versions"`

	ErrorMessage string                         `json:"error_message,omitempty" db:"error_message"`
	Diagnostics  database.JSONB[map[string]any] `json:"diagnostics,omitempty" db:"diagnostics"`

	ValidationErrorCount   int                                `json:"validation_error_count" db:"validation_error_count"`
	ValidationWarningCount int                                `json:"validation_warning_count" db:"validation_warning_count"`
	ValidationErrors       database.JSONB[[]string]           `json:"validation_errors" db:"validation_errors"`
	ValidationWarnings     database.JSONB[[]string]           `json:"validation_warnings" db:"validation_warnings"`
	ValidationSummary      database.JSONB[*ValidationSummary] `json:"validation_summary,omitempty" db:"validation_summary"`
	StagedRecordCount      int                                `json:"staged_record_count" db:"staged_record_count"`
	AttachmentCount        int                                `json:"attachment_count" db:"attachment_count"`

	DuplicatePersonCount   int `json:"duplicate_person_count" db:"duplicate_person_count"`
	DuplicatePropertyCount int `json:"duplicate_property_count" db:"duplicate_property_count"`
	ConflictCount          int `json:"conflict_count" db:"conflict_count"`
	CommittedRecordCount   int `json:"committed_record_count" db:"committed_record_count"`
	RetryCount             int `json:"retry_count" db:"retry_count"`

	UploadedBy         string     `json:"uploaded_by" db:"uploaded_by"`
	UploadedAtUtc      time.Time  `json:"uploaded_at_utc" db:"uploaded_at_utc"`
	ValidatedAtUtc     *time.Time `json:"validated_at_utc,omitempty" db:"validated_at_utc"`
	DetectedAtUtc      *time.Time `json:"detected_at_utc,omitempty" db:"detected_at_utc"`
	ApprovedBy         string     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAtUtc      *time.Time `json:"approved_at_utc,omitempty" db:"approved_at_utc"`
	CommittedBy        string     `json:"committed_by,omitempty" db:"committed_by"`
	CommittedAtUtc     *time.Time `json:"committed_at_utc,omitempty" db:"committed_at_utc"`
	CancellationReason string     `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	CreatedAtUtc   time.Time `json:"created_at_utc" db:"created_at_utc"`
	UpdatedAtUtc   time.Time `json:"updated_at_utc" db:"updated_at_utc"`
	LastModifiedBy string    `json:"last_modified_by" db:"last_modified_by"`
	RowVersion     int       `json:"row_version" db:"row_version"`
}

// NewImportPackage creates a package in the Uploading state.
func NewImportPackage(packageID uuid.UUID, fileName, actorID string, now time.Time) *ImportPackage {
	return &ImportPackage{
		ID:                 uuid.New(),
		PackageID:          packageID,
		Status:             PackageStatusUploading,
		FileName:           fileName,
		VocabularyVersions: database.NewJSONB(map[string]string{}),
		Diagnostics:        database.NewJSONB(map[string]any{}),
		ValidationErrors:   database.NewJSONB([]string{}),
		ValidationWarnings: database.NewJSONB([]string{}),
		UploadedBy:         actorID,
		UploadedAtUtc:      now,
		CreatedAtUtc:       now,
		UpdatedAtUtc:       now,
		LastModifiedBy:     actorID,
		RowVersion:         1,
	}
}

func (p *ImportPackage) touch(actorID string, now time.Time) {
	p.UpdatedAtUtc = now
	p.LastModifiedBy = actorID
}

// TransitionTo moves the package to next when the transition graph allows it.
func (p *ImportPackage) TransitionTo(next PackageStatus, actorID string, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	p.touch(actorID, now)
	return nil
}

// IsStageable reports whether staging (or a retry of it) may start.
func (p *ImportPackage) IsStageable() bool {
	switch p.Status {
	case PackageStatusUploading, PackageStatusFailed, PackageStatusValidationFailed, PackageStatusStaging:
		return true
	}
	return false
}

// BeginValidation moves the package into Validating. Entering from a failure
// state counts as a retry.
func (p *ImportPackage) BeginValidation(actorID string, now time.Time) error {
	retry := p.Status == PackageStatusFailed || p.Status == PackageStatusValidationFailed
	if err := p.TransitionTo(PackageStatusValidating, actorID, now); err != nil {
		return err
	}
	if retry {
		p.RetryCount++
	}
	p.ErrorMessage = ""
	return nil
}

// ReturnToStaging reopens a package whose conflicts or approvals are under
// review so its rows can be corrected and revalidated.
func (p *ImportPackage) ReturnToStaging(actorID string, now time.Time) error {
	if p.Status == PackageStatusStaging {
		return nil
	}
	return p.TransitionTo(PackageStatusStaging, actorID, now)
}

// AddValidationResults records a validation pass. Any error parks the
// package in ValidationFailed; otherwise it proceeds to Staging.
func (p *ImportPackage) AddValidationResults(errors, warnings []string, errorCount, warningCount int, actorID string, now time.Time) error {
	next := PackageStatusStaging
	if errorCount > 0 {
		next = PackageStatusValidationFailed
	}
	if err := p.TransitionTo(next, actorID, now); err != nil {
		return err
	}
	if errors == nil {
		errors = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	p.ValidationErrors = database.NewJSONB(errors)
	p.ValidationWarnings = database.NewJSONB(warnings)
	p.ValidationErrorCount = errorCount
	p.ValidationWarningCount = warningCount
	p.ValidatedAtUtc = &now
	return nil
}

// SetConflictResults records a duplicate detection pass. Any conflict moves
// the package to ReviewingConflicts; none makes it ReadyToCommit.
func (p *ImportPackage) SetConflictResults(personDuplicates, propertyDuplicates int, actorID string, now time.Time) error {
	total := personDuplicates + propertyDuplicates
	next := PackageStatusReadyToCommit
	if total > 0 {
		next = PackageStatusReviewingConflicts
	}
	if p.Status != next {
		if err := p.TransitionTo(next, actorID, now); err != nil {
			return err
		}
	} else {
		p.touch(actorID, now)
	}
	p.DuplicatePersonCount = personDuplicates
	p.DuplicatePropertyCount = propertyDuplicates
	p.ConflictCount = total
	p.DetectedAtUtc = &now
	return nil
}

// MarkConflictsResolved moves the package to ReadyToCommit once no conflict
// is left pending. Legal only from ReviewingConflicts or Staging.
func (p *ImportPackage) MarkConflictsResolved(actorID string, now time.Time) error {
	if p.Status != PackageStatusReviewingConflicts && p.Status != PackageStatusStaging {
		return fmt.Errorf("%w: conflicts can only be resolved from %s or %s, package is %s",
			ErrInvalidTransition, PackageStatusReviewingConflicts, PackageStatusStaging, p.Status)
	}
	return p.TransitionTo(PackageStatusReadyToCommit, actorID, now)
}

// MarkAsFailed records an unrecoverable error. Staging data is kept so the
// failure can be inspected and the package retried.
func (p *ImportPackage) MarkAsFailed(message string, diagnostics map[string]any, actorID string, now time.Time) error {
	if err := p.TransitionTo(PackageStatusFailed, actorID, now); err != nil {
		return err
	}
	p.ErrorMessage = message
	if diagnostics == nil {
		diagnostics = map[string]any{}
	}
	p.Diagnostics = database.NewJSONB(diagnostics)
	return nil
}

// Quarantine parks a package that failed an integrity check. It can never
// be staged.
func (p *ImportPackage) Quarantine(reason string, diagnostics map[string]any, actorID string, now time.Time) error {
	if err := p.TransitionTo(PackageStatusQuarantined, actorID, now); err != nil {
		return err
	}
	p.ErrorMessage = reason
	if diagnostics == nil {
		diagnostics = map[string]any{}
	}
	p.Diagnostics = database.NewJSONB(diagnostics)
	return nil
}

// RecordApproval stamps who approved rows for commit.
func (p *ImportPackage) RecordApproval(actorID string, now time.Time) {
	p.ApprovedBy = actorID
	p.ApprovedAtUtc = &now
	p.touch(actorID, now)
}

func (p *ImportPackage) BeginCommit(actorID string, now time.Time) error {
	return p.TransitionTo(PackageStatusCommitting, actorID, now)
}

func (p *ImportPackage) MarkCommitted(committedRecords int, actorID string, now time.Time) error {
	if err := p.TransitionTo(PackageStatusCommitted, actorID, now); err != nil {
		return err
	}
	p.CommittedRecordCount = committedRecords
	p.CommittedBy = actorID
	p.CommittedAtUtc = &now
	return nil
}

func (p *ImportPackage) Cancel(reason, actorID string, now time.Time) error {
	if err := p.TransitionTo(PackageStatusCancelled, actorID, now); err != nil {
		return err
	}
	p.CancellationReason = reason
	return nil
}
