package models

import (
	"time"

	"github.com/google/uuid"
)

// LevelSummary aggregates one validation level's outcome.
type LevelSummary struct {
	Level          int           `json:"level"`
	Name           string        `json:"name"`
	RecordsChecked int           `json:"records_checked"`
	ErrorCount     int           `json:"error_count"`
	WarningCount   int           `json:"warning_count"`
	Duration       time.Duration `json:"duration_ns"`
}

// ValidationSummary aggregates one full validation pass.
type ValidationSummary struct {
	Levels        []LevelSummary              `json:"levels"`
	TotalRecords  int                         `json:"total_records"`
	ErrorCount    int                         `json:"error_count"`
	WarningCount  int                         `json:"warning_count"`
	InvalidCount  int                         `json:"invalid_count"`
	WarningRows   int                         `json:"warning_rows"`
	ValidCount    int                         `json:"valid_count"`
	SkippedCount  int                         `json:"skipped_count"`
	ByKind        map[EntityKind]StatusCounts `json:"by_kind"`
	Errors        []string                    `json:"errors"`
	Warnings      []string                    `json:"warnings"`
	TotalDuration time.Duration               `json:"total_duration_ns"`
	CompletedAt   time.Time                   `json:"completed_at"`
}

// Passed reports whether the package may proceed past validation.
func (s *ValidationSummary) Passed() bool {
	return s.ErrorCount == 0
}

// StagingResult reports what one unpack pass produced.
type StagingResult struct {
	ImportPackageID      uuid.UUID          `json:"import_package_id"`
	CountsByKind         map[EntityKind]int `json:"counts_by_kind"`
	TotalRecords         int                `json:"total_records"`
	AttachmentsExtracted int                `json:"attachments_extracted"`
	AttachmentBytes      int64              `json:"attachment_bytes"`
	UnresolvedReferences int                `json:"unresolved_references"`
	RejectedRows         int                `json:"rejected_rows"`
	IgnoredTables        []string           `json:"ignored_tables,omitempty"`
	Warnings             []string           `json:"warnings,omitempty"`
	Duration             time.Duration      `json:"duration_ns"`
}

// CleanupResult reports what a staging purge removed.
type CleanupResult struct {
	RowsDeleted        map[EntityKind]int `json:"rows_deleted"`
	AttachmentsDeleted int                `json:"attachments_deleted"`
}

// KindSummary is one row of the staging summary.
type KindSummary struct {
	Kind EntityKind `json:"kind"`
	StatusCounts
}

// StagingSummaryDto is the operator view of a package's staging area.
type StagingSummaryDto struct {
	ImportPackageID uuid.UUID          `json:"import_package_id"`
	PackageNumber   string             `json:"package_number"`
	Status          PackageStatus      `json:"status"`
	Kinds           []KindSummary      `json:"kinds"`
	Totals          StatusCounts       `json:"totals"`
	Validation      *ValidationSummary `json:"validation,omitempty"`
}

// DuplicateDetectionResult is the outcome of one detection pass.
type DuplicateDetectionResult struct {
	ImportPackageID          uuid.UUID     `json:"import_package_id"`
	PersonsScanned           int           `json:"persons_scanned"`
	BuildingsScanned         int           `json:"buildings_scanned"`
	PropertyUnitsScanned     int           `json:"property_units_scanned"`
	PersonDuplicates         int           `json:"person_duplicates"`
	PersonWithinBatch        int           `json:"person_within_batch"`
	PropertyDuplicates       int           `json:"property_duplicates"`
	PropertyWithinBatch      int           `json:"property_within_batch"`
	SkippedExistingConflicts int           `json:"skipped_existing_conflicts"`
	ConflictIDs              []uuid.UUID   `json:"conflict_ids"`
	Duration                 time.Duration `json:"duration_ns"`
}

// TotalPersonConflicts counts cross-batch and within-batch person conflicts.
func (r *DuplicateDetectionResult) TotalPersonConflicts() int {
	return r.PersonDuplicates + r.PersonWithinBatch
}

// TotalPropertyConflicts counts cross-batch and within-batch property conflicts.
func (r *DuplicateDetectionResult) TotalPropertyConflicts() int {
	return r.PropertyDuplicates + r.PropertyWithinBatch
}

// ConflictSide is one side of a conflict as shown to the operator.
type ConflictSide struct {
	EntityID  uuid.UUID `json:"entity_id"`
	InStaging bool      `json:"in_staging"`
	Found     bool      `json:"found"`
	Record    any       `json:"record,omitempty"`
}

// ConflictDetailDto is the full state of a conflict for review.
type ConflictDetailDto struct {
	Conflict *ConflictResolution `json:"conflict"`
	First    ConflictSide        `json:"first"`
	Second   ConflictSide        `json:"second"`
}

// ApprovalResult reports how many staging rows were approved.
type ApprovalResult struct {
	ImportPackageID uuid.UUID          `json:"import_package_id"`
	ApprovedByKind  map[EntityKind]int `json:"approved_by_kind"`
	TotalApproved   int                `json:"total_approved"`
	Rejected        []string           `json:"rejected,omitempty"`
}

// CommitResult reports what a commit wrote to production.
type CommitResult struct {
	ImportPackageID uuid.UUID          `json:"import_package_id"`
	CommittedByKind map[EntityKind]int `json:"committed_by_kind"`
	BoundToExisting int                `json:"bound_to_existing"`
	TotalCommitted  int                `json:"total_committed"`
	Duration        time.Duration      `json:"duration_ns"`
}

// ImportPackageFilter narrows package listings.
type ImportPackageFilter struct {
	Status PackageStatus
	Limit  int
	Offset int
}
