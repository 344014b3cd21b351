package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
)

// ConflictType classifies a duplicate pair. Within-batch variants share the
// cross-batch name as a prefix, so filtering by the family matches both.
type ConflictType string

const (
	ConflictTypePersonDuplicate              ConflictType = "PersonDuplicate"
	ConflictTypePersonDuplicateWithinBatch   ConflictType = "PersonDuplicate_WithinBatch"
	ConflictTypePropertyDuplicate            ConflictType = "PropertyDuplicate"
	ConflictTypePropertyDuplicateWithinBatch ConflictType = "PropertyDuplicate_WithinBatch"
)

const withinBatchSuffix = "_WithinBatch"

// Matches reports whether t belongs to filter. An empty filter matches all.
func (t ConflictType) Matches(filter ConflictType) bool {
	return filter == "" || strings.HasPrefix(string(t), string(filter))
}

// IsWithinBatch reports whether both sides of the pair are staging rows.
func (t ConflictType) IsWithinBatch() bool {
	return strings.HasSuffix(string(t), withinBatchSuffix)
}

// Family strips the within-batch qualifier.
func (t ConflictType) Family() ConflictType {
	return ConflictType(strings.TrimSuffix(string(t), withinBatchSuffix))
}

// WithinBatch returns the within-batch variant of t.
func (t ConflictType) WithinBatch() ConflictType {
	if t.IsWithinBatch() {
		return t
	}
	return t + withinBatchSuffix
}

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "Low"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceHigh   ConfidenceLevel = "High"
)

// ConfidenceFromScore bands a similarity score.
func ConfidenceFromScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.95:
		return ConfidenceHigh
	case score >= 0.85:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

type ConflictStatus string

const (
	ConflictStatusPendingReview ConflictStatus = "PendingReview"
	ConflictStatusResolved      ConflictStatus = "Resolved"
	ConflictStatusIgnored       ConflictStatus = "Ignored"
)

type ResolutionAction string

const (
	ResolutionActionMerge        ResolutionAction = "Merge"
	ResolutionActionKeepSeparate ResolutionAction = "KeepSeparate"
	ResolutionActionEscalate     ResolutionAction = "Escalate"
)

func (a ResolutionAction) IsValid() bool {
	switch a {
	case ResolutionActionMerge, ResolutionActionKeepSeparate, ResolutionActionEscalate:
		return true
	}
	return false
}

// ConflictResolution is one detected duplicate pair awaiting an operator
// decision. Entity IDs are staging original IDs when ImportPackageID is set
// and the row exists in staging, production IDs otherwise.
type ConflictResolution struct {
	ID              uuid.UUID                `json:"id" db:"id"`
	ConflictNumber  string                   `json:"conflict_number" db:"conflict_number"`
	ConflictType    ConflictType             `json:"conflict_type" db:"conflict_type"`
	EntityType      EntityKind               `json:"entity_type" db:"entity_type"`
	ImportPackageID *uuid.UUID               `json:"import_package_id,omitempty" db:"import_package_id"`
	FirstEntityID   uuid.UUID                `json:"first_entity_id" db:"first_entity_id"`
	SecondEntityID  uuid.UUID                `json:"second_entity_id" db:"second_entity_id"`
	SimilarityScore float64                  `json:"similarity_score" db:"similarity_score"`
	ConfidenceLevel ConfidenceLevel          `json:"confidence_level" db:"confidence_level"`
	MatchReasons    database.JSONB[[]string] `json:"match_reasons" db:"match_reasons"`
	Status          ConflictStatus           `json:"status" db:"status"`

	ResolutionAction *ResolutionAction `json:"resolution_action,omitempty" db:"resolution_action"`
	ResolutionReason string            `json:"resolution_reason,omitempty" db:"resolution_reason"`
	ReviewedBy       string            `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAtUtc    *time.Time        `json:"reviewed_at_utc,omitempty" db:"reviewed_at_utc"`
	ReviewHistory    string            `json:"review_history" db:"review_history"`

	IsEscalated      bool       `json:"is_escalated" db:"is_escalated"`
	EscalatedBy      string     `json:"escalated_by,omitempty" db:"escalated_by"`
	EscalatedAtUtc   *time.Time `json:"escalated_at_utc,omitempty" db:"escalated_at_utc"`
	EscalationReason string     `json:"escalation_reason,omitempty" db:"escalation_reason"`

	MergedEntityID    *uuid.UUID `json:"merged_entity_id,omitempty" db:"merged_entity_id"`
	DiscardedEntityID *uuid.UUID `json:"discarded_entity_id,omitempty" db:"discarded_entity_id"`
	MergeMappingJSON  string     `json:"merge_mapping_json,omitempty" db:"merge_mapping_json"`

	DetectedBy    string    `json:"detected_by" db:"detected_by"`
	DetectedAtUtc time.Time `json:"detected_at_utc" db:"detected_at_utc"`
	UpdatedAtUtc  time.Time `json:"updated_at_utc" db:"updated_at_utc"`
	RowVersion    int       `json:"row_version" db:"row_version"`
}

// NewConflict creates a PendingReview conflict.
func NewConflict(conflictType ConflictType, entityType EntityKind, importPackageID *uuid.UUID, first, second uuid.UUID, score float64, reasons []string, actorID string, now time.Time) *ConflictResolution {
	if reasons == nil {
		reasons = []string{}
	}
	return &ConflictResolution{
		ID:              uuid.New(),
		ConflictType:    conflictType,
		EntityType:      entityType,
		ImportPackageID: importPackageID,
		FirstEntityID:   first,
		SecondEntityID:  second,
		SimilarityScore: score,
		ConfidenceLevel: ConfidenceFromScore(score),
		MatchReasons:    database.NewJSONB(reasons),
		Status:          ConflictStatusPendingReview,
		DetectedBy:      actorID,
		DetectedAtUtc:   now,
		UpdatedAtUtc:    now,
		RowVersion:      1,
	}
}

func (c *ConflictResolution) IsPending() bool {
	return c.Status == ConflictStatusPendingReview
}

// Involves reports whether id is one of the pair.
func (c *ConflictResolution) Involves(id uuid.UUID) bool {
	return c.FirstEntityID == id || c.SecondEntityID == id
}

// Other returns the side of the pair that is not id.
func (c *ConflictResolution) Other(id uuid.UUID) uuid.UUID {
	if c.FirstEntityID == id {
		return c.SecondEntityID
	}
	return c.FirstEntityID
}

// SamePair reports whether the conflict covers a and b in either order.
func (c *ConflictResolution) SamePair(a, b uuid.UUID) bool {
	return (c.FirstEntityID == a && c.SecondEntityID == b) || (c.FirstEntityID == b && c.SecondEntityID == a)
}

// RecordReviewAttempt appends to the review history. Every attempt is
// recorded, including ones that later fail.
func (c *ConflictResolution) RecordReviewAttempt(actorID string, action ResolutionAction, note string, now time.Time) {
	line := fmt.Sprintf("%s | %s | %s", now.UTC().Format(time.RFC3339), actorID, action)
	if note != "" {
		line += " | " + note
	}
	if c.ReviewHistory != "" {
		c.ReviewHistory += "\n"
	}
	c.ReviewHistory += line
	c.UpdatedAtUtc = now
}

func (c *ConflictResolution) requirePending() error {
	if !c.IsPending() {
		return fmt.Errorf("%w: conflict %s is %s", ErrConflictNotPending, c.ConflictNumber, c.Status)
	}
	return nil
}

// Resolve closes the conflict with a Merge or KeepSeparate decision.
func (c *ConflictResolution) Resolve(action ResolutionAction, mergedID, discardedID *uuid.UUID, mergeMappingJSON, reason, actorID string, now time.Time) error {
	if err := c.requirePending(); err != nil {
		return err
	}
	if action != ResolutionActionMerge && action != ResolutionActionKeepSeparate {
		return fmt.Errorf("conflict cannot be resolved with action %q", action)
	}
	c.Status = ConflictStatusResolved
	c.ResolutionAction = &action
	c.ResolutionReason = reason
	c.MergedEntityID = mergedID
	c.DiscardedEntityID = discardedID
	c.MergeMappingJSON = mergeMappingJSON
	c.ReviewedBy = actorID
	c.ReviewedAtUtc = &now
	c.UpdatedAtUtc = now
	return nil
}

// Escalate flags the conflict for a senior reviewer. It stays pending.
func (c *ConflictResolution) Escalate(reason, actorID string, now time.Time) error {
	if err := c.requirePending(); err != nil {
		return err
	}
	action := ResolutionActionEscalate
	c.ResolutionAction = &action
	c.IsEscalated = true
	c.EscalatedBy = actorID
	c.EscalatedAtUtc = &now
	c.EscalationReason = reason
	c.UpdatedAtUtc = now
	return nil
}

// Ignore dismisses the conflict without a decision.
func (c *ConflictResolution) Ignore(reason, actorID string, now time.Time) error {
	if err := c.requirePending(); err != nil {
		return err
	}
	c.Status = ConflictStatusIgnored
	c.ResolutionReason = reason
	c.ReviewedBy = actorID
	c.ReviewedAtUtc = &now
	c.UpdatedAtUtc = now
	return nil
}

// ConflictFilter narrows conflict listings.
type ConflictFilter struct {
	Type   ConflictType
	Status ConflictStatus
}

// Matches reports whether c passes the filter.
func (f ConflictFilter) Matches(c *ConflictResolution) bool {
	if !c.ConflictType.Matches(f.Type) {
		return false
	}
	return f.Status == "" || c.Status == f.Status
}
