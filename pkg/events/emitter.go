// Package events publishes import lifecycle events
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventPackageStatusChanged = "import.package.status_changed"
	EventConflictsDetected    = "import.conflicts.detected"
	EventConflictResolved     = "import.conflict.resolved"
	EventPackageCommitted     = "import.package.committed"
)

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Event is the envelope written to the import-events topic.
type Event struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	ImportPackageID uuid.UUID       `json:"import_package_id"`
	PackageNumber   string          `json:"package_number,omitempty"`
	ActorID         string          `json:"actor_id,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	SchemaVersion   string          `json:"schema_version"`
	Timestamp       time.Time       `json:"timestamp"`
}

type StatusChangedData struct {
	From   models.PackageStatus `json:"from"`
	To     models.PackageStatus `json:"to"`
	Reason string              `json:"reason,omitempty"`
}

type ConflictsDetectedData struct {
	PersonConflicts   int `json:"person_conflicts"`
	PropertyConflicts int `json:"property_conflicts"`
	Total             int `json:"total"`
}

type ConflictResolvedData struct {
	ConflictID       uuid.UUID               `json:"conflict_id"`
	ConflictNumber   string                  `json:"conflict_number"`
	ConflictType     models.ConflictType     `json:"conflict_type"`
	Action           models.ResolutionAction `json:"action"`
	MergedEntityID   *uuid.UUID              `json:"merged_entity_id,omitempty"`
	RemainingPending int                     `json:"remaining_pending"`
}

type CommittedData struct {
	CommittedRecordCount int                       `json:"committed_record_count"`
	ByEntityType         map[models.EntityKind]int `json:"by_entity_type,omitempty"`
}

// Emitter handles event emission for import packages. A nil publisher makes
// every emit a no-op.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewNoopEmitter returns an emitter for deployments without Kafka.
func NewNoopEmitter(logger ectologger.Logger) *Emitter {
	return NewEmitter(nil, logger)
}

func (e *Emitter) Enabled() bool {
	return e != nil && e.publisher != nil
}

func (e *Emitter) EmitStatusChanged(ctx context.Context, pkg *models.ImportPackage, from models.PackageStatus, reason, actorID string) error {
	return e.emit(ctx, EventPackageStatusChanged, pkg, actorID, StatusChangedData{From: from, To: pkg.Status, Reason: reason})
}

func (e *Emitter) EmitConflictsDetected(ctx context.Context, pkg *models.ImportPackage, result *models.DuplicateDetectionResult, actorID string) error {
	return e.emit(ctx, EventConflictsDetected, pkg, actorID, ConflictsDetectedData{
		PersonConflicts:   result.TotalPersonConflicts(),
		PropertyConflicts: result.TotalPropertyConflicts(),
		Total:             result.TotalPersonConflicts() + result.TotalPropertyConflicts(),
	})
}

func (e *Emitter) EmitConflictResolved(ctx context.Context, pkg *models.ImportPackage, c *models.ConflictResolution, remaining int, actorID string) error {
	data := ConflictResolvedData{
		ConflictID:       c.ID,
		ConflictNumber:   c.ConflictNumber,
		ConflictType:     c.ConflictType,
		MergedEntityID:   c.MergedEntityID,
		RemainingPending: remaining,
	}
	if c.ResolutionAction != nil {
		data.Action = *c.ResolutionAction
	}
	return e.emit(ctx, EventConflictResolved, pkg, actorID, data)
}

func (e *Emitter) EmitCommitted(ctx context.Context, pkg *models.ImportPackage, byType map[models.EntityKind]int, actorID string) error {
	return e.emit(ctx, EventPackageCommitted, pkg, actorID, CommittedData{
		CommittedRecordCount: pkg.CommittedRecordCount,
		ByEntityType:         byType,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType string, pkg *models.ImportPackage, actorID string, data any) error {
	if !e.Enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emit")
	defer span.End()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	event := Event{
		EventID:         uuid.New(),
		EventType:       eventType,
		ImportPackageID: pkg.ID,
		PackageNumber:   pkg.PackageNumber,
		ActorID:         actorID,
		Data:            raw,
		SchemaVersion:   SchemaVersion,
		Timestamp:       e.now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   pkg.ID.String(),
		Value: value,
		Headers: map[string]string{
			"event_type":     eventType,
			"schema_version": SchemaVersion,
		},
	}
	if err := e.publisher.Publish(ctx, msg); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":        eventType,
			"import_package_id": pkg.ID,
		}).Error("Failed to emit event")
		return err
	}
	return nil
}
