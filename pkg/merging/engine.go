// Package merging collapses a duplicate pair into one surviving record. Each
// side of the pair lives either in production or in a package's staging
// tables, which gives four merge cases.
package merging

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Request names the pair to merge. Entity IDs are staging original IDs or
// production IDs; ImportPackageID scopes the staging lookups and may be nil
// for a production-only merge.
type Request struct {
	EntityType      models.EntityKind
	MasterID        uuid.UUID
	DiscardedID     uuid.UUID
	ImportPackageID *uuid.UUID
	ActorID         string
}

// side is where one entity of the pair was found.
type side interface {
	id() uuid.UUID
	fields() any
}

type productionSide struct {
	record models.ProductionRecord
}

func (p productionSide) id() uuid.UUID { return p.record.Production().ID }
func (p productionSide) fields() any   { return p.record.(models.Mergeable).MergeFields() }

type stagingSide struct {
	store  repositories.KindStore
	record models.StagingRecord
}

func (s stagingSide) id() uuid.UUID { return s.record.Staging().OriginalEntityID }
func (s stagingSide) fields() any   { return s.record.(models.Mergeable).MergeFields() }

// Engine executes merges. It never opens a transaction itself; callers run
// it inside theirs so the merge and the conflict update land together.
type Engine struct {
	logger     ectologger.Logger
	staging    *repositories.StagingStores
	production *repositories.ProductionStores
	fields     *FieldMerger
	now        func() time.Time
}

func NewEngine(staging *repositories.StagingStores, production *repositories.ProductionStores, logger ectologger.Logger) *Engine {
	return &Engine{
		logger:     logger,
		staging:    staging,
		production: production,
		fields:     NewFieldMerger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Merge folds the discarded entity into the master. It never returns an
// error: every failure, including a panic, comes back as Success=false.
func (e *Engine) Merge(ctx context.Context, req Request) (result *models.MergeResult) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type":  req.EntityType,
		"master_id":    req.MasterID,
		"discarded_id": req.DiscardedID,
		"actor_id":     req.ActorID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(map[string]any{"panic": fmt.Sprint(r)}).Error("Merge panicked")
			result = models.FailedMerge(req.EntityType, req.MasterID, req.DiscardedID, fmt.Sprintf("merge failed: %v", r))
		}
		metrics.RecordMerge(string(result.Case), string(req.EntityType), result.Success, result.ReferencesUpdated)
	}()

	if _, ok := models.ReferencingKeys[req.EntityType]; !ok {
		return models.FailedMerge(req.EntityType, req.MasterID, req.DiscardedID, fmt.Sprintf("%s records cannot be merged", req.EntityType))
	}
	if req.MasterID == req.DiscardedID {
		return models.FailedMerge(req.EntityType, req.MasterID, req.DiscardedID, "an entity cannot be merged into itself")
	}

	master, err := e.resolve(ctx, req, req.MasterID)
	if err != nil {
		log.WithError(err).Warn("Failed to resolve merge master")
		return models.FailedMerge(req.EntityType, req.MasterID, req.DiscardedID, err.Error())
	}
	discarded, err := e.resolve(ctx, req, req.DiscardedID)
	if err != nil {
		log.WithError(err).Warn("Failed to resolve merged-away entity")
		return models.FailedMerge(req.EntityType, req.MasterID, req.DiscardedID, err.Error())
	}

	now := e.now()
	result = &models.MergeResult{
		EntityType:        req.EntityType,
		MasterEntityID:    req.MasterID,
		DiscardedEntityID: req.DiscardedID,
		MergedAtUtc:       now,
	}

	var mapping models.MergeMapping
	switch m := master.(type) {
	case productionSide:
		switch d := discarded.(type) {
		case productionSide:
			mapping, err = e.mergeProductionProduction(ctx, req, m, d, now, result)
		case stagingSide:
			mapping, err = e.mergeProductionStaging(ctx, req, m, d, now, result)
		default:
			err = fmt.Errorf("unknown side %T", discarded)
		}
	case stagingSide:
		switch d := discarded.(type) {
		case productionSide:
			mapping, err = e.mergeStagingProduction(ctx, req, m, d, now, result)
		case stagingSide:
			mapping, err = e.mergeStagingStaging(ctx, req, m, d, now, result)
		default:
			err = fmt.Errorf("unknown side %T", discarded)
		}
	default:
		err = fmt.Errorf("unknown side %T", master)
	}
	if err != nil {
		log.WithError(err).WithFields(map[string]any{"case": result.Case}).Error("Merge failed")
		failed := models.FailedMerge(req.EntityType, req.MasterID, req.DiscardedID, err.Error())
		failed.Case = result.Case
		return failed
	}

	result.Success = true
	result.MergeMappingJSON = mapping.JSON()

	log.WithFields(map[string]any{
		"case":               result.Case,
		"surviving_id":       result.SurvivingRecordID,
		"references_updated": result.ReferencesUpdated,
	}).Info("Merged duplicate pair")
	return result
}

// resolve finds id in the package's staging rows first and in production
// second.
func (e *Engine) resolve(ctx context.Context, req Request, id uuid.UUID) (side, error) {
	if req.ImportPackageID != nil {
		store, err := e.staging.ForKind(req.EntityType)
		if err != nil {
			return nil, err
		}
		row, ok, err := store.Find(ctx, *req.ImportPackageID, id)
		if err != nil {
			return nil, err
		}
		if ok {
			if row.Staging().IsSkipped() {
				return nil, fmt.Errorf("staged %s %s was already merged", req.EntityType, id)
			}
			return stagingSide{store: store, record: row}, nil
		}
	}

	record, ok, err := e.production.Get(ctx, req.EntityType, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s %s not found in staging or production", req.EntityType, id)
	}
	return productionSide{record: record}, nil
}

func touch(b *models.ProductionBase, actorID string, now time.Time) {
	b.UpdatedAtUtc = now
	b.LastModifiedBy = actorID
}

// repoint moves every production reference from one entity to another.
func (e *Engine) repoint(ctx context.Context, req Request, from, to uuid.UUID, result *models.MergeResult) error {
	result.ReferenceBreakdown = map[string]int{}
	for _, fk := range models.ReferencingKeys[req.EntityType] {
		n, err := e.production.References.Repoint(ctx, fk, from, to, req.ActorID, result.MergedAtUtc)
		if err != nil {
			return fmt.Errorf("repoint %s: %w", fk, err)
		}
		result.ReferenceBreakdown[fk.String()] = n
		result.ReferencesUpdated += n
	}
	return nil
}

func (e *Engine) mergeProductionProduction(ctx context.Context, req Request, master, discarded productionSide, now time.Time, result *models.MergeResult) (models.MergeMapping, error) {
	result.Case = models.MergeCaseProductionProduction
	mapping := models.MergeMapping{Case: result.Case}

	sources, err := e.fields.FillGaps(master.fields(), discarded.fields(), models.FieldSourceMaster, models.FieldSourceDiscarded)
	if err != nil {
		return mapping, err
	}
	mapping.Fields = sources

	if err := e.repoint(ctx, req, discarded.id(), master.id(), result); err != nil {
		return mapping, err
	}

	touch(master.record.Production(), req.ActorID, now)
	if err := e.production.Update(ctx, master.record); err != nil {
		return mapping, err
	}
	discarded.record.Production().MarkAsDeleted(req.ActorID, now)
	if err := e.production.Update(ctx, discarded.record); err != nil {
		return mapping, err
	}

	result.SurvivingRecordID = master.id()
	return mapping, nil
}

func (e *Engine) mergeProductionStaging(ctx context.Context, req Request, master productionSide, discarded stagingSide, now time.Time, result *models.MergeResult) (models.MergeMapping, error) {
	result.Case = models.MergeCaseProductionStaging
	mapping := models.MergeMapping{Case: result.Case}

	sources, err := e.fields.FillGaps(master.fields(), discarded.fields(), models.FieldSourceProduction, models.FieldSourceStaging)
	if err != nil {
		return mapping, err
	}
	mapping.Fields = sources

	touch(master.record.Production(), req.ActorID, now)
	if err := e.production.Update(ctx, master.record); err != nil {
		return mapping, err
	}

	masterID := master.id()
	discarded.record.Staging().MarkSkipped(fmt.Sprintf("merged into production %s %s", req.EntityType, masterID), &masterID, nil, now)
	if err := discarded.store.Save(ctx, []models.StagingRecord{discarded.record}); err != nil {
		return mapping, err
	}

	result.SurvivingRecordID = masterID
	return mapping, nil
}

// mergeStagingProduction keeps the production row and overwrites it with
// the staged values. The production ID survives, so nothing references a
// removed row and no keys move.
func (e *Engine) mergeStagingProduction(ctx context.Context, req Request, master stagingSide, discarded productionSide, now time.Time, result *models.MergeResult) (models.MergeMapping, error) {
	result.Case = models.MergeCaseStagingProduction
	mapping := models.MergeMapping{Case: result.Case}

	sources, err := e.fields.Overwrite(discarded.fields(), master.fields(), models.FieldSourceStaging, models.FieldSourceProduction)
	if err != nil {
		return mapping, err
	}
	mapping.Fields = sources

	survivor := discarded.id()
	touch(discarded.record.Production(), req.ActorID, now)
	if err := e.production.Update(ctx, discarded.record); err != nil {
		return mapping, err
	}

	master.record.Staging().MarkSkipped(fmt.Sprintf("values applied to production %s %s", req.EntityType, survivor), &survivor, nil, now)
	if err := master.store.Save(ctx, []models.StagingRecord{master.record}); err != nil {
		return mapping, err
	}

	result.SurvivingRecordID = survivor
	return mapping, nil
}

func (e *Engine) mergeStagingStaging(ctx context.Context, req Request, master, discarded stagingSide, now time.Time, result *models.MergeResult) (models.MergeMapping, error) {
	result.Case = models.MergeCaseStagingStaging
	mapping := models.MergeMapping{Case: result.Case}

	sources, err := e.fields.FillGaps(master.fields(), discarded.fields(), models.FieldSourceMaster, models.FieldSourceDiscarded)
	if err != nil {
		return mapping, err
	}
	mapping.Fields = sources

	masterID := master.id()
	discarded.record.Staging().MarkSkipped(fmt.Sprintf("merged into staged %s %s", req.EntityType, masterID), nil, &masterID, now)
	mapping.Redirect = &models.MergeRedirect{From: discarded.id(), To: masterID}

	// master keeps its validation status; only its fields change
	master.record.Staging().UpdatedAtUtc = now
	if err := master.store.Save(ctx, []models.StagingRecord{master.record, discarded.record}); err != nil {
		return mapping, err
	}

	result.SurvivingRecordID = masterID
	return mapping, nil
}
