package importing

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/locks"
	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// DetectDuplicates runs duplicate detection over the staged rows. Conflicts
// left open by an earlier run are ignored first so every pair is judged
// against the current rows.
func (s *Service) DetectDuplicates(ctx context.Context, id uuid.UUID, actorID string) (*models.DuplicateDetectionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.DetectDuplicates")
	defer span.End()

	var result *models.DuplicateDetectionResult
	err := s.withPackageLock(ctx, id, func() error {
		pkg, err := s.Packages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch pkg.Status {
		case models.PackageStatusStaging, models.PackageStatusReviewingConflicts, models.PackageStatusReadyToCommit:
		default:
			return httperror.NewHTTPErrorf(http.StatusConflict, "duplicates cannot be detected while package %s is %s", pkg.PackageNumber, pkg.Status)
		}

		ignored, err := s.Conflicts.IgnorePendingByPackage(ctx, id, "superseded by a new detection run", actorID, s.now())
		if err != nil {
			return err
		}

		result, err = s.Detector.Detect(ctx, id, actorID)
		if err != nil {
			return s.fail(ctx, id, "detect", err, actorID)
		}

		from := pkg.Status
		if err := pkg.SetConflictResults(result.TotalPersonConflicts(), result.TotalPropertyConflicts(), actorID, s.now()); err != nil {
			return s.fail(ctx, id, "detect", stateError(err), actorID)
		}
		if err := s.save(ctx, pkg, from, "", actorID); err != nil {
			return err
		}

		s.logger.WithContext(ctx).WithFields(map[string]any{
			"import_package_id":  id,
			"person_conflicts":   result.TotalPersonConflicts(),
			"property_conflicts": result.TotalPropertyConflicts(),
			"superseded":         ignored,
		}).Info("Detected duplicates")
		if err := s.Events.EmitConflictsDetected(ctx, pkg, result, actorID); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Conflicts detected event not delivered")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveRequest is an operator decision on one conflict.
type ResolveRequest struct {
	ConflictID uuid.UUID
	Action     models.ResolutionAction
	// MasterID is the surviving side of a Merge. It must be one of the pair.
	MasterID *uuid.UUID
	Reason   string
	ActorID  string
}

type ResolveResult struct {
	Conflict *models.ConflictResolution `json:"conflict"`
	Merge    *models.MergeResult        `json:"merge,omitempty"`
	Package  *models.ImportPackage      `json:"package,omitempty"`
}

// ResolveConflict applies a Merge, KeepSeparate or Escalate decision. The
// attempt is recorded on the conflict's history even when the merge fails.
// A merge and the conflict update commit together; when the last pending
// conflict of the package closes, the package becomes ReadyToCommit.
func (s *Service) ResolveConflict(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.ResolveConflict")
	defer span.End()

	if !req.Action.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown resolution action %q", req.Action)
	}

	conflict, err := s.Conflicts.GetByID(ctx, req.ConflictID)
	if err != nil {
		return nil, err
	}

	var result *ResolveResult
	err = s.withConflictLocks(ctx, conflict, func() error {
		// reload under the lock
		conflict, err := s.Conflicts.GetByID(ctx, req.ConflictID)
		if err != nil {
			return err
		}
		if !conflict.IsPending() {
			return httperror.NewHTTPErrorf(http.StatusConflict, "conflict %s is already %s", conflict.ConflictNumber, conflict.Status)
		}

		var discarded uuid.UUID
		if req.Action == models.ResolutionActionMerge {
			if req.MasterID == nil || !conflict.Involves(*req.MasterID) {
				return httperror.NewHTTPErrorf(http.StatusBadRequest, "master id must be one of the conflicting records of %s", conflict.ConflictNumber)
			}
			discarded = conflict.Other(*req.MasterID)
		}

		pkg, err := s.reviewablePackage(ctx, conflict)
		if err != nil {
			return err
		}

		conflict.RecordReviewAttempt(req.ActorID, req.Action, req.Reason, s.now())
		if err := s.Conflicts.Update(ctx, conflict); err != nil {
			return err
		}

		result = &ResolveResult{Conflict: conflict, Package: pkg}
		if req.Action == models.ResolutionActionEscalate {
			if err := conflict.Escalate(req.Reason, req.ActorID, s.now()); err != nil {
				return stateError(err)
			}
			return s.Conflicts.Update(ctx, conflict)
		}

		var from models.PackageStatus
		if pkg != nil {
			from = pkg.Status
		}
		err = s.Transactor.RunInTx(ctx, func(ctx context.Context) error {
			var merged, dropped *uuid.UUID
			mapping := ""
			if req.Action == models.ResolutionActionMerge {
				res := s.Merger.Merge(ctx, merging.Request{
					EntityType:      conflict.EntityType,
					MasterID:        *req.MasterID,
					DiscardedID:     discarded,
					ImportPackageID: conflict.ImportPackageID,
					ActorID:         req.ActorID,
				})
				result.Merge = res
				if !res.Success {
					return httperror.NewHTTPErrorf(http.StatusConflict, "merge of %s failed: %s", conflict.ConflictNumber, res.ErrorMessage)
				}
				survivor := res.SurvivingRecordID
				merged, dropped, mapping = &survivor, &discarded, res.MergeMappingJSON
			}

			if err := conflict.Resolve(req.Action, merged, dropped, mapping, req.Reason, req.ActorID, s.now()); err != nil {
				return stateError(err)
			}
			if err := s.Conflicts.Update(ctx, conflict); err != nil {
				return err
			}
			return s.closeReviewIfDone(ctx, pkg, req.ActorID)
		})
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"conflict_id": conflict.ID,
				"action":      req.Action,
			}).Error("Failed to resolve conflict")
			return err
		}

		s.conflictClosed(ctx, pkg, from, conflict, req.ActorID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IgnoreConflict dismisses a conflict without a decision.
func (s *Service) IgnoreConflict(ctx context.Context, id uuid.UUID, reason, actorID string) (*models.ConflictResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.IgnoreConflict")
	defer span.End()

	conflict, err := s.Conflicts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.withConflictLocks(ctx, conflict, func() error {
		conflict, err = s.Conflicts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		pkg, err := s.reviewablePackage(ctx, conflict)
		if err != nil {
			return err
		}
		var from models.PackageStatus
		if pkg != nil {
			from = pkg.Status
		}

		err = s.Transactor.RunInTx(ctx, func(ctx context.Context) error {
			if err := conflict.Ignore(reason, actorID, s.now()); err != nil {
				return stateError(err)
			}
			if err := s.Conflicts.Update(ctx, conflict); err != nil {
				return err
			}
			return s.closeReviewIfDone(ctx, pkg, actorID)
		})
		if err != nil {
			return err
		}
		s.conflictClosed(ctx, pkg, from, conflict, actorID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

// withConflictLocks holds the owning package (when there is one) and then
// the conflict itself.
func (s *Service) withConflictLocks(ctx context.Context, conflict *models.ConflictResolution, fn func() error) error {
	inner := func() error {
		return locks.WithLock(ctx, s.Locker, locks.ConflictKey(conflict.ID.String()), s.config.LockTTL, fn)
	}
	if conflict.ImportPackageID == nil {
		return inner()
	}
	return s.withPackageLock(ctx, *conflict.ImportPackageID, inner)
}

// reviewablePackage loads the conflict's package and checks that it is
// still under review. Conflicts between production records have no package.
func (s *Service) reviewablePackage(ctx context.Context, conflict *models.ConflictResolution) (*models.ImportPackage, error) {
	if conflict.ImportPackageID == nil {
		return nil, nil
	}
	pkg, err := s.Packages.GetByID(ctx, *conflict.ImportPackageID)
	if err != nil {
		return nil, err
	}
	switch pkg.Status {
	case models.PackageStatusStaging, models.PackageStatusReviewingConflicts, models.PackageStatusReadyToCommit:
		return pkg, nil
	}
	return nil, httperror.NewHTTPErrorf(http.StatusConflict, "conflicts of package %s cannot be changed while it is %s", pkg.PackageNumber, pkg.Status)
}

// closeReviewIfDone moves the package to ReadyToCommit once nothing is
// pending review.
func (s *Service) closeReviewIfDone(ctx context.Context, pkg *models.ImportPackage, actorID string) error {
	if pkg == nil || pkg.Status != models.PackageStatusReviewingConflicts {
		return nil
	}
	pending, err := s.Conflicts.CountPendingByPackage(ctx, pkg.ID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}
	if err := pkg.MarkConflictsResolved(actorID, s.now()); err != nil {
		return stateError(err)
	}
	return s.Packages.Update(ctx, pkg)
}

func (s *Service) conflictClosed(ctx context.Context, pkg *models.ImportPackage, from models.PackageStatus, conflict *models.ConflictResolution, actorID string) {
	if pkg == nil {
		return
	}
	remaining, err := s.Conflicts.CountPendingByPackage(ctx, pkg.ID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to count pending conflicts")
	}
	if pkg.Status != from {
		s.transitioned(ctx, pkg, from, "all conflicts resolved", actorID)
	}
	if err := s.Events.EmitConflictResolved(ctx, pkg, conflict, remaining, actorID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Conflict resolved event not delivered")
	}
}

// GetConflict returns a conflict with both sides loaded from staging or
// production.
func (s *Service) GetConflict(ctx context.Context, id uuid.UUID) (*models.ConflictDetailDto, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.GetConflict")
	defer span.End()

	conflict, err := s.Conflicts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	first, err := s.conflictSide(ctx, conflict, conflict.FirstEntityID)
	if err != nil {
		return nil, err
	}
	second, err := s.conflictSide(ctx, conflict, conflict.SecondEntityID)
	if err != nil {
		return nil, err
	}
	return &models.ConflictDetailDto{Conflict: conflict, First: first, Second: second}, nil
}

func (s *Service) conflictSide(ctx context.Context, conflict *models.ConflictResolution, id uuid.UUID) (models.ConflictSide, error) {
	side := models.ConflictSide{EntityID: id}
	if conflict.ImportPackageID != nil {
		store, err := s.Staging.ForKind(conflict.EntityType)
		if err != nil {
			return side, err
		}
		row, ok, err := store.Find(ctx, *conflict.ImportPackageID, id)
		if err != nil {
			return side, err
		}
		if ok {
			side.InStaging, side.Found, side.Record = true, true, row
			return side, nil
		}
	}
	record, ok, err := s.Production.Get(ctx, conflict.EntityType, id)
	if err != nil {
		return side, err
	}
	if ok {
		side.Found, side.Record = true, record
	}
	return side, nil
}

// ListConflicts lists a package's conflicts. The type filter matches by
// family, so PersonDuplicate includes PersonDuplicate_WithinBatch.
func (s *Service) ListConflicts(ctx context.Context, importPackageID uuid.UUID, filter models.ConflictFilter) ([]*models.ConflictResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.ListConflicts")
	defer span.End()

	if _, err := s.Packages.GetByID(ctx, importPackageID); err != nil {
		return nil, err
	}
	return s.Conflicts.ListByPackage(ctx, importPackageID, filter)
}
