package importing

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

func approvable(status models.PackageStatus) bool {
	switch status {
	case models.PackageStatusStaging, models.PackageStatusReviewingConflicts, models.PackageStatusReadyToCommit:
		return true
	}
	return false
}

// requireNoPending fails while any conflict of the package awaits review.
func (s *Service) requireNoPending(ctx context.Context, pkg *models.ImportPackage) error {
	pending, err := s.Conflicts.CountPendingByPackage(ctx, pkg.ID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "package %s has %d conflicts pending review", pkg.PackageNumber, pending)
	}
	return nil
}

// ApproveAll approves every valid or warning row of the package that is not
// already approved. Invalid and skipped rows are left out.
func (s *Service) ApproveAll(ctx context.Context, id uuid.UUID, actorID string) (*models.ApprovalResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.ApproveAll")
	defer span.End()

	var result *models.ApprovalResult
	err := s.withPackageLock(ctx, id, func() error {
		pkg, err := s.Packages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !approvable(pkg.Status) {
			return httperror.NewHTTPErrorf(http.StatusConflict, "rows cannot be approved while package %s is %s", pkg.PackageNumber, pkg.Status)
		}
		if err := s.requireNoPending(ctx, pkg); err != nil {
			return err
		}

		result = &models.ApprovalResult{ImportPackageID: id, ApprovedByKind: map[models.EntityKind]int{}}
		return s.Transactor.RunInTx(ctx, func(ctx context.Context) error {
			for _, store := range s.Staging.All() {
				rows, err := store.Records(ctx, id)
				if err != nil {
					return err
				}
				var changed []models.StagingRecord
				for _, row := range rows {
					b := row.Staging()
					if b.IsApprovedForCommit || !b.IsApprovable() {
						continue
					}
					if err := b.ApproveForCommit(); err != nil {
						return stateError(err)
					}
					b.UpdatedAtUtc = s.now()
					changed = append(changed, row)
				}
				if len(changed) == 0 {
					continue
				}
				if err := store.Save(ctx, changed); err != nil {
					return err
				}
				result.ApprovedByKind[store.Kind()] = len(changed)
				result.TotalApproved += len(changed)
			}

			pkg.RecordApproval(actorID, s.now())
			if err := s.Packages.Update(ctx, pkg); err != nil {
				return err
			}
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"import_package_id": id,
				"approved":          result.TotalApproved,
			}).Info("Approved staging rows")
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApproveRecords approves the listed staging rows of one kind. Either all of
// them are approved or none is.
func (s *Service) ApproveRecords(ctx context.Context, id uuid.UUID, kind models.EntityKind, rowIDs []uuid.UUID, actorID string) (*models.ApprovalResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.ApproveRecords")
	defer span.End()

	if len(rowIDs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "no records to approve")
	}
	store, err := s.Staging.ForKind(kind)
	if err != nil {
		return nil, err
	}

	var result *models.ApprovalResult
	err = s.withPackageLock(ctx, id, func() error {
		pkg, err := s.Packages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !approvable(pkg.Status) {
			return httperror.NewHTTPErrorf(http.StatusConflict, "rows cannot be approved while package %s is %s", pkg.PackageNumber, pkg.Status)
		}
		if err := s.requireNoPending(ctx, pkg); err != nil {
			return err
		}

		rows, err := store.FindByIDs(ctx, id, rowIDs)
		if err != nil {
			return err
		}
		found := make(map[uuid.UUID]bool, len(rows))
		for _, row := range rows {
			found[row.Staging().ID] = true
		}
		for _, rowID := range rowIDs {
			if !found[rowID] {
				return httperror.NewHTTPErrorf(http.StatusNotFound, "%s staging row %s not found in package %s", kind, rowID, pkg.PackageNumber)
			}
		}

		result = &models.ApprovalResult{ImportPackageID: id, ApprovedByKind: map[models.EntityKind]int{}}
		for _, row := range rows {
			if err := row.Staging().ApproveForCommit(); err != nil {
				result.Rejected = append(result.Rejected, err.Error())
			}
			row.Staging().UpdatedAtUtc = s.now()
		}
		if len(result.Rejected) > 0 {
			return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "%d of %d %s rows cannot be approved", len(result.Rejected), len(rowIDs), kind)
		}

		return s.Transactor.RunInTx(ctx, func(ctx context.Context) error {
			if err := store.Save(ctx, rows); err != nil {
				return err
			}
			pkg.RecordApproval(actorID, s.now())
			if err := s.Packages.Update(ctx, pkg); err != nil {
				return err
			}
			result.ApprovedByKind[kind] = len(rows)
			result.TotalApproved = len(rows)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Commit writes the package's approved rows to production. The package is
// marked Committing first so a crash leaves it visibly interrupted; the
// production writes and the final status share one transaction.
func (s *Service) Commit(ctx context.Context, id uuid.UUID, actorID string) (*models.CommitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.Commit")
	defer span.End()

	var result *models.CommitResult
	err := s.withPackageLock(ctx, id, func() error {
		pkg, err := s.Packages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if pkg.Status != models.PackageStatusReadyToCommit {
			return httperror.NewHTTPErrorf(http.StatusConflict, "package %s is %s, only %s packages can be committed", pkg.PackageNumber, pkg.Status, models.PackageStatusReadyToCommit)
		}
		if err := s.requireNoPending(ctx, pkg); err != nil {
			return err
		}
		approved, err := s.approvedCount(ctx, id)
		if err != nil {
			return err
		}
		if approved == 0 {
			return httperror.NewHTTPErrorf(http.StatusConflict, "package %s has no rows approved for commit", pkg.PackageNumber)
		}

		from := pkg.Status
		if err := pkg.BeginCommit(actorID, s.now()); err != nil {
			return stateError(err)
		}
		if err := s.save(ctx, pkg, from, "", actorID); err != nil {
			return err
		}

		err = s.Transactor.RunInTx(ctx, func(ctx context.Context) error {
			res, err := s.Committer.Commit(ctx, id, actorID)
			if err != nil {
				return err
			}
			if err := pkg.MarkCommitted(res.TotalCommitted, actorID, s.now()); err != nil {
				return stateError(err)
			}
			if err := s.Packages.Update(ctx, pkg); err != nil {
				return err
			}
			result = res
			return nil
		})
		if err != nil {
			return s.fail(ctx, id, "commit", err, actorID)
		}

		s.transitioned(ctx, pkg, models.PackageStatusCommitting, "", actorID)
		if err := s.Events.EmitCommitted(ctx, pkg, result.CommittedByKind, actorID); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Committed event not delivered")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) approvedCount(ctx context.Context, id uuid.UUID) (int, error) {
	var counts models.StatusCounts
	for _, store := range s.Staging.All() {
		c, err := store.StatusCounts(ctx, id)
		if err != nil {
			return 0, err
		}
		counts.Merge(c)
	}
	return counts.Approved, nil
}

// Cancel abandons a package. Its staging rows and extracted attachments are
// purged and any open conflict is ignored. A failed purge does not undo the
// cancellation; it is recorded as staging_purge_error in the diagnostics.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, actorID string) (*models.ImportPackage, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.Cancel")
	defer span.End()

	var pkg *models.ImportPackage
	err := s.withPackageLock(ctx, id, func() error {
		var err error
		pkg, err = s.Packages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		from := pkg.Status
		if err := pkg.Cancel(reason, actorID, s.now()); err != nil {
			return stateError(err)
		}
		if err := s.save(ctx, pkg, from, reason, actorID); err != nil {
			return err
		}

		if _, err := s.Conflicts.IgnorePendingByPackage(ctx, id, "package cancelled", actorID, s.now()); err != nil {
			return err
		}
		cleanup, err := s.Stager.Cleanup(ctx, id)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("import_package_id", id).Error("Failed to purge staging for cancelled package")
			diagnostics := pkg.Diagnostics.GetValue()
			if diagnostics == nil {
				diagnostics = map[string]any{}
			}
			diagnostics["staging_purge_error"] = err.Error()
			pkg.Diagnostics = database.NewJSONB(diagnostics)
			return s.Packages.Update(ctx, pkg)
		}
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"import_package_id":   id,
			"attachments_deleted": cleanup.AttachmentsDeleted,
		}).Info("Cancelled import package")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pkg, nil
}
