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

// StageResult reports one staging or revalidation pass.
type StageResult struct {
	Package    *models.ImportPackage     `json:"package"`
	Staging    *models.StagingResult     `json:"staging,omitempty"`
	Validation *models.ValidationSummary `json:"validation"`
}

// StagePackage unpacks the package into staging and validates it. Any
// previous staging of the package is purged first, so a failed or rejected
// package can simply be staged again.
func (s *Service) StagePackage(ctx context.Context, id uuid.UUID, actorID string) (*StageResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.StagePackage")
	defer span.End()

	var result *StageResult
	err := s.withPackageLock(ctx, id, func() error {
		pkg, err := s.Packages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !pkg.IsStageable() {
			return httperror.NewHTTPErrorf(http.StatusConflict, "package %s cannot be staged while %s", pkg.PackageNumber, pkg.Status)
		}

		from := pkg.Status
		if err := pkg.BeginValidation(actorID, s.now()); err != nil {
			return stateError(err)
		}
		if err := s.save(ctx, pkg, from, "", actorID); err != nil {
			return err
		}

		if _, err := s.Stager.Cleanup(ctx, id); err != nil {
			return s.fail(ctx, id, "cleanup", err, actorID)
		}
		staged, err := s.Stager.UnpackAndStage(ctx, id, s.Files.Path(pkg.ArchivePath))
		if err != nil {
			return s.fail(ctx, id, "unpack", err, actorID)
		}
		pkg.StagedRecordCount = staged.TotalRecords
		pkg.AttachmentCount = staged.AttachmentsExtracted

		summary, err := s.validate(ctx, pkg, actorID)
		if err != nil {
			return err
		}
		result = &StageResult{Package: pkg, Staging: staged, Validation: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Revalidate reruns the validation pipeline over rows already in staging,
// typically after corrections. A package under conflict review or ready to
// commit goes back to staging and its open conflicts are dropped, so
// duplicate detection has to run again.
func (s *Service) Revalidate(ctx context.Context, id uuid.UUID, actorID string) (*StageResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.Revalidate")
	defer span.End()

	var result *StageResult
	err := s.withPackageLock(ctx, id, func() error {
		pkg, err := s.Packages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch pkg.Status {
		case models.PackageStatusStaging, models.PackageStatusValidationFailed:
		case models.PackageStatusReviewingConflicts, models.PackageStatusReadyToCommit:
			from := pkg.Status
			if err := pkg.ReturnToStaging(actorID, s.now()); err != nil {
				return stateError(err)
			}
			if _, err := s.Conflicts.IgnorePendingByPackage(ctx, id, "package returned to staging for revalidation", actorID, s.now()); err != nil {
				return err
			}
			if err := s.save(ctx, pkg, from, "revalidation", actorID); err != nil {
				return err
			}
		default:
			return httperror.NewHTTPErrorf(http.StatusConflict, "package %s cannot be revalidated while %s", pkg.PackageNumber, pkg.Status)
		}

		from := pkg.Status
		if err := pkg.BeginValidation(actorID, s.now()); err != nil {
			return stateError(err)
		}
		if err := s.save(ctx, pkg, from, "", actorID); err != nil {
			return err
		}

		summary, err := s.validate(ctx, pkg, actorID)
		if err != nil {
			return err
		}
		result = &StageResult{Package: pkg, Validation: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validate runs the pipeline over a package in Validating and records the
// outcome, moving it to Staging or ValidationFailed.
func (s *Service) validate(ctx context.Context, pkg *models.ImportPackage, actorID string) (*models.ValidationSummary, error) {
	summary, err := s.Pipeline.Run(ctx, pkg.ID)
	if err != nil {
		return nil, s.fail(ctx, pkg.ID, "validate", err, actorID)
	}

	from := pkg.Status
	if err := pkg.AddValidationResults(summary.Errors, summary.Warnings, summary.ErrorCount, summary.WarningCount, actorID, s.now()); err != nil {
		return nil, s.fail(ctx, pkg.ID, "validate", stateError(err), actorID)
	}
	pkg.ValidationSummary = database.NewJSONB(summary)
	if err := s.save(ctx, pkg, from, "", actorID); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"import_package_id": pkg.ID,
		"records":           summary.TotalRecords,
		"errors":            summary.ErrorCount,
		"warnings":          summary.WarningCount,
		"status":            pkg.Status,
	}).Info("Validated import package")
	return summary, nil
}

// GetStagingSummary returns per-kind status counts with the last validation.
func (s *Service) GetStagingSummary(ctx context.Context, id uuid.UUID) (*models.StagingSummaryDto, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.GetStagingSummary")
	defer span.End()

	pkg, err := s.Packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	kinds, totals, err := s.Stager.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.StagingSummaryDto{
		ImportPackageID: pkg.ID,
		PackageNumber:   pkg.PackageNumber,
		Status:          pkg.Status,
		Kinds:           kinds,
		Totals:          totals,
		Validation:      pkg.ValidationSummary.GetValue(),
	}, nil
}
