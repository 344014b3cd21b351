package importing

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/integrity"
	"github.com/Ramsey-B/willow/pkg/locks"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/packagefile"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// UploadRequest carries one package upload.
type UploadRequest struct {
	PackageID uuid.UUID
	FileName  string
	Content   io.Reader
	// Checksum is the SHA-256 of the file as computed by the client. Empty
	// skips the transport check.
	Checksum string
	ActorID  string
}

// Upload receives a package file. Uploads are idempotent on PackageID: a
// package already received is returned unchanged. A package that fails an
// integrity check is quarantined and can never be staged.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.ImportPackage, error) {
	ctx, span := tracing.StartSpan(ctx, "importing.Service.Upload")
	defer span.End()

	if req.PackageID == uuid.Nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "package id is required")
	}
	if req.Content == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "package content is required")
	}

	var pkg *models.ImportPackage
	err := locks.WithLock(ctx, s.Locker, locks.PackageKey(req.PackageID.String()), s.config.LockTTL, func() error {
		existing, err := s.Packages.GetByPackageID(ctx, req.PackageID)
		if err != nil {
			return err
		}
		if existing != nil {
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"package_id":        req.PackageID,
				"import_package_id": existing.ID,
			}).Info("Package already received")
			pkg = existing
			return nil
		}

		pkg, err = s.receive(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *Service) receive(ctx context.Context, req UploadRequest) (*models.ImportPackage, error) {
	log := s.logger.WithContext(ctx).WithFields(map[string]any{"package_id": req.PackageID})

	stored, alreadyExists, err := s.Files.Store(ctx, req.Content, req.Checksum)
	if err != nil {
		return nil, err
	}

	now := s.now()
	number, err := s.Packages.NextPackageNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	pkg := models.NewImportPackage(req.PackageID, req.FileName, req.ActorID, now)
	pkg.PackageNumber = number
	pkg.FileSizeBytes = stored.SizeBytes
	pkg.FileChecksum = stored.Checksum
	pkg.ArchivePath = stored.Key

	report, verifyErr := s.verify(ctx, stored.Path, req.PackageID)
	switch {
	case verifyErr != nil:
		if err := pkg.MarkAsFailed(verifyErr.Error(), map[string]any{"step": "verify", "error": verifyErr.Error()}, req.ActorID, now); err != nil {
			return nil, err
		}
	case report.Failure != nil:
		applyManifest(pkg, report)
		if err := pkg.Quarantine(report.Failure.Error(), report.Diagnostics(), req.ActorID, now); err != nil {
			return nil, err
		}
	default:
		applyManifest(pkg, report)
		pkg.Diagnostics = database.NewJSONB(report.Diagnostics())
	}

	if err := s.Packages.Create(ctx, pkg); err != nil {
		return nil, err
	}
	fields := map[string]any{
		"import_package_id": pkg.ID,
		"package_number":    pkg.PackageNumber,
		"status":            pkg.Status,
		"size_bytes":        pkg.FileSizeBytes,
		"already_stored":    alreadyExists,
	}
	if pkg.Status != models.PackageStatusUploading {
		s.transitioned(ctx, pkg, models.PackageStatusUploading, pkg.ErrorMessage, req.ActorID)
		log.WithFields(fields).Warn("Package rejected at intake")
	} else {
		log.WithFields(fields).Info("Package received")
	}

	if verifyErr != nil {
		return nil, verifyErr
	}
	return pkg, nil
}

// verify opens the stored file and runs the integrity checks. A file that is
// not a readable package, or whose manifest names another package, is an
// integrity failure; the error return is reserved for I/O failures.
func (s *Service) verify(ctx context.Context, path string, packageID uuid.UUID) (*integrity.Report, error) {
	f, err := packagefile.Open(ctx, path)
	if err != nil {
		return &integrity.Report{Failure: fmt.Errorf("not a readable package: %w", err)}, nil
	}
	defer f.Close()

	report, err := s.Verifier.Verify(ctx, f)
	if err != nil {
		return nil, err
	}
	if report.Failure == nil && report.Manifest.PackageID != packageID {
		report.Failure = fmt.Errorf("manifest package id %s does not match upload %s", report.Manifest.PackageID, packageID)
	}
	return report, nil
}

func applyManifest(pkg *models.ImportPackage, report *integrity.Report) {
	pkg.ContentChecksum = report.ContentChecksum
	m := report.Manifest
	if m == nil {
		return
	}
	pkg.SchemaVersion = m.SchemaVersion
	pkg.DeviceID = m.DeviceID
	pkg.ExportedBy = m.ExportedBy
	pkg.ExportedAtUtc = m.CreatedAtUtc
	if m.VocabularyVersions != nil {
		pkg.VocabularyVersions = database.NewJSONB(m.VocabularyVersions)
	}
}
