// Package staging unpacks a verified package into the staging tables.
package staging

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/packagefile"
	"github.com/Ramsey-B/willow/pkg/packagestore"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// maxWarnings caps the per-row problems carried on a StagingResult.
const maxWarnings = 200

// AttachmentStore receives attachment blobs extracted from a package.
type AttachmentStore interface {
	Save(ctx context.Context, importPackageID uuid.UUID, attachmentID string, data []byte) (packagestore.SavedAttachment, error)
	DeletePackage(ctx context.Context, importPackageID uuid.UUID) (int, error)
}

type Config struct {
	// Parallelism bounds how many kinds are staged at once.
	Parallelism int
}

type Service struct {
	stores      *repositories.StagingStores
	attachments AttachmentStore
	logger      ectologger.Logger
	config      Config
	now         func() time.Time
}

func NewService(stores *repositories.StagingStores, attachments AttachmentStore, config Config, logger ectologger.Logger) *Service {
	if config.Parallelism < 1 {
		config.Parallelism = 4
	}
	return &Service{
		stores:      stores,
		attachments: attachments,
		logger:      logger,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// tableKind maps a package table to the kind it carries. Package tables are
// named after the production tables.
func tableKind(table string) (models.EntityKind, bool) {
	for _, kind := range models.CommitOrder {
		if models.ProductionTable(kind) == table {
			return kind, true
		}
	}
	return "", false
}

type stagingRun struct {
	mu       sync.Mutex
	result   *models.StagingResult
	staged   map[models.EntityKind][]models.StagingRecord
	warnings int
}

func (r *stagingRun) warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings++
	if len(r.result.Warnings) < maxWarnings {
		r.result.Warnings = append(r.result.Warnings, fmt.Sprintf(format, args...))
	}
}

// UnpackAndStage reads every supported table of the package at path into
// staging rows owned by importPackageID. Attachments are extracted first so
// evidence rows can record where their blob went. Row-level problems are
// counted on the result; only I/O and storage failures are returned.
func (s *Service) UnpackAndStage(ctx context.Context, importPackageID uuid.UUID, path string) (*models.StagingResult, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Service.UnpackAndStage")
	defer span.End()

	start := time.Now()
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"import_package_id": importPackageID,
		"path":              path,
	})

	f, err := packagefile.Open(ctx, path)
	if err != nil {
		log.WithError(err).Error("Failed to open package for staging")
		return nil, err
	}
	defer f.Close()

	run := &stagingRun{
		result: &models.StagingResult{
			ImportPackageID: importPackageID,
			CountsByKind:    map[models.EntityKind]int{},
			IgnoredTables:   []string{},
			Warnings:        []string{},
		},
		staged: map[models.EntityKind][]models.StagingRecord{},
	}

	saved, err := s.extractAttachments(ctx, importPackageID, f, run)
	if err != nil {
		log.WithError(err).Error("Failed to extract attachments")
		return nil, err
	}

	tables := map[models.EntityKind]string{}
	for _, table := range f.Tables() {
		if table == packagefile.ManifestTable || table == packagefile.AttachmentsTable {
			continue
		}
		kind, ok := tableKind(table)
		if !ok {
			run.result.IgnoredTables = append(run.result.IgnoredTables, table)
			continue
		}
		tables[kind] = table
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallelism)
	for kind, table := range tables {
		g.Go(func() error {
			return s.stageKind(gctx, importPackageID, f, kind, table, saved, run)
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Failed to stage package")
		return nil, err
	}

	// Parents are resolved only once every kind is in place.
	run.result.UnresolvedReferences = countUnresolved(run.staged)
	run.result.Duration = time.Since(start)

	log.WithFields(map[string]any{
		"total_records":         run.result.TotalRecords,
		"attachments":           run.result.AttachmentsExtracted,
		"rejected_rows":         run.result.RejectedRows,
		"unresolved_references": run.result.UnresolvedReferences,
		"warnings":              run.warnings,
	}).Info("Staged package")
	return run.result, nil
}

func (s *Service) extractAttachments(ctx context.Context, importPackageID uuid.UUID, f *packagefile.File, run *stagingRun) (map[string]packagestore.SavedAttachment, error) {
	attachments, err := f.Attachments(ctx)
	if err != nil {
		return nil, err
	}

	saved := make(map[string]packagestore.SavedAttachment, len(attachments))
	for _, a := range attachments {
		if _, dup := saved[a.ID]; dup {
			run.warn("attachment %q appears more than once", a.ID)
			continue
		}
		out, err := s.attachments.Save(ctx, importPackageID, a.ID, a.Data)
		if err != nil {
			if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusBadRequest {
				run.warn("attachment skipped: %v", err)
				continue
			}
			return nil, err
		}
		if a.MimeType != "" {
			out.MimeType = a.MimeType
		}
		saved[a.ID] = out
		run.result.AttachmentsExtracted++
		run.result.AttachmentBytes += out.SizeBytes
	}
	return saved, nil
}

func (s *Service) stageKind(ctx context.Context, importPackageID uuid.UUID, f *packagefile.File, kind models.EntityKind, table string, saved map[string]packagestore.SavedAttachment, run *stagingRun) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Service.stageKind")
	defer span.End()

	rows, err := f.ReadRows(ctx, table)
	if err != nil {
		return err
	}

	now := s.now()
	decode := decoders[kind]
	seen := make(map[uuid.UUID]bool, len(rows))
	records := make([]models.StagingRecord, 0, len(rows))
	rejected := 0

	for i, row := range rows {
		originalID, err := row.UUID("id")
		if err != nil {
			rejected++
			run.warn("%s row %d rejected: %v", table, i+1, err)
			continue
		}
		if seen[originalID] {
			rejected++
			run.warn("%s row %d rejected: duplicate id %s", table, i+1, originalID)
			continue
		}
		seen[originalID] = true

		d := &rowDecoder{row: row}
		record := decode(d, models.NewStagingBase(importPackageID, originalID, now))
		if ev, ok := record.(*models.StagingEvidence); ok {
			bindAttachment(ev, saved, d)
		}
		for _, p := range d.problems {
			run.warn("%s %s: %s", table, originalID, p)
		}
		records = append(records, record)
	}

	store, err := s.stores.ForKind(kind)
	if err != nil {
		return err
	}
	if err := store.Insert(ctx, records); err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	run.staged[kind] = records
	run.result.CountsByKind[kind] = len(records)
	run.result.TotalRecords += len(records)
	run.result.RejectedRows += rejected
	return nil
}

func bindAttachment(ev *models.StagingEvidence, saved map[string]packagestore.SavedAttachment, d *rowDecoder) {
	if ev.AttachmentID == "" {
		return
	}
	a, ok := saved[ev.AttachmentID]
	if !ok {
		d.problem("attachment %q is not in the package", ev.AttachmentID)
		return
	}
	ev.AttachmentStorageKey = a.StorageKey
	ev.AttachmentSizeBytes = a.SizeBytes
	if ev.MimeType == "" {
		ev.MimeType = a.MimeType
	}
}

// countUnresolved counts parent references that name no staged row of the
// expected kind. Optional references that are empty do not count.
func countUnresolved(staged map[models.EntityKind][]models.StagingRecord) int {
	index := map[models.EntityKind]map[uuid.UUID]bool{}
	for kind, records := range staged {
		ids := make(map[uuid.UUID]bool, len(records))
		for _, r := range records {
			ids[r.Staging().OriginalEntityID] = true
		}
		index[kind] = ids
	}

	unresolved := 0
	for _, records := range staged {
		for _, r := range records {
			for _, ref := range r.ParentRefs() {
				if !index[ref.Kind][ref.OriginalID] {
					unresolved++
				}
			}
		}
	}
	return unresolved
}

// Cleanup purges every staging row and extracted attachment of the package.
// A retry must clean up before restaging.
func (s *Service) Cleanup(ctx context.Context, importPackageID uuid.UUID) (*models.CleanupResult, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Service.Cleanup")
	defer span.End()

	result := &models.CleanupResult{RowsDeleted: map[models.EntityKind]int{}}
	for _, store := range s.stores.All() {
		n, err := store.Purge(ctx, importPackageID)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"import_package_id": importPackageID,
				"entity_type":       store.Kind(),
			}).Error("Failed to purge staging rows")
			return nil, err
		}
		result.RowsDeleted[store.Kind()] = n
	}

	n, err := s.attachments.DeletePackage(ctx, importPackageID)
	if err != nil {
		return nil, err
	}
	result.AttachmentsDeleted = n

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"import_package_id": importPackageID,
		"attachments":       n,
	}).Debug("Cleaned up staging area")
	return result, nil
}

// Summary returns per-kind status counts in commit order plus their total.
func (s *Service) Summary(ctx context.Context, importPackageID uuid.UUID) ([]models.KindSummary, models.StatusCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Service.Summary")
	defer span.End()

	var totals models.StatusCounts
	kinds := make([]models.KindSummary, 0, len(models.CommitOrder))
	for _, store := range s.stores.All() {
		counts, err := store.StatusCounts(ctx, importPackageID)
		if err != nil {
			return nil, totals, err
		}
		kinds = append(kinds, models.KindSummary{Kind: store.Kind(), StatusCounts: counts})
		totals.Merge(counts)
	}
	return kinds, totals, nil
}
