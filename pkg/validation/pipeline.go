// Package validation runs the ordered validation levels over a package's
// staged rows and records the outcome on each row.
package validation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/willow/internal/repositories"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// maxSummaryMessages caps the flattened messages kept on the summary.
const maxSummaryMessages = 500

// Validator is one level of the pipeline. Implementations only read the
// dataset and only write to their own Findings.
type Validator interface {
	Level() int
	Name() string
	Validate(ctx context.Context, ds *Dataset, out *Findings) error
}

type Pipeline struct {
	stores     *repositories.StagingStores
	validators []Validator
	logger     ectologger.Logger
	now        func() time.Time
}

// NewPipeline orders validators by level.
func NewPipeline(stores *repositories.StagingStores, logger ectologger.Logger, validators ...Validator) *Pipeline {
	ordered := append([]Validator(nil), validators...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Level() < ordered[j].Level() })
	return &Pipeline{
		stores:     stores,
		validators: ordered,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run validates every staged row of the package. Levels run concurrently
// and their findings are merged in level order, so a row flagged by any
// level ends Invalid. The returned summary decides whether the package may
// proceed.
func (p *Pipeline) Run(ctx context.Context, importPackageID uuid.UUID) (*models.ValidationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Pipeline.Run")
	defer span.End()

	start := time.Now()
	log := p.logger.WithContext(ctx).WithFields(map[string]any{"import_package_id": importPackageID})

	records := make(map[models.EntityKind][]models.StagingRecord, len(models.CommitOrder))
	stores := p.stores.All()
	for _, store := range stores {
		rows, err := store.Records(ctx, importPackageID)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{"entity_type": store.Kind()}).Error("Failed to load staged rows")
			return nil, err
		}
		records[store.Kind()] = rows
	}
	ds := NewDataset(importPackageID, records)

	findings := make([]*Findings, len(p.validators))
	durations := make([]time.Duration, len(p.validators))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range p.validators {
		findings[i] = newFindings(v.Level(), v.Name())
		g.Go(func() error {
			levelStart := time.Now()
			if err := v.Validate(gctx, ds, findings[i]); err != nil {
				return fmt.Errorf("validation level %d (%s): %w", v.Level(), v.Name(), err)
			}
			durations[i] = time.Since(levelStart)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Validation level failed")
		return nil, err
	}

	now := p.now()
	summary := &models.ValidationSummary{
		Levels:   make([]models.LevelSummary, len(p.validators)),
		ByKind:   map[models.EntityKind]models.StatusCounts{},
		Errors:   []string{},
		Warnings: []string{},
	}
	for i, v := range p.validators {
		f := findings[i]
		summary.Levels[i] = models.LevelSummary{
			Level:          v.Level(),
			Name:           v.Name(),
			RecordsChecked: f.checked,
			ErrorCount:     f.ErrorCount(),
			WarningCount:   f.WarningCount(),
			Duration:       durations[i],
		}
		metrics.RecordValidationLevel(v.Name(), durations[i].Seconds(), f.ErrorCount(), f.WarningCount())
	}

	for _, store := range stores {
		rows := records[store.Kind()]
		var counts models.StatusCounts
		for _, r := range rows {
			base := r.Staging()
			if !base.IsSkipped() {
				var errs, warns []models.ValidationMessage
				for _, f := range findings {
					errs = append(errs, f.errors[base.ID]...)
					warns = append(warns, f.warnings[base.ID]...)
				}
				base.ApplyValidation(errs, warns, now)
				summary.ErrorCount += len(errs)
				summary.WarningCount += len(warns)
				appendMessages(&summary.Errors, r, errs)
				appendMessages(&summary.Warnings, r, warns)
			}
			counts.Add(base)
		}
		if err := store.Save(ctx, rows); err != nil {
			log.WithError(err).WithFields(map[string]any{"entity_type": store.Kind()}).Error("Failed to save validation results")
			return nil, err
		}
		summary.ByKind[store.Kind()] = counts
		summary.TotalRecords += counts.Total
		summary.InvalidCount += counts.Invalid
		summary.WarningRows += counts.Warning
		summary.ValidCount += counts.Valid
		summary.SkippedCount += counts.Skipped
	}

	summary.TotalDuration = time.Since(start)
	summary.CompletedAt = now

	log.WithFields(map[string]any{
		"records":  summary.TotalRecords,
		"errors":   summary.ErrorCount,
		"warnings": summary.WarningCount,
		"invalid":  summary.InvalidCount,
		"duration": summary.TotalDuration.String(),
	}).Info("Validated staged package")
	return summary, nil
}

func appendMessages(dst *[]string, r models.StagingRecord, msgs []models.ValidationMessage) {
	for _, m := range msgs {
		if len(*dst) >= maxSummaryMessages {
			return
		}
		*dst = append(*dst, fmt.Sprintf("%s %s: [%s] %s", r.Kind(), r.Staging().OriginalEntityID, m.Validator, m.Message))
	}
}
