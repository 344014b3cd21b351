package memory

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

type StagingRepository[T models.StagingRecord] struct {
	mu   sync.RWMutex
	rows []T
}

func NewStagingRepository[T models.StagingRecord]() *StagingRepository[T] {
	return &StagingRepository[T]{}
}

func (r *StagingRepository[T]) indexOf(pred func(b *models.StagingBase) bool) int {
	for i, row := range r.rows {
		if pred(row.Staging()) {
			return i
		}
	}
	return -1
}

func (r *StagingRepository[T]) Insert(_ context.Context, rows []T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		b := row.Staging()
		dup := r.indexOf(func(s *models.StagingBase) bool {
			return s.ImportPackageID == b.ImportPackageID && s.OriginalEntityID == b.OriginalEntityID
		})
		if dup >= 0 {
			continue
		}
		r.rows = append(r.rows, clone(row))
	}
	return nil
}

func (r *StagingRepository[T]) filter(pred func(b *models.StagingBase) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []T
	for _, row := range r.rows {
		if pred(row.Staging()) {
			out = append(out, clone(row))
		}
	}
	return out
}

func (r *StagingRepository[T]) GetByPackageID(_ context.Context, importPackageID uuid.UUID) ([]T, error) {
	return r.filter(func(b *models.StagingBase) bool { return b.ImportPackageID == importPackageID }), nil
}

func (r *StagingRepository[T]) GetByPackageAndOriginalID(_ context.Context, importPackageID, originalID uuid.UUID) (T, bool, error) {
	rows := r.filter(func(b *models.StagingBase) bool {
		return b.ImportPackageID == importPackageID && b.OriginalEntityID == originalID
	})
	if len(rows) == 0 {
		var zero T
		return zero, false, nil
	}
	return rows[0], true, nil
}

func (r *StagingRepository[T]) GetByPackageAndStatus(_ context.Context, importPackageID uuid.UUID, status models.ValidationStatus) ([]T, error) {
	return r.filter(func(b *models.StagingBase) bool {
		return b.ImportPackageID == importPackageID && b.ValidationStatus == status
	}), nil
}

func (r *StagingRepository[T]) GetByIDs(_ context.Context, importPackageID uuid.UUID, ids []uuid.UUID) ([]T, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(func(b *models.StagingBase) bool {
		return b.ImportPackageID == importPackageID && want[b.ID]
	}), nil
}

func (r *StagingRepository[T]) GetStatusCountsByPackage(ctx context.Context, importPackageID uuid.UUID) (models.StatusCounts, error) {
	var counts models.StatusCounts
	rows, _ := r.GetByPackageID(ctx, importPackageID)
	for _, row := range rows {
		counts.Add(row.Staging())
	}
	return counts, nil
}

func (r *StagingRepository[T]) Update(_ context.Context, row T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := row.Staging()
	i := r.indexOf(func(s *models.StagingBase) bool { return s.ID == b.ID })
	if i < 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "%s staging row %s not found", row.Kind(), b.ID)
	}
	if b.UpdatedAtUtc.IsZero() {
		b.UpdatedAtUtc = time.Now().UTC()
	}
	r.rows[i] = clone(row)
	return nil
}

func (r *StagingRepository[T]) UpdateRange(ctx context.Context, rows []T) error {
	for _, row := range rows {
		if err := r.Update(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (r *StagingRepository[T]) DeleteByPackageID(_ context.Context, importPackageID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rows[:0]
	deleted := 0
	for _, row := range r.rows {
		if row.Staging().ImportPackageID == importPackageID {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return deleted, nil
}
