package memory

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/internal/repositories/conflict"
	"github.com/Ramsey-B/willow/pkg/models"
)

type ConflictRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*models.ConflictResolution
	seq  int64
}

func NewConflictRepository() *ConflictRepository {
	return &ConflictRepository{rows: map[uuid.UUID]*models.ConflictResolution{}}
}

func (r *ConflictRepository) Create(_ context.Context, c *models.ConflictResolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[c.ID] = clone(c)
	return nil
}

func (r *ConflictRepository) GetByID(_ context.Context, id uuid.UUID) (*models.ConflictResolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.rows[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "conflict %s not found", id)
	}
	return clone(c), nil
}

func (r *ConflictRepository) Update(_ context.Context, c *models.ConflictResolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rows[c.ID]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "conflict %s not found", c.ID)
	}
	if stored.RowVersion != c.RowVersion {
		return httperror.NewHTTPErrorf(http.StatusConflict, "conflict %s was modified concurrently", c.ID)
	}
	c.RowVersion++
	r.rows[c.ID] = clone(c)
	return nil
}

func (r *ConflictRepository) inPackage(importPackageID uuid.UUID, pred func(*models.ConflictResolution) bool) []*models.ConflictResolution {
	var out []*models.ConflictResolution
	for _, c := range r.rows {
		if c.ImportPackageID == nil || *c.ImportPackageID != importPackageID || !pred(c) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConflictNumber < out[j].ConflictNumber })
	return out
}

func (r *ConflictRepository) ListByPackage(_ context.Context, importPackageID uuid.UUID, filter models.ConflictFilter) ([]*models.ConflictResolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.inPackage(importPackageID, filter.Matches)
	out := make([]*models.ConflictResolution, len(rows))
	for i, c := range rows {
		out[i] = clone(c)
	}
	return out, nil
}

func (r *ConflictRepository) CountPendingByPackage(_ context.Context, importPackageID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.inPackage(importPackageID, (*models.ConflictResolution).IsPending)), nil
}

func (r *ConflictRepository) FindPendingForPair(_ context.Context, importPackageID uuid.UUID, a, b uuid.UUID) (*models.ConflictResolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.inPackage(importPackageID, func(c *models.ConflictResolution) bool {
		return c.IsPending() && c.SamePair(a, b)
	})
	if len(rows) == 0 {
		return nil, nil
	}
	return clone(rows[0]), nil
}

func (r *ConflictRepository) IgnorePendingByPackage(_ context.Context, importPackageID uuid.UUID, reason, actorID string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.inPackage(importPackageID, (*models.ConflictResolution).IsPending)
	for _, c := range rows {
		_ = c.Ignore(reason, actorID, now)
		c.RowVersion++
	}
	return len(rows), nil
}

func (r *ConflictRepository) NextConflictNumber(_ context.Context, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	return conflict.FormatConflictNumber(now, r.seq), nil
}
