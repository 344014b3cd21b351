package memory

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/internal/repositories/importpackage"
	"github.com/Ramsey-B/willow/pkg/models"
)

type ImportPackageRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*models.ImportPackage
	seq  int64
}

func NewImportPackageRepository() *ImportPackageRepository {
	return &ImportPackageRepository{rows: map[uuid.UUID]*models.ImportPackage{}}
}

func (r *ImportPackageRepository) Create(_ context.Context, pkg *models.ImportPackage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if existing.PackageID == pkg.PackageID {
			return httperror.NewHTTPErrorf(http.StatusConflict, "package %s already uploaded", pkg.PackageID)
		}
	}
	r.rows[pkg.ID] = clone(pkg)
	return nil
}

func (r *ImportPackageRepository) GetByID(_ context.Context, id uuid.UUID) (*models.ImportPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkg, ok := r.rows[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "import package %s not found", id)
	}
	return clone(pkg), nil
}

func (r *ImportPackageRepository) GetByPackageID(_ context.Context, packageID uuid.UUID) (*models.ImportPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, pkg := range r.rows {
		if pkg.PackageID == packageID {
			return clone(pkg), nil
		}
	}
	return nil, nil
}

func (r *ImportPackageRepository) Update(_ context.Context, pkg *models.ImportPackage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rows[pkg.ID]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "import package %s not found", pkg.ID)
	}
	if stored.RowVersion != pkg.RowVersion {
		return httperror.NewHTTPErrorf(http.StatusConflict, "import package %s was modified concurrently", pkg.ID)
	}
	pkg.RowVersion++
	r.rows[pkg.ID] = clone(pkg)
	return nil
}

func (r *ImportPackageRepository) List(_ context.Context, filter models.ImportPackageFilter) ([]*models.ImportPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ImportPackage
	for _, pkg := range r.rows {
		if filter.Status != "" && pkg.Status != filter.Status {
			continue
		}
		out = append(out, clone(pkg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtUtc.After(out[j].CreatedAtUtc) })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *ImportPackageRepository) NextPackageNumber(_ context.Context, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	return importpackage.FormatPackageNumber(now, r.seq), nil
}
