package validation

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

// ProductionLookup answers whether a live production entity exists.
type ProductionLookup interface {
	Exists(ctx context.Context, kind models.EntityKind, id uuid.UUID) (bool, error)
}

// References checks that every parent reference resolves, first within the
// package and then against production.
type References struct {
	Production ProductionLookup
}

func (References) Level() int   { return 3 }
func (References) Name() string { return "references" }

type refKey struct {
	kind models.EntityKind
	id   uuid.UUID
}

func (v References) Validate(ctx context.Context, ds *Dataset, out *Findings) error {
	inProduction := map[refKey]bool{}
	var lookupErr error

	for _, kind := range models.CommitOrder {
		out.Scan(ds.Records[kind], func(r models.StagingRecord) {
			if lookupErr != nil {
				return
			}
			for _, ref := range r.ParentRefs() {
				if ref.OriginalID == uuid.Nil {
					continue
				}
				if _, ok := ds.Lookup(ref.Kind, ref.OriginalID); ok {
					continue
				}

				key := refKey{kind: ref.Kind, id: ref.OriginalID}
				exists, seen := inProduction[key]
				if !seen && v.Production != nil {
					var err error
					exists, err = v.Production.Exists(ctx, ref.Kind, ref.OriginalID)
					if err != nil {
						lookupErr = err
						return
					}
					inProduction[key] = exists
				}

				if exists {
					out.Warn(r, "production_reference", ref.Field, "%s %s is not in the package and will bind to the existing production record", ref.Kind, ref.OriginalID)
					continue
				}
				out.Error(r, "unresolved_reference", ref.Field, "%s %s does not exist in the package or in production", ref.Kind, ref.OriginalID)
			}
		})
	}
	return lookupErr
}
