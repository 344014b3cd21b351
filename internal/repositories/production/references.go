package production

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// ReferenceRepository rewrites foreign key columns across production tables.
type ReferenceRepository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewReferenceRepository(db database.DB, logger ectologger.Logger) *ReferenceRepository {
	return &ReferenceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReferenceRepository) Repoint(ctx context.Context, fk models.ForeignKey, from, to uuid.UUID, actorID string, now time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "production.ReferenceRepository.Repoint")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(fk.Table)
	ub.Set(
		ub.Assign(fk.Column, to),
		ub.Assign("updated_at_utc", now),
		ub.Assign("last_modified_by", actorID),
	)
	ub.Where(
		ub.Equal(fk.Column, from),
		ub.Equal("is_deleted", false),
	)
	query, args := ub.Build()

	result, err := database.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"foreign_key": fk.String(),
			"from":        from,
			"to":          to,
		}).Error("Failed to repoint references")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint %s", fk)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
