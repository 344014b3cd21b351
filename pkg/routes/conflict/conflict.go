package conflict

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/importing"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/routes/params"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

type Handler struct {
	service *importing.Service
	logger  ectologger.Logger
}

func NewHandler(service *importing.Service, logger ectologger.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers conflict routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id", h.Get)
	g.POST("/:id/resolve", h.Resolve)
	g.POST("/:id/ignore", h.Ignore)
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conflict_handler.Get")
	defer span.End()

	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.service.GetConflict(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

type ResolveRequest struct {
	Action   models.ResolutionAction `json:"action" validate:"required,oneof=Merge KeepSeparate Escalate"`
	MasterID *uuid.UUID              `json:"master_id" validate:"required_if=Action Merge"`
	Reason   string                  `json:"reason" validate:"max=2000"`
}

func (h *Handler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conflict_handler.Resolve")
	defer span.End()

	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	actor, err := params.Actor(c)
	if err != nil {
		return err
	}
	req, err := params.Bind[ResolveRequest](c)
	if err != nil {
		return err
	}

	result, err := h.service.ResolveConflict(ctx, importing.ResolveRequest{
		ConflictID: id,
		Action:     req.Action,
		MasterID:   req.MasterID,
		Reason:     req.Reason,
		ActorID:    actor,
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"conflict_id": id,
		"action":      req.Action,
		"actor_id":    actor,
	}).Info("Resolved conflict")
	return c.JSON(http.StatusOK, result)
}

type IgnoreRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (h *Handler) Ignore(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conflict_handler.Ignore")
	defer span.End()

	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	actor, err := params.Actor(c)
	if err != nil {
		return err
	}
	req, err := params.Bind[IgnoreRequest](c)
	if err != nil {
		return err
	}

	conflict, err := h.service.IgnoreConflict(ctx, id, req.Reason, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conflict)
}
