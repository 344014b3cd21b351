package importpackage

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
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

// Register registers import package routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Upload)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/stage", h.Stage)
	g.POST("/:id/revalidate", h.Revalidate)
	g.GET("/:id/staging-summary", h.StagingSummary)
	g.POST("/:id/detect-duplicates", h.DetectDuplicates)
	g.GET("/:id/conflicts", h.ListConflicts)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/commit", h.Commit)
	g.POST("/:id/cancel", h.Cancel)
}

// Upload receives a multipart package upload. The package_id form field is
// the client's package GUID; checksum is the optional SHA-256 of the file.
func (h *Handler) Upload(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.Upload")
	defer span.End()

	actor, err := params.Actor(c)
	if err != nil {
		return err
	}
	packageID, err := uuid.Parse(c.FormValue("package_id"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "package_id must be a valid uuid")
	}
	header, err := c.FormFile("file")
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	file, err := header.Open()
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "file could not be read")
	}
	defer file.Close()

	pkg, err := h.service.Upload(ctx, importing.UploadRequest{
		PackageID: packageID,
		FileName:  header.Filename,
		Content:   file,
		Checksum:  c.FormValue("checksum"),
		ActorID:   actor,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pkg)
}

func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	packages, err := h.service.ListPackages(ctx, models.ImportPackageFilter{
		Status: models.PackageStatus(c.QueryParam("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, packages)
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.Get")
	defer span.End()

	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	pkg, err := h.service.GetPackage(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pkg)
}

func (h *Handler) Stage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.Stage")
	defer span.End()

	id, actor, err := idAndActor(c)
	if err != nil {
		return err
	}
	result, err := h.service.StagePackage(ctx, id, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Revalidate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.Revalidate")
	defer span.End()

	id, actor, err := idAndActor(c)
	if err != nil {
		return err
	}
	result, err := h.service.Revalidate(ctx, id, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) StagingSummary(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.StagingSummary")
	defer span.End()

	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	summary, err := h.service.GetStagingSummary(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) DetectDuplicates(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.DetectDuplicates")
	defer span.End()

	id, actor, err := idAndActor(c)
	if err != nil {
		return err
	}
	result, err := h.service.DetectDuplicates(ctx, id, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListConflicts(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.ListConflicts")
	defer span.End()

	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	conflicts, err := h.service.ListConflicts(ctx, id, models.ConflictFilter{
		Type:   models.ConflictType(c.QueryParam("type")),
		Status: models.ConflictStatus(c.QueryParam("status")),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conflicts)
}

// ApproveRequest approves either the whole package or the listed staging
// rows of one kind.
type ApproveRequest struct {
	EntityType models.EntityKind `json:"entity_type" validate:"required_with=RecordIDs"`
	RecordIDs  []uuid.UUID       `json:"record_ids" validate:"omitempty,max=10000"`
}

func (h *Handler) Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.Approve")
	defer span.End()

	id, actor, err := idAndActor(c)
	if err != nil {
		return err
	}
	req, err := params.Bind[ApproveRequest](c)
	if err != nil {
		return err
	}

	var result *models.ApprovalResult
	if len(req.RecordIDs) == 0 {
		result, err = h.service.ApproveAll(ctx, id, actor)
	} else {
		result, err = h.service.ApproveRecords(ctx, id, req.EntityType, req.RecordIDs, actor)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Commit(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.Commit")
	defer span.End()

	id, actor, err := idAndActor(c)
	if err != nil {
		return err
	}
	result, err := h.service.Commit(ctx, id, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (h *Handler) Cancel(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "importpackage_handler.Cancel")
	defer span.End()

	id, actor, err := idAndActor(c)
	if err != nil {
		return err
	}
	req, err := params.Bind[CancelRequest](c)
	if err != nil {
		return err
	}
	pkg, err := h.service.Cancel(ctx, id, req.Reason, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pkg)
}

func idAndActor(c echo.Context) (uuid.UUID, string, error) {
	id, err := params.UUID(c, "id")
	if err != nil {
		return uuid.Nil, "", err
	}
	actor, err := params.Actor(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, actor, nil
}
