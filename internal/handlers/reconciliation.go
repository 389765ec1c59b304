package handlers

import (
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type ReconciliationHandler struct {
	queue  *reconciliation.Queue
	logger ectologger.Logger
}

func NewReconciliationHandler(queue *reconciliation.Queue, logger ectologger.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		queue:  queue,
		logger: logger,
	}
}

// Register mounts the routes under /api/reconciliation
func (h *ReconciliationHandler) Register(g *echo.Group) {
	g.GET("/queue", h.ListPending)
	g.GET("/:id", h.Get)
	g.POST("/:id/resolve", h.Resolve)
}

// ListPending accepts an optional ?limit=
func (h *ReconciliationHandler) ListPending(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReconciliationHandler.ListPending")
	defer span.End()

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return BadRequest("limit must be a non-negative integer")
		}
		limit = parsed
	}

	tasks, err := h.queue.ListPending(ctx, limit)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list reconciliation tasks")
		return err
	}
	if tasks == nil {
		tasks = []models.ReconciliationTask{}
	}
	return SuccessResponse(c, tasks)
}

func (h *ReconciliationHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReconciliationHandler.Get")
	defer span.End()

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	task, err := h.queue.Get(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, task)
}

func (h *ReconciliationHandler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReconciliationHandler.Resolve")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.ResolveTaskRequest](c)
	if err != nil {
		return err
	}
	req.Actor = Actor(c, req.Actor)

	result, err := h.queue.Resolve(ctx, id, req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}
