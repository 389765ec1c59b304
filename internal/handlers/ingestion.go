package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// IngestionHandler serves name resolution, invoice ingestion and invoice status changes
type IngestionHandler struct {
	orchestrator *ingestion.Orchestrator
	logger       ectologger.Logger
}

func NewIngestionHandler(orchestrator *ingestion.Orchestrator, logger ectologger.Logger) *IngestionHandler {
	return &IngestionHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Register mounts the routes under /api
func (h *IngestionHandler) Register(g *echo.Group) {
	g.POST("/resolve", h.Resolve)
	g.POST("/ingest/invoice", h.Ingest)
	g.POST("/invoices/:id/status", h.UpdateInvoiceStatus)
}

func (h *IngestionHandler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestionHandler.Resolve")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	req, err := utils.BindRequest[models.ResolveRequest](c)
	if err != nil {
		return err
	}

	result, err := h.orchestrator.Resolve(ctx, req.RawName, req.EntityType)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to resolve name")
		return err
	}
	return SuccessResponse(c, result)
}

// Ingest answers 201 when the record was linked and 202 when it was queued for review.
func (h *IngestionHandler) Ingest(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestionHandler.Ingest")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var record models.InvoiceRecord
	if err := c.Bind(&record); err != nil {
		return err
	}

	result, err := h.orchestrator.Ingest(ctx, record, "")
	if err != nil {
		return err
	}
	switch {
	case result.Status == models.IngestStatusQueued:
		return AcceptedResponse(c, result)
	case result.Duplicate:
		return SuccessResponse(c, result)
	default:
		return CreatedResponse(c, result)
	}
}

func (h *IngestionHandler) UpdateInvoiceStatus(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestionHandler.UpdateInvoiceStatus")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req models.UpdateInvoiceStatusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	req.Actor = Actor(c, req.Actor)
	req, err := utils.Validate(req)
	if err != nil {
		return err
	}

	invoice, err := h.orchestrator.UpdateInvoiceStatus(ctx, c.Param("id"), req.Status, req.Actor)
	if err != nil {
		return err
	}
	return SuccessResponse(c, invoice)
}
