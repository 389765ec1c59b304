package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/nodes"
	"github.com/Ramsey-B/fern/pkg/proposals"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// GraphHandler serves merges, merge proposals and node reads
type GraphHandler struct {
	executor *merging.Executor
	workflow *proposals.Workflow
	nodes    *nodes.Service
	logger   ectologger.Logger
}

func NewGraphHandler(executor *merging.Executor, workflow *proposals.Workflow, nodeService *nodes.Service, logger ectologger.Logger) *GraphHandler {
	return &GraphHandler{
		executor: executor,
		workflow: workflow,
		nodes:    nodeService,
		logger:   logger,
	}
}

// Register mounts the routes under /api/graph
func (h *GraphHandler) Register(g *echo.Group) {
	g.POST("/merge", h.Merge)
	g.POST("/merge/propose", h.Propose)
	g.GET("/merge/proposals", h.ListProposals)
	g.GET("/merge/proposals/:id", h.GetProposal)
	g.POST("/merge/proposals/:id/approve", h.Approve)
	g.POST("/merge/proposals/:id/reject", h.Reject)
	g.GET("/node/:id", h.Node)
	g.GET("/node/:id/history", h.History)
	g.GET("/node/:id/edges", h.Edges)
}

// bind decodes the body, lets fill apply defaults, then validates.
func bind[T any](c echo.Context, fill func(*T)) (T, error) {
	var req T
	if err := c.Bind(&req); err != nil {
		return req, err
	}
	if fill != nil {
		fill(&req)
	}
	return utils.Validate(req)
}

func (h *GraphHandler) Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.Merge")
	defer span.End()

	req, err := bind(c, func(r *models.MergeRequest) { r.Actor = Actor(c, r.Actor) })
	if err != nil {
		return err
	}

	outcome, err := h.executor.Merge(ctx, req.SurvivorID, req.VictimID, req.Actor, req.Reason)
	if err != nil {
		return err
	}
	return SuccessResponse(c, outcome)
}

func (h *GraphHandler) Propose(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.Propose")
	defer span.End()

	req, err := bind(c, func(r *models.ProposeMergeRequest) { r.ProposedBy = Actor(c, r.ProposedBy) })
	if err != nil {
		return err
	}

	proposal, err := h.workflow.Propose(ctx, req.SurvivorID, req.VictimIDs, req.ProposedBy, req.Reason)
	if err != nil {
		return err
	}
	return CreatedResponse(c, proposal)
}

func (h *GraphHandler) ListProposals(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.ListProposals")
	defer span.End()

	pending, err := h.workflow.ListPending(ctx)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list merge proposals")
		return err
	}
	if pending == nil {
		pending = []models.MergeProposal{}
	}
	return SuccessResponse(c, pending)
}

func (h *GraphHandler) GetProposal(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.GetProposal")
	defer span.End()

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	proposal, err := h.workflow.Get(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, proposal)
}

func (h *GraphHandler) Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.Approve")
	defer span.End()

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	req, err := bind(c, func(r *models.ApproveProposalRequest) { r.ApprovedBy = Actor(c, r.ApprovedBy) })
	if err != nil {
		return err
	}

	result, err := h.workflow.Approve(ctx, id, req.ApprovedBy, req.Notes)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *GraphHandler) Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.Reject")
	defer span.End()

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	req, err := bind(c, func(r *models.RejectProposalRequest) { r.RejectedBy = Actor(c, r.RejectedBy) })
	if err != nil {
		return err
	}

	proposal, err := h.workflow.Reject(ctx, id, req.RejectedBy, req.Reason)
	if err != nil {
		return err
	}
	return SuccessResponse(c, proposal)
}

func (h *GraphHandler) Node(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.Node")
	defer span.End()

	detail, err := h.nodes.Detail(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, detail)
}

func (h *GraphHandler) History(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.History")
	defer span.End()

	entries, err := h.nodes.History(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, entries)
}

func (h *GraphHandler) Edges(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "GraphHandler.Edges")
	defer span.End()

	edges, err := h.nodes.Edges(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, edges)
}
