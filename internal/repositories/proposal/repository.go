package proposal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "merge_proposals"

var columns = []string{
	"id", "survivor_id", "victim_ids", "proposed_by", "reason", "impact_preview", "status",
	"proposed_at", "decided_by", "decided_at", "decision_notes", "rejection_reason",
}

type row struct {
	ID              int64                                `db:"id"`
	SurvivorID      string                               `db:"survivor_id"`
	VictimIDs       database.JSONB[[]string]             `db:"victim_ids"`
	ProposedBy      string                               `db:"proposed_by"`
	Reason          string                               `db:"reason"`
	ImpactPreview   database.JSONB[models.ImpactPreview] `db:"impact_preview"`
	Status          string                               `db:"status"`
	ProposedAt      time.Time                            `db:"proposed_at"`
	DecidedBy       *string                              `db:"decided_by"`
	DecidedAt       *time.Time                           `db:"decided_at"`
	DecisionNotes   *string                              `db:"decision_notes"`
	RejectionReason *string                              `db:"rejection_reason"`
}

func (r row) toModel() models.MergeProposal {
	p := models.MergeProposal{
		ID:         r.ID,
		SurvivorID: r.SurvivorID,
		VictimIDs:  r.VictimIDs.GetValue(),
		ProposedBy: r.ProposedBy,
		Reason:     r.Reason,
		Preview:    r.ImpactPreview.GetValue(),
		Status:     models.ProposalStatus(r.Status),
		ProposedAt: r.ProposedAt,
		DecidedAt:  r.DecidedAt,
	}
	if r.DecidedBy != nil {
		p.DecidedBy = *r.DecidedBy
	}
	if r.DecisionNotes != nil {
		p.DecisionNotes = *r.DecisionNotes
	}
	if r.RejectionReason != nil {
		p.RejectionReason = *r.RejectionReason
	}
	return p
}

// Repository persists merge proposals
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, proposal *models.MergeProposal) error {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.Create")
	defer span.End()

	proposal.Status = models.ProposalStatusPending
	if proposal.ProposedAt.IsZero() {
		proposal.ProposedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("survivor_id", "victim_ids", "proposed_by", "reason", "impact_preview", "status", "proposed_at")
	ib.Values(
		proposal.SurvivorID,
		database.NewJSONB(proposal.VictimIDs),
		proposal.ProposedBy,
		proposal.Reason,
		database.NewJSONB(proposal.Preview),
		proposal.Status,
		proposal.ProposedAt,
	)
	ib.Returning("id")

	query, args := ib.Build()
	if err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&proposal.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"survivor_id": proposal.SurvivorID}).Error("Failed to create merge proposal")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge proposal")
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*models.MergeProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.Q(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("merge proposal", fmt.Sprint(id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"proposal_id": id}).Error("Failed to get merge proposal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge proposal")
	}

	p := out.toModel()
	return &p, nil
}

func (r *Repository) ListPending(ctx context.Context) ([]models.MergeProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.ListPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("status", models.ProposalStatusPending))
	sb.OrderBy("proposed_at", "id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending merge proposals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge proposals")
	}

	out := make([]models.MergeProposal, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

func (r *Repository) Decide(ctx context.Context, id int64, decision models.ProposalDecision) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "proposal.Repository.Decide")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", decision.Status),
		ub.Assign("decided_by", decision.DecidedBy),
		ub.Assign("decided_at", decision.DecidedAt),
		ub.Assign("decision_notes", decision.Notes),
		ub.Assign("rejection_reason", decision.RejectionReason),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.ProposalStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"proposal_id": id}).Error("Failed to decide merge proposal")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide merge proposal")
	}

	if n, _ := result.RowsAffected(); n > 0 {
		return true, nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
