// Package proposals is the two-step merge review: propose with an impact preview, then
// approve or reject exactly once.
package proposals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const lockTTL = 30 * time.Second

// Locker serializes decisions on one proposal across processes. *redis.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

type Workflow struct {
	store    *repositories.Store
	executor *merging.Executor
	audit    *audit.Log
	sink     events.Sink
	locker   Locker
	logger   ectologger.Logger
	now      func() time.Time
}

// NewWorkflow builds the workflow. locker may be nil, in which case decisions rely on the
// store's conditional status update alone.
func NewWorkflow(store *repositories.Store, executor *merging.Executor, auditLog *audit.Log, sink events.Sink, locker Locker, logger ectologger.Logger) *Workflow {
	if sink == nil {
		sink = events.Noop()
	}
	return &Workflow{
		store:    store,
		executor: executor,
		audit:    auditLog,
		sink:     sink,
		locker:   locker,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Propose validates the request, computes the impact preview and stores a pending proposal.
func (w *Workflow) Propose(ctx context.Context, survivorID string, victimIDs []string, actor, reason string) (*models.MergeProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposals.Workflow.Propose")
	defer span.End()

	if err := validateProposal(survivorID, victimIDs, actor); err != nil {
		return nil, err
	}

	proposal := &models.MergeProposal{
		SurvivorID: survivorID,
		VictimIDs:  append([]string(nil), victimIDs...),
		ProposedBy: actor,
		Reason:     reason,
		Status:     models.ProposalStatusPending,
		ProposedAt: w.now(),
	}

	rec := &events.Recorder{}
	err := w.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		survivor, err := w.store.Nodes.Get(ctx, survivorID)
		if err != nil {
			return err
		}
		if survivor.IsTombstone() {
			return tombstoneError(survivor)
		}

		preview, err := w.preview(ctx, survivor, victimIDs)
		if err != nil {
			return err
		}
		proposal.Preview = preview

		if err := w.store.Proposals.Create(ctx, proposal); err != nil {
			return err
		}

		if _, err := w.audit.Record(ctx, models.AuditMergeProposed, actor, survivorID, map[string]any{
			"proposal_id": proposal.ID,
			"victim_ids":  proposal.VictimIDs,
			"reason":      reason,
		}); err != nil {
			return err
		}

		rec.Add(events.Event{Kind: events.KindProposalCreated, Actor: actor, Reason: reason, Proposal: proposal})
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	metrics.RecordProposal("proposed")
	w.logger.WithContext(ctx).WithFields(map[string]any{
		"proposal_id":    proposal.ID,
		"survivor_id":    survivorID,
		"victim_ids":     victimIDs,
		"affected_edges": proposal.Preview.AffectedEdges,
	}).Info("Created merge proposal")

	rec.Flush(ctx, w.sink, w.logger)
	return proposal, nil
}

func validateProposal(survivorID string, victimIDs []string, actor string) error {
	if survivorID == "" {
		return apperrors.InvalidOperation("survivor id is required")
	}
	if len(victimIDs) == 0 {
		return apperrors.InvalidOperation("a merge proposal needs at least one victim")
	}
	if strings.TrimSpace(actor) == "" {
		return apperrors.InvalidOperation("a merge proposal needs an actor")
	}
	seen := make(map[string]struct{}, len(victimIDs))
	for _, id := range victimIDs {
		if id == "" {
			return apperrors.InvalidOperation("victim ids must not be empty")
		}
		if id == survivorID {
			return apperrors.InvalidOperation("survivor %s cannot also be a victim", survivorID)
		}
		if _, dup := seen[id]; dup {
			return apperrors.InvalidOperation("victim %s is listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// preview is advisory: the graph may change before the proposal is decided.
func (w *Workflow) preview(ctx context.Context, survivor *models.Node, victimIDs []string) (models.ImpactPreview, error) {
	preview := models.ImpactPreview{Victims: make([]models.VictimImpact, 0, len(victimIDs))}
	for _, id := range victimIDs {
		victim, err := w.store.Nodes.Get(ctx, id)
		if err != nil {
			return models.ImpactPreview{}, err
		}
		if victim.IsTombstone() {
			return models.ImpactPreview{}, tombstoneError(victim)
		}
		if victim.Type != survivor.Type {
			return models.ImpactPreview{}, apperrors.InvalidOperation("cannot merge %s %s into %s %s", victim.Type, victim.ID, survivor.Type, survivor.ID)
		}

		stats, err := w.store.Edges.Stats(ctx, id)
		if err != nil {
			return models.ImpactPreview{}, err
		}
		invoices, err := w.store.Invoices.CountByVendor(ctx, id)
		if err != nil {
			return models.ImpactPreview{}, err
		}

		preview.Victims = append(preview.Victims, models.VictimImpact{
			VictimID:     id,
			VictimName:   victim.Attributes.Name(),
			EdgeCount:    stats.EdgeCount,
			TotalAmount:  stats.Volume,
			InvoiceCount: invoices,
		})
		preview.AffectedEdges += stats.EdgeCount
		preview.TotalTransactionValue += stats.Volume
		preview.AffectedInvoices += invoices
	}
	return preview, nil
}

// Approve merges every victim into the survivor in list order and marks the proposal
// approved. The merges and the status flip share one transaction: a failing victim leaves
// every node untouched and the proposal pending, and the error names that victim.
func (w *Workflow) Approve(ctx context.Context, id int64, actor, notes string) (*models.ApprovalResult, error) {
	ctx, span := tracing.StartSpan(ctx, "proposals.Workflow.Approve")
	defer span.End()

	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.InvalidOperation("approving a proposal needs an actor")
	}

	var result *models.ApprovalResult
	rec := &events.Recorder{}
	err := w.withLock(ctx, id, func() error {
		return w.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
			proposal, err := w.pending(ctx, id)
			if err != nil {
				return err
			}

			reason := fmt.Sprintf("Approved proposal #%d", id)
			merges := make([]models.MergeOutcome, 0, len(proposal.VictimIDs))
			for _, victimID := range proposal.VictimIDs {
				outcome, err := w.executor.MergeInTx(ctx, rec, proposal.SurvivorID, victimID, actor, reason)
				if err != nil {
					return withVictim(err, victimID, len(merges))
				}
				merges = append(merges, outcome)
			}

			decision := models.ProposalDecision{
				Status:    models.ProposalStatusApproved,
				DecidedBy: actor,
				DecidedAt: w.now(),
				Notes:     notes,
			}
			if err := w.decide(ctx, id, decision); err != nil {
				return err
			}

			if _, err := w.audit.Record(ctx, models.AuditMergeApproved, actor, proposal.SurvivorID, map[string]any{
				"proposal_id": id,
				"victim_ids":  proposal.VictimIDs,
				"notes":       notes,
			}); err != nil {
				return err
			}

			applyDecision(proposal, decision)
			rec.Add(events.Event{Kind: events.KindProposalApproved, Actor: actor, Reason: reason, Proposal: proposal})
			result = &models.ApprovalResult{Proposal: proposal, Merges: merges}
			return nil
		})
	})
	if err != nil {
		metrics.RecordProposal("approve_failed")
		tracing.RecordError(span, err)
		w.logger.WithContext(ctx).WithError(err).WithField("proposal_id", id).Warn("Failed to approve merge proposal")
		return nil, err
	}

	metrics.RecordProposal("approved")
	for _, m := range result.Merges {
		metrics.RecordMerge("merged", m.EdgesFrom+m.EdgesTo)
	}
	w.logger.WithContext(ctx).WithFields(map[string]any{
		"proposal_id": id,
		"actor":       actor,
		"merges":      len(result.Merges),
	}).Info("Approved merge proposal")

	rec.Flush(ctx, w.sink, w.logger)
	return result, nil
}

// Reject records the rejection. Nodes and edges are never touched.
func (w *Workflow) Reject(ctx context.Context, id int64, actor, reason string) (*models.MergeProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposals.Workflow.Reject")
	defer span.End()

	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.InvalidOperation("rejecting a proposal needs an actor")
	}

	var proposal *models.MergeProposal
	rec := &events.Recorder{}
	err := w.withLock(ctx, id, func() error {
		return w.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
			p, err := w.pending(ctx, id)
			if err != nil {
				return err
			}

			decision := models.ProposalDecision{
				Status:          models.ProposalStatusRejected,
				DecidedBy:       actor,
				DecidedAt:       w.now(),
				RejectionReason: reason,
			}
			if err := w.decide(ctx, id, decision); err != nil {
				return err
			}

			if _, err := w.audit.Record(ctx, models.AuditMergeRejected, actor, p.SurvivorID, map[string]any{
				"proposal_id": id,
				"reason":      reason,
			}); err != nil {
				return err
			}

			applyDecision(p, decision)
			rec.Add(events.Event{Kind: events.KindProposalRejected, Actor: actor, Reason: reason, Proposal: p})
			proposal = p
			return nil
		})
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	metrics.RecordProposal("rejected")
	w.logger.WithContext(ctx).WithFields(map[string]any{
		"proposal_id": id,
		"actor":       actor,
	}).Info("Rejected merge proposal")

	rec.Flush(ctx, w.sink, w.logger)
	return proposal, nil
}

// Decide dispatches to Approve or Reject. notes is the approval note or the rejection reason.
func (w *Workflow) Decide(ctx context.Context, id int64, decision models.Decision, actor, notes string) (*models.MergeProposal, error) {
	switch decision {
	case models.DecisionApprove:
		result, err := w.Approve(ctx, id, actor, notes)
		if err != nil {
			return nil, err
		}
		return result.Proposal, nil
	case models.DecisionReject:
		return w.Reject(ctx, id, actor, notes)
	default:
		return nil, apperrors.InvalidOperation("unknown decision %q", decision)
	}
}

// ListPending returns pending proposals, oldest first.
func (w *Workflow) ListPending(ctx context.Context) ([]models.MergeProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposals.Workflow.ListPending")
	defer span.End()

	return w.store.Proposals.ListPending(ctx)
}

// Get returns a proposal in any status.
func (w *Workflow) Get(ctx context.Context, id int64) (*models.MergeProposal, error) {
	ctx, span := tracing.StartSpan(ctx, "proposals.Workflow.Get")
	defer span.End()

	return w.store.Proposals.Get(ctx, id)
}

func (w *Workflow) pending(ctx context.Context, id int64) (*models.MergeProposal, error) {
	proposal, err := w.store.Proposals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if proposal.Status != models.ProposalStatusPending {
		return nil, apperrors.InvalidState("proposal", idString(id), string(models.ProposalStatusPending), string(proposal.Status))
	}
	return proposal, nil
}

// decide flips the status with a conditional update. Losing a race to another decision
// surfaces as InvalidState.
func (w *Workflow) decide(ctx context.Context, id int64, decision models.ProposalDecision) error {
	ok, err := w.store.Proposals.Decide(ctx, id, decision)
	if err != nil {
		return err
	}
	if !ok {
		current, err := w.store.Proposals.Get(ctx, id)
		if err != nil {
			return err
		}
		return apperrors.InvalidState("proposal", idString(id), string(models.ProposalStatusPending), string(current.Status))
	}
	return nil
}

func (w *Workflow) withLock(ctx context.Context, id int64, fn func() error) error {
	if w.locker == nil {
		return fn()
	}
	err := w.locker.WithLock(ctx, "proposal:"+idString(id), lockTTL, fn)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return apperrors.InvalidState("proposal", idString(id), "idle", "being decided")
	}
	return err
}

func applyDecision(p *models.MergeProposal, d models.ProposalDecision) {
	decidedAt := d.DecidedAt
	p.Status = d.Status
	p.DecidedBy = d.DecidedBy
	p.DecidedAt = &decidedAt
	p.DecisionNotes = d.Notes
	p.RejectionReason = d.RejectionReason
}

// withVictim tags a failed merge with the victim it stopped at. The transaction rolls
// back, so no victim of the proposal is merged.
func withVictim(err error, victimID string, index int) error {
	if !httperror.IsHTTPError(err) {
		err = httperror.WrapError(http.StatusInternalServerError, err)
	}
	return httperror.ToHTTPError(err).
		AddMetaValue("failed_victim", victimID).
		AddMetaValue("victim_index", index)
}

func tombstoneError(n *models.Node) error {
	return apperrors.InvalidState("node", n.ID, string(models.NodeStatusActive), string(models.NodeStatusMerged)).
		AddMetaValue(models.AttrMergedInto, n.Attributes.MergedInto())
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
