// Package merging consolidates a duplicate node into a survivor.
//
// A merge repoints every edge and invoice of the victim to the survivor, tombstones the
// victim (status=merged, merged_into=survivor) and writes one audit entry on each side.
// All of it runs in one store transaction with both nodes locked in id order, so readers
// see either none or all of the merge. The memory store gives the same guarantee by
// serializing transactions. A store that cannot span one transaction over nodes, edges
// and audit can be left partially repointed by a crash mid-merge; recovering from that is
// the storage layer's concern.
package merging

import (
	"context"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// maxChainDepth bounds ResolveLive. Chains longer than this are treated as corrupt.
const maxChainDepth = 64

type Executor struct {
	store  *repositories.Store
	audit  *audit.Log
	sink   events.Sink
	logger ectologger.Logger
}

func NewExecutor(store *repositories.Store, auditLog *audit.Log, sink events.Sink, logger ectologger.Logger) *Executor {
	if sink == nil {
		sink = events.Noop()
	}
	return &Executor{
		store:  store,
		audit:  auditLog,
		sink:   sink,
		logger: logger,
	}
}

// Merge folds victimID into survivorID in its own transaction.
func (e *Executor) Merge(ctx context.Context, survivorID, victimID, actor, reason string) (models.MergeOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.Merge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id": survivorID,
		"victim_id":   victimID,
		"actor":       actor,
	})

	var outcome models.MergeOutcome
	rec := &events.Recorder{}
	err := e.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = e.MergeInTx(ctx, rec, survivorID, victimID, actor, reason)
		return err
	})
	if err != nil {
		metrics.RecordMerge("failed", 0)
		tracing.RecordError(span, err)
		log.WithError(err).Warn("Merge failed")
		return models.MergeOutcome{}, err
	}

	metrics.RecordMerge("merged", outcome.EdgesFrom+outcome.EdgesTo)
	log.WithFields(map[string]any{
		"edges_from":     outcome.EdgesFrom,
		"edges_to":       outcome.EdgesTo,
		"invoices_moved": outcome.InvoicesMoved,
	}).Info("Merged node")

	rec.Flush(ctx, e.sink, e.logger)
	return outcome, nil
}

// MergeInTx performs the merge inside the caller's transaction and records the resulting
// event on rec. Callers own commit and event delivery.
func (e *Executor) MergeInTx(ctx context.Context, rec *events.Recorder, survivorID, victimID, actor, reason string) (models.MergeOutcome, error) {
	if survivorID == "" || victimID == "" {
		return models.MergeOutcome{}, apperrors.InvalidOperation("survivor and victim ids are required")
	}
	if survivorID == victimID {
		return models.MergeOutcome{}, apperrors.InvalidOperation("cannot merge node %s into itself", survivorID)
	}
	if strings.TrimSpace(actor) == "" {
		return models.MergeOutcome{}, apperrors.InvalidOperation("merge requires an actor")
	}

	ids := []string{survivorID, victimID}
	sort.Strings(ids)
	if err := e.store.Nodes.Lock(ctx, ids...); err != nil {
		return models.MergeOutcome{}, err
	}

	survivor, err := e.store.Nodes.Get(ctx, survivorID)
	if err != nil {
		return models.MergeOutcome{}, err
	}
	victim, err := e.store.Nodes.Get(ctx, victimID)
	if err != nil {
		return models.MergeOutcome{}, err
	}

	for _, n := range []*models.Node{survivor, victim} {
		if n.IsTombstone() {
			return models.MergeOutcome{}, apperrors.InvalidState("node", n.ID, string(models.NodeStatusActive), string(models.NodeStatusMerged)).
				AddMetaValue(models.AttrMergedInto, n.Attributes.MergedInto())
		}
	}
	if survivor.Type != victim.Type {
		return models.MergeOutcome{}, apperrors.InvalidOperation("cannot merge %s %s into %s %s", victim.Type, victim.ID, survivor.Type, survivor.ID)
	}

	outcome := models.MergeOutcome{SurvivorID: survivorID, VictimID: victimID}

	if outcome.EdgesFrom, err = e.store.Edges.RepointFrom(ctx, victimID, survivorID); err != nil {
		return models.MergeOutcome{}, err
	}
	if outcome.EdgesTo, err = e.store.Edges.RepointTo(ctx, victimID, survivorID); err != nil {
		return models.MergeOutcome{}, err
	}
	if outcome.InvoicesMoved, err = e.store.Invoices.RepointVendor(ctx, victimID, survivorID); err != nil {
		return models.MergeOutcome{}, err
	}

	victimAttrs := victim.Attributes.Clone()
	victimAttrs[models.AttrStatus] = string(models.NodeStatusMerged)
	victimAttrs[models.AttrMergedInto] = survivorID
	if err := e.store.Nodes.UpdateAttributes(ctx, victimID, victimAttrs); err != nil {
		return models.MergeOutcome{}, err
	}

	survivorAttrs := survivor.Attributes.Clone()
	survivorAttrs.AddAliases(victim.Names()...)
	if err := e.store.Nodes.UpdateAttributes(ctx, survivorID, survivorAttrs); err != nil {
		return models.MergeOutcome{}, err
	}
	survivor.Attributes = survivorAttrs

	if _, err := e.audit.Record(ctx, models.AuditVendorMerge, actor, survivorID, map[string]any{
		"merged_node":    victimID,
		"reason":         reason,
		"edges_from":     outcome.EdgesFrom,
		"edges_to":       outcome.EdgesTo,
		"invoices_moved": outcome.InvoicesMoved,
	}); err != nil {
		return models.MergeOutcome{}, err
	}
	if _, err := e.audit.Record(ctx, models.AuditWasMerged, actor, victimID, map[string]any{
		"merged_into": survivorID,
		"reason":      reason,
	}); err != nil {
		return models.MergeOutcome{}, err
	}

	if rec != nil {
		rec.Add(events.Event{
			Kind:   events.KindEntityMerged,
			Actor:  actor,
			Reason: reason,
			Node:   survivor,
			Merge:  &outcome,
		})
	}
	return outcome, nil
}

// ResolveLive follows merged_into from id to the live node it now belongs to.
func (e *Executor) ResolveLive(ctx context.Context, id string) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.ResolveLive")
	defer span.End()

	return ResolveLive(ctx, e.store.Nodes, id)
}

// ResolveLive walks the merge chain starting at id. A cycle or an over-long chain is an
// InvalidState on the node where the walk stopped.
func ResolveLive(ctx context.Context, nodes repositories.NodeRepo, id string) (*models.Node, error) {
	seen := map[string]struct{}{}
	current := id
	for depth := 0; ; depth++ {
		node, err := nodes.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		if !node.IsTombstone() {
			return node, nil
		}

		seen[current] = struct{}{}
		next := node.Attributes.MergedInto()
		if next == "" {
			return nil, apperrors.InvalidState("node", current, string(models.NodeStatusActive), string(models.NodeStatusMerged))
		}
		if _, loop := seen[next]; loop || depth >= maxChainDepth {
			return nil, apperrors.InvalidState("node", current, "acyclic merge chain", "cycle").
				AddMetaValue(models.AttrMergedInto, next)
		}
		current = next
	}
}
