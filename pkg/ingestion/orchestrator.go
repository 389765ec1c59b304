// Package ingestion turns raw invoice records into graph writes: resolve the vendor name,
// then link, queue for review, or mint a new vendor depending on the match tier.
package ingestion

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/linking"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type Orchestrator struct {
	store   *repositories.Store
	matcher *matching.Matcher
	queue   *reconciliation.Queue
	linker  *linking.Linker
	audit   *audit.Log
	sink    events.Sink
	logger  ectologger.Logger
}

func NewOrchestrator(
	store *repositories.Store,
	matcher *matching.Matcher,
	queue *reconciliation.Queue,
	linker *linking.Linker,
	auditLog *audit.Log,
	sink events.Sink,
	logger ectologger.Logger,
) *Orchestrator {
	if sink == nil {
		sink = events.Noop()
	}
	return &Orchestrator{
		store:   store,
		matcher: matcher,
		queue:   queue,
		linker:  linker,
		audit:   auditLog,
		sink:    sink,
		logger:  logger,
	}
}

// Ingest processes one raw record. Re-ingesting a (source, source_id) pair that already
// produced an invoice, or that still waits in the reconciliation queue, returns the
// original ids with Duplicate set and writes nothing.
func (o *Orchestrator) Ingest(ctx context.Context, record models.InvoiceRecord, actor string) (*models.IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Orchestrator.Ingest")
	defer span.End()

	record, err := utils.Validate(record)
	if err != nil {
		metrics.RecordIngestion(record.Source, "invalid")
		return nil, err
	}
	if strings.TrimSpace(actor) == "" {
		actor = fernctx.GetActor(ctx)
	}

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"source":      record.Source,
		"source_id":   record.SourceID,
		"vendor_name": record.VendorName,
	})

	var result *models.IngestResult
	rec := &events.Recorder{}
	err = o.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := o.store.Invoices.Get(ctx, record.InvoiceID())
		if err == nil {
			result = &models.IngestResult{
				Status:    models.IngestStatusIngested,
				EntityID:  existing.VendorNodeID,
				EdgeID:    existing.EdgeID,
				InvoiceID: existing.ID,
				Duplicate: true,
			}
			return nil
		}
		if !apperrors.IsNotFound(err) {
			return err
		}

		queued, err := o.store.Tasks.FindPending(ctx, record.Source, record.SourceID)
		if err == nil {
			result = &models.IngestResult{
				Status:    models.IngestStatusQueued,
				TaskID:    queued.ID,
				MatchType: models.MatchTypeCandidate,
				Score:     queued.Score,
				Duplicate: true,
			}
			return nil
		}
		if !apperrors.IsNotFound(err) {
			return err
		}

		match, err := o.matcher.Resolve(ctx, record.VendorName, models.NodeTypeVendor)
		if err != nil {
			return err
		}

		var vendor *models.Node
		switch match.MatchType {
		case models.MatchTypeCandidate:
			task, err := o.queue.EnqueueInTx(ctx, rec, record, match.MatchID, match.Score, actor)
			if err != nil {
				return err
			}
			result = &models.IngestResult{
				Status:    models.IngestStatusQueued,
				TaskID:    task.ID,
				MatchType: match.MatchType,
				Score:     match.Score,
			}
			return nil
		case models.MatchTypeAuto:
			vendor, err = o.store.Nodes.Get(ctx, match.MatchID)
		default:
			vendor, err = o.linker.CreateEntity(ctx, rec, record.VendorName, models.NodeTypeVendor, actor, map[string]any{
				"source":    record.Source,
				"source_id": record.SourceID,
				"score":     match.Score,
			})
		}
		if err != nil {
			return err
		}

		if _, err := o.audit.Record(ctx, models.AuditEntityLinked, actor, vendor.ID, map[string]any{
			"raw_name":     record.VendorName,
			"matched_name": match.MatchedName,
			"match_type":   string(match.MatchType),
			"score":        match.Score,
			"source":       record.Source,
			"source_id":    record.SourceID,
		}); err != nil {
			return err
		}

		link, err := o.linker.Link(ctx, rec, vendor, record, actor)
		if err != nil {
			return err
		}

		result = &models.IngestResult{
			Status:    models.IngestStatusIngested,
			EntityID:  vendor.ID,
			EdgeID:    link.EdgeID,
			InvoiceID: link.InvoiceID,
			MatchType: match.MatchType,
			Score:     match.Score,
		}
		return nil
	})
	if err != nil {
		metrics.RecordIngestion(record.Source, "failed")
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to ingest invoice record")
		return nil, err
	}

	status := string(result.Status)
	if result.Duplicate {
		status = "duplicate"
	}
	metrics.RecordIngestion(record.Source, status)
	log.WithFields(map[string]any{
		"status":     result.Status,
		"match_type": result.MatchType,
		"score":      result.Score,
		"entity_id":  result.EntityID,
		"task_id":    result.TaskID,
		"duplicate":  result.Duplicate,
	}).Info("Ingested invoice record")

	rec.Flush(ctx, o.sink, o.logger)
	return result, nil
}

// Resolve exposes the matcher for callers that only want the classification.
func (o *Orchestrator) Resolve(ctx context.Context, rawName string, nodeType models.NodeType) (models.MatchResult, error) {
	if strings.TrimSpace(rawName) == "" {
		return models.MatchResult{}, apperrors.InvalidOperation("raw_name is required")
	}
	return o.matcher.Resolve(ctx, rawName, nodeType)
}

// UpdateInvoiceStatus moves an invoice between unapproved, approved, paid and void.
func (o *Orchestrator) UpdateInvoiceStatus(ctx context.Context, invoiceID string, status models.InvoiceStatus, actor string) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Orchestrator.UpdateInvoiceStatus")
	defer span.End()

	if !status.IsValid() {
		return nil, apperrors.InvalidOperation("unknown invoice status %q", status)
	}
	if strings.TrimSpace(actor) == "" {
		actor = fernctx.GetActor(ctx)
	}

	var invoice *models.Invoice
	rec := &events.Recorder{}
	err := o.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := o.store.Invoices.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		previous := current.Status

		if err := o.store.Invoices.UpdateStatus(ctx, invoiceID, status); err != nil {
			return err
		}
		if _, err := o.audit.Record(ctx, models.AuditInvoiceStatusChanged, actor, invoiceID, map[string]any{
			"previous_status": string(previous),
			"new_status":      string(status),
		}); err != nil {
			return err
		}

		current.Status = status
		invoice = current
		rec.Add(events.Event{Kind: events.KindInvoiceStatusChanged, Actor: actor, Invoice: current})
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"invoice_id": invoiceID,
		"status":     status,
		"actor":      actor,
	}).Info("Updated invoice status")

	rec.Flush(ctx, o.sink, o.logger)
	return invoice, nil
}
