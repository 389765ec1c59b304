// Package reconciliation holds ambiguous matches until a person confirms the candidate
// or declares the name a new entity. Each task materializes its record exactly once.
package reconciliation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/linking"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const DefaultListLimit = 100

type Queue struct {
	store  *repositories.Store
	linker *linking.Linker
	audit  *audit.Log
	sink   events.Sink
	logger ectologger.Logger
	now    func() time.Time
}

func NewQueue(store *repositories.Store, linker *linking.Linker, auditLog *audit.Log, sink events.Sink, logger ectologger.Logger) *Queue {
	if sink == nil {
		sink = events.Noop()
	}
	return &Queue{
		store:  store,
		linker: linker,
		audit:  auditLog,
		sink:   sink,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue stores a pending task for record against candidateID and returns its id.
func (q *Queue) Enqueue(ctx context.Context, record models.InvoiceRecord, candidateID string, score float64, actor string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Queue.Enqueue")
	defer span.End()

	var task *models.ReconciliationTask
	rec := &events.Recorder{}
	err := q.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		task, err = q.EnqueueInTx(ctx, rec, record, candidateID, score, actor)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}

	rec.Flush(ctx, q.sink, q.logger)
	return task.ID, nil
}

// EnqueueInTx writes the task and its audit entry inside the caller's transaction.
func (q *Queue) EnqueueInTx(ctx context.Context, rec *events.Recorder, record models.InvoiceRecord, candidateID string, score float64, actor string) (*models.ReconciliationTask, error) {
	if candidateID == "" {
		return nil, apperrors.InvalidOperation("a reconciliation task needs a candidate")
	}
	actor = defaultActor(ctx, actor)

	candidate, err := q.store.Nodes.Get(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	task := &models.ReconciliationTask{
		Record:      record,
		CandidateID: candidateID,
		Score:       score,
		EntityType:  candidate.Type,
		Status:      models.TaskStatusPending,
		CreatedAt:   q.now(),
	}
	if err := q.store.Tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	if _, err := q.audit.Record(ctx, models.AuditReconciliationQueued, actor, candidateID, map[string]any{
		"task_id":   task.ID,
		"raw_name":  record.VendorName,
		"score":     score,
		"source":    record.Source,
		"source_id": record.SourceID,
	}); err != nil {
		return nil, err
	}

	metrics.RecordReconciliation("queued")
	q.logger.WithContext(ctx).WithFields(map[string]any{
		"task_id":      task.ID,
		"candidate_id": candidateID,
		"score":        score,
		"raw_name":     record.VendorName,
	}).Info("Queued reconciliation task")

	rec.Add(events.Event{Kind: events.KindReconciliationQueued, Actor: actor, Task: task})
	return task, nil
}

// ListPending returns pending tasks oldest first. A non-positive limit uses DefaultListLimit.
func (q *Queue) ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Queue.ListPending")
	defer span.End()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	return q.store.Tasks.ListPending(ctx, limit)
}

func (q *Queue) Get(ctx context.Context, id int64) (*models.ReconciliationTask, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Queue.Get")
	defer span.End()

	return q.store.Tasks.Get(ctx, id)
}

// Resolve applies a human decision to a pending task and materializes its record.
//
// merge links the record to the override target or the task's candidate, following the
// merge chain when that node has since been absorbed. create_new mints a fresh entity.
func (q *Queue) Resolve(ctx context.Context, id int64, req models.ResolveTaskRequest) (*models.ResolveTaskResult, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Queue.Resolve")
	defer span.End()

	if !req.Action.IsValid() {
		return nil, apperrors.InvalidOperation("unknown resolution action %q", req.Action)
	}
	actor := defaultActor(ctx, req.Actor)

	var result *models.ResolveTaskResult
	rec := &events.Recorder{}
	err := q.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		task, err := q.store.Tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusPending {
			return apperrors.InvalidState("reconciliation task", taskID(id), string(models.TaskStatusPending), string(task.Status))
		}

		existing, err := q.existingInvoice(ctx, task.Record)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = q.close(ctx, rec, task, req.Action, existing, actor)
			return err
		}

		var vendor *models.Node
		switch req.Action {
		case models.ResolveActionMerge:
			vendor, err = q.confirm(ctx, rec, task, req.TargetEntityID, actor)
		case models.ResolveActionCreateNew:
			vendor, err = q.linker.CreateEntity(ctx, rec, task.Record.VendorName, entityType(task), actor, map[string]any{
				"task_id":   task.ID,
				"source":    task.Record.Source,
				"source_id": task.Record.SourceID,
			})
		}
		if err != nil {
			return err
		}

		link, err := q.linker.Link(ctx, rec, vendor, task.Record, actor)
		if err != nil {
			return err
		}

		resolution := models.TaskResolution{
			Action:           req.Action,
			ResolvedBy:       actor,
			ResolvedEntityID: vendor.ID,
			ResolvedAt:       q.now(),
		}
		if err := q.markResolved(ctx, rec, task, resolution); err != nil {
			return err
		}

		result = &models.ResolveTaskResult{
			TaskID:           id,
			ResolvedEntityID: vendor.ID,
			EdgeID:           link.EdgeID,
			InvoiceID:        link.InvoiceID,
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		q.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"task_id": id,
			"action":  req.Action,
		}).Warn("Failed to resolve reconciliation task")
		return nil, err
	}

	metrics.RecordReconciliation(string(req.Action))
	q.logger.WithContext(ctx).WithFields(map[string]any{
		"task_id":            id,
		"action":             req.Action,
		"resolved_entity_id": result.ResolvedEntityID,
		"actor":              actor,
	}).Info("Resolved reconciliation task")

	rec.Flush(ctx, q.sink, q.logger)
	return result, nil
}

// existingInvoice returns the invoice already written for the task's record, or nil.
func (q *Queue) existingInvoice(ctx context.Context, record models.InvoiceRecord) (*models.Invoice, error) {
	if record.JobID == "" {
		return nil, nil
	}
	invoice, err := q.store.Invoices.Get(ctx, record.InvoiceID())
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return invoice, err
}

// close resolves a task whose record was materialized by another path. Nothing is linked
// again; the task points at the vendor that already owns the invoice.
func (q *Queue) close(ctx context.Context, rec *events.Recorder, task *models.ReconciliationTask, action models.ResolveAction, invoice *models.Invoice, actor string) (*models.ResolveTaskResult, error) {
	resolution := models.TaskResolution{
		Action:           action,
		ResolvedBy:       actor,
		ResolvedEntityID: invoice.VendorNodeID,
		ResolvedAt:       q.now(),
	}
	if err := q.markResolved(ctx, rec, task, resolution); err != nil {
		return nil, err
	}

	q.logger.WithContext(ctx).WithFields(map[string]any{
		"task_id":    task.ID,
		"invoice_id": invoice.ID,
	}).Info("Closed reconciliation task for an already ingested record")

	return &models.ResolveTaskResult{
		TaskID:           task.ID,
		ResolvedEntityID: invoice.VendorNodeID,
		EdgeID:           invoice.EdgeID,
		InvoiceID:        invoice.ID,
		Duplicate:        true,
	}, nil
}

func (q *Queue) markResolved(ctx context.Context, rec *events.Recorder, task *models.ReconciliationTask, resolution models.TaskResolution) error {
	applied, err := q.store.Tasks.Resolve(ctx, task.ID, resolution)
	if err != nil {
		return err
	}
	if !applied {
		return apperrors.InvalidState("reconciliation task", taskID(task.ID), string(models.TaskStatusPending), string(models.TaskStatusResolved))
	}

	resolvedAt := resolution.ResolvedAt
	task.Status = models.TaskStatusResolved
	task.ResolvedAt = &resolvedAt
	task.ResolvedBy = resolution.ResolvedBy
	task.Resolution = resolution.Action
	task.ResolvedEntityID = resolution.ResolvedEntityID
	rec.Add(events.Event{Kind: events.KindReconciliationDone, Actor: resolution.ResolvedBy, Task: task})
	return nil
}

// confirm resolves the merge target to its live node, records the confirmation and keeps
// the raw name as an alias so the next ingestion of it matches automatically.
func (q *Queue) confirm(ctx context.Context, rec *events.Recorder, task *models.ReconciliationTask, override, actor string) (*models.Node, error) {
	target := override
	if target == "" {
		target = task.CandidateID
	}

	vendor, err := merging.ResolveLive(ctx, q.store.Nodes, target)
	if err != nil {
		return nil, err
	}
	if vendor.Type != entityType(task) {
		return nil, apperrors.InvalidOperation("target %s is a %s, expected %s", vendor.ID, vendor.Type, entityType(task))
	}

	details := map[string]any{
		"task_id":   task.ID,
		"raw_name":  task.Record.VendorName,
		"score":     task.Score,
		"source":    task.Record.Source,
		"source_id": task.Record.SourceID,
	}
	if vendor.ID != target {
		details["requested_target"] = target
	}
	if _, err := q.audit.Record(ctx, models.AuditEntityMatchedConfirmed, actor, vendor.ID, details); err != nil {
		return nil, err
	}

	attrs := vendor.Attributes.Clone()
	before := len(attrs.Aliases())
	attrs.AddAliases(task.Record.VendorName)
	if len(attrs.Aliases()) != before {
		if err := q.store.Nodes.UpdateAttributes(ctx, vendor.ID, attrs); err != nil {
			return nil, err
		}
		vendor.Attributes = attrs
		rec.Add(events.Event{Kind: events.KindEntityUpdated, Actor: actor, Node: vendor.Clone()})
	}
	return vendor, nil
}

func entityType(task *models.ReconciliationTask) models.NodeType {
	if task.EntityType == "" {
		return models.NodeTypeVendor
	}
	return task.EntityType
}

func defaultActor(ctx context.Context, actor string) string {
	if strings.TrimSpace(actor) != "" {
		return actor
	}
	return fernctx.GetActor(ctx)
}

func taskID(id int64) string {
	return strconv.FormatInt(id, 10)
}
