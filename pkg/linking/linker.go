// Package linking materializes a raw invoice record into the graph: minting vendors,
// getting or creating the job endpoint, writing the PaymentFlow edge and the invoice.
// Ingestion and reconciliation share it so both paths build identical records.
package linking

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 10
)

// Result names what a link wrote. EdgeID and InvoiceID are empty when the record has no job.
type Result struct {
	VendorID  string
	JobID     string
	EdgeID    string
	InvoiceID string
}

type Linker struct {
	store  *repositories.Store
	audit  *audit.Log
	logger ectologger.Logger
	newID  func() (string, error)
}

func NewLinker(store *repositories.Store, auditLog *audit.Log, logger ectologger.Logger) *Linker {
	return &Linker{
		store:  store,
		audit:  auditLog,
		logger: logger,
		newID: func() (string, error) {
			return gonanoid.Generate(idAlphabet, idLength)
		},
	}
}

// NodeID builds the canonical id for a node of nodeType, e.g. node:vendor:<key>.
func NodeID(nodeType models.NodeType, key string) string {
	return fmt.Sprintf("node:%s:%s", strings.ToLower(string(nodeType)), key)
}

// JobNodeID is the deterministic id of the job a record references.
func JobNodeID(jobID string) string {
	return NodeID(models.NodeTypeJob, jobID)
}

// CreateEntity mints a new canonical node named after the raw name, with the raw name as
// its only alias, and writes entity-created.
func (l *Linker) CreateEntity(ctx context.Context, rec *events.Recorder, rawName string, nodeType models.NodeType, actor string, details map[string]any) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "linking.Linker.CreateEntity")
	defer span.End()

	if strings.TrimSpace(rawName) == "" {
		return nil, apperrors.InvalidOperation("cannot create an entity without a name")
	}
	if nodeType == "" {
		nodeType = models.NodeTypeVendor
	}

	key, err := l.newID()
	if err != nil {
		return nil, apperrors.Internal(err, "failed to generate node id")
	}

	node := &models.Node{
		ID:   NodeID(nodeType, key),
		Type: nodeType,
		Attributes: models.Attributes{
			models.AttrName:    rawName,
			models.AttrAliases: []string{rawName},
			models.AttrStatus:  string(models.NodeStatusActive),
		},
	}
	if nodeType == models.NodeTypeVendor {
		node.Attributes["vendor_id"] = key
	}
	if err := l.store.Nodes.Create(ctx, node); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	auditDetails := map[string]any{"name": rawName}
	for k, v := range details {
		auditDetails[k] = v
	}
	if _, err := l.audit.Record(ctx, models.AuditEntityCreated, actor, node.ID, auditDetails); err != nil {
		return nil, err
	}

	rec.Add(events.Event{Kind: events.KindEntityCreated, Actor: actor, Node: node.Clone()})
	return node, nil
}

// Link writes the edge and invoice implied by record against vendor. A record without a
// job id has no relationship endpoint, so nothing is written.
func (l *Linker) Link(ctx context.Context, rec *events.Recorder, vendor *models.Node, record models.InvoiceRecord, actor string) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "linking.Linker.Link")
	defer span.End()

	result := Result{VendorID: vendor.ID}
	if vendor.IsTombstone() {
		return result, apperrors.InvalidState("node", vendor.ID, string(models.NodeStatusActive), string(models.NodeStatusMerged)).
			AddMetaValue(models.AttrMergedInto, vendor.Attributes.MergedInto())
	}
	if record.JobID == "" {
		return result, nil
	}

	invoiceID := record.InvoiceID()
	if _, err := l.store.Invoices.Get(ctx, invoiceID); err == nil {
		return result, apperrors.InvalidState("invoice", invoiceID, "not ingested", "ingested")
	} else if !apperrors.IsNotFound(err) {
		return result, err
	}

	job, err := l.jobNode(ctx, rec, record, actor)
	if err != nil {
		tracing.RecordError(span, err)
		return result, err
	}
	result.JobID = job.ID

	edge := &models.Edge{
		ID:         "edge:txn:" + uuid.New().String(),
		Type:       models.EdgeTypePaymentFlow,
		FromNodeID: vendor.ID,
		ToNodeID:   job.ID,
		Attributes: models.Attributes{
			models.AttrAmount:   record.Amount,
			models.AttrCurrency: record.CurrencyOrDefault(),
			models.AttrDate:     record.Date,
			"source":            record.Source,
			"source_id":         record.SourceID,
			"cost_codes":        costCodes(record.CostCodes),
			"description":       record.Description,
		},
	}
	if err := l.store.Edges.Create(ctx, edge); err != nil {
		tracing.RecordError(span, err)
		return result, err
	}
	if _, err := l.audit.Record(ctx, models.AuditEdgeCreated, actor, edge.ID, map[string]any{
		"from":      vendor.ID,
		"to":        job.ID,
		"amount":    record.Amount,
		"source":    record.Source,
		"source_id": record.SourceID,
	}); err != nil {
		return result, err
	}
	result.EdgeID = edge.ID
	rec.Add(events.Event{Kind: events.KindEdgeCreated, Actor: actor, Edge: edge.Clone()})

	invoice := &models.Invoice{
		ID:           invoiceID,
		Source:       record.Source,
		SourceID:     record.SourceID,
		VendorNodeID: vendor.ID,
		JobNodeID:    job.ID,
		EdgeID:       edge.ID,
		Amount:       record.Amount,
		Currency:     record.CurrencyOrDefault(),
		Date:         record.Date,
		Status:       models.InvoiceStatusUnapproved,
		CostCodes:    costCodes(record.CostCodes),
		Description:  record.Description,
		RawPayload:   record.RawPayload,
	}
	if err := l.store.Invoices.Create(ctx, invoice); err != nil {
		tracing.RecordError(span, err)
		return result, err
	}
	result.InvoiceID = invoice.ID

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"vendor_id":  vendor.ID,
		"job_id":     job.ID,
		"edge_id":    edge.ID,
		"invoice_id": invoice.ID,
	}).Debug("Linked invoice record")

	return result, nil
}

// jobNode returns the live job a record references. A job id whose node was merged away
// resolves to the survivor, since tombstones never receive new edges.
func (l *Linker) jobNode(ctx context.Context, rec *events.Recorder, record models.InvoiceRecord, actor string) (*models.Node, error) {
	id := JobNodeID(record.JobID)
	job, err := merging.ResolveLive(ctx, l.store.Nodes, id)
	if err == nil {
		return job, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	job = &models.Node{
		ID:   id,
		Type: models.NodeTypeJob,
		Attributes: models.Attributes{
			"job_id":          record.JobID,
			models.AttrName:   "Job " + record.JobID,
			models.AttrStatus: string(models.NodeStatusActive),
		},
	}
	if err := l.store.Nodes.Create(ctx, job); err != nil {
		return nil, err
	}
	if _, err := l.audit.Record(ctx, models.AuditEntityCreated, actor, job.ID, map[string]any{
		"name":      job.Attributes.Name(),
		"source":    record.Source,
		"source_id": record.SourceID,
	}); err != nil {
		return nil, err
	}
	rec.Add(events.Event{Kind: events.KindEntityCreated, Actor: actor, Node: job.Clone()})
	return job, nil
}

func costCodes(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return append([]string(nil), codes...)
}
