package models

import "time"

type AuditAction string

const (
	AuditEntityCreated          AuditAction = "entity-created"
	AuditEntityLinked           AuditAction = "entity-linked"
	AuditEntityMatchedConfirmed AuditAction = "entity-matched-confirmed"
	AuditEdgeCreated            AuditAction = "edge-created"
	AuditReconciliationQueued   AuditAction = "reconciliation-queued"
	AuditVendorMerge            AuditAction = "vendor-merge"
	AuditWasMerged              AuditAction = "was-merged"
	AuditMergeProposed          AuditAction = "merge-proposed"
	AuditMergeApproved          AuditAction = "merge-approved"
	AuditMergeRejected          AuditAction = "merge-rejected"
	AuditInvoiceStatusChanged   AuditAction = "invoice-status-changed"
)

var auditActions = map[AuditAction]struct{}{
	AuditEntityCreated:          {},
	AuditEntityLinked:           {},
	AuditEntityMatchedConfirmed: {},
	AuditEdgeCreated:            {},
	AuditReconciliationQueued:   {},
	AuditVendorMerge:            {},
	AuditWasMerged:              {},
	AuditMergeProposed:          {},
	AuditMergeApproved:          {},
	AuditMergeRejected:          {},
	AuditInvoiceStatusChanged:   {},
}

func (a AuditAction) IsValid() bool {
	_, ok := auditActions[a]
	return ok
}

// AuditEntry is immutable once written.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    AuditAction    `json:"action"`
	Actor     string         `json:"actor"`
	TargetID  string         `json:"target_id"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}
