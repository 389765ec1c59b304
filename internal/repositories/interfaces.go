package repositories

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// NodeRepo persists canonical entities. Nodes are never deleted.
type NodeRepo interface {
	Create(ctx context.Context, node *models.Node) error
	Get(ctx context.Context, id string) (*models.Node, error)
	// Lock takes row locks on the given nodes for the rest of the transaction.
	Lock(ctx context.Context, ids ...string) error
	// ListLive returns non-tombstoned nodes of a type ordered by id.
	ListLive(ctx context.Context, nodeType models.NodeType) ([]*models.Node, error)
	UpdateAttributes(ctx context.Context, id string, attrs models.Attributes) error
}

// EdgeRepo persists relationships. Endpoint rewrites are the only mutation.
type EdgeRepo interface {
	Create(ctx context.Context, edge *models.Edge) error
	Get(ctx context.Context, id string) (*models.Edge, error)
	ListTouching(ctx context.Context, nodeID string) ([]*models.Edge, error)
	RepointFrom(ctx context.Context, victimID, survivorID string) (int, error)
	RepointTo(ctx context.Context, victimID, survivorID string) (int, error)
	Stats(ctx context.Context, nodeID string) (models.NodeStats, error)
}

// AuditRepo is append-only.
type AuditRepo interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	// ListByTarget returns entries newest first.
	ListByTarget(ctx context.Context, targetID string) ([]models.AuditEntry, error)
}

type ReconciliationRepo interface {
	Create(ctx context.Context, task *models.ReconciliationTask) error
	Get(ctx context.Context, id int64) (*models.ReconciliationTask, error)
	ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error)
	// FindPending returns the oldest pending task holding the record for (source, sourceID).
	FindPending(ctx context.Context, source, sourceID string) (*models.ReconciliationTask, error)
	// Resolve flips a pending task to resolved. It reports false when the task was not pending.
	Resolve(ctx context.Context, id int64, resolution models.TaskResolution) (bool, error)
}

type ProposalRepo interface {
	Create(ctx context.Context, proposal *models.MergeProposal) error
	Get(ctx context.Context, id int64) (*models.MergeProposal, error)
	// ListPending returns pending proposals oldest first.
	ListPending(ctx context.Context) ([]models.MergeProposal, error)
	// Decide applies a terminal status to a pending proposal. It reports false when the proposal was not pending.
	Decide(ctx context.Context, id int64, decision models.ProposalDecision) (bool, error)
}

type InvoiceRepo interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	Get(ctx context.Context, id string) (*models.Invoice, error)
	CountByVendor(ctx context.Context, vendorNodeID string) (int, error)
	RepointVendor(ctx context.Context, victimID, survivorID string) (int, error)
	UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error
}

// Transactor runs fn atomically. Nested calls join the outer transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories behind one transactional boundary.
type Store struct {
	Nodes     NodeRepo
	Edges     EdgeRepo
	Audit     AuditRepo
	Tasks     ReconciliationRepo
	Proposals ProposalRepo
	Invoices  InvoiceRepo
	Tx        Transactor
}
