package repositories

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/audit"
	"github.com/Ramsey-B/fern/internal/repositories/edge"
	"github.com/Ramsey-B/fern/internal/repositories/invoice"
	"github.com/Ramsey-B/fern/internal/repositories/node"
	"github.com/Ramsey-B/fern/internal/repositories/proposal"
	"github.com/Ramsey-B/fern/internal/repositories/reconciliation"
	"github.com/Ramsey-B/fern/pkg/database"
)

// NewPostgresStore wires the sql repositories over one pool. The pool is the Transactor.
func NewPostgresStore(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		Nodes:     node.NewRepository(db, logger),
		Edges:     edge.NewRepository(db, logger),
		Audit:     audit.NewRepository(db, logger),
		Tasks:     reconciliation.NewRepository(db, logger),
		Proposals: proposal.NewRepository(db, logger),
		Invoices:  invoice.NewRepository(db, logger),
		Tx:        db,
	}
}
