// Package nodes serves read-only views of canonical nodes.
package nodes

import (
	"context"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Service struct {
	store *repositories.Store
	audit *audit.Log
}

func NewService(store *repositories.Store, auditLog *audit.Log) *Service {
	return &Service{
		store: store,
		audit: auditLog,
	}
}

// Detail returns the node with its edge aggregates. Node and stats are read in one
// transaction so the pair reflects a single committed state.
func (s *Service) Detail(ctx context.Context, id string) (*models.NodeDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "nodes.Service.Detail")
	defer span.End()

	var detail *models.NodeDetail
	err := s.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		node, err := s.store.Nodes.Get(ctx, id)
		if err != nil {
			return err
		}
		stats, err := s.store.Edges.Stats(ctx, id)
		if err != nil {
			return err
		}
		detail = &models.NodeDetail{Node: node, Stats: stats}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return detail, nil
}

// History returns the audit trail of a node, edge or invoice, newest first.
func (s *Service) History(ctx context.Context, id string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "nodes.Service.History")
	defer span.End()

	entries, err := s.audit.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}

// Edges lists the edges touching a node.
func (s *Service) Edges(ctx context.Context, id string) ([]*models.Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "nodes.Service.Edges")
	defer span.End()

	if _, err := s.store.Nodes.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Edges.ListTouching(ctx, id)
}
