package memory

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type edgeRepo struct{ s *Store }

func (r *edgeRepo) Create(ctx context.Context, edge *models.Edge) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.edges[edge.ID]; ok {
			return apperrors.InvalidOperation("edge %s already exists", edge.ID)
		}
		for _, id := range []string{edge.FromNodeID, edge.ToNodeID} {
			if _, ok := st.nodes[id]; !ok {
				return apperrors.NotFound("node", id)
			}
		}
		if edge.CreatedAt.IsZero() {
			edge.CreatedAt = r.s.now()
		}
		st.nextEdgeSeq++
		st.edgeSeq[edge.ID] = st.nextEdgeSeq
		st.edges[edge.ID] = edge.Clone()
		return nil
	})
}

func (r *edgeRepo) Get(ctx context.Context, id string) (*models.Edge, error) {
	var out *models.Edge
	err := r.s.read(ctx, func(st *state) error {
		e, ok := st.edges[id]
		if !ok {
			return apperrors.NotFound("edge", id)
		}
		out = e.Clone()
		return nil
	})
	return out, err
}

func (r *edgeRepo) ListTouching(ctx context.Context, nodeID string) ([]*models.Edge, error) {
	var out []*models.Edge
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range sortedEdges(st, func(e *models.Edge) bool { return e.Touches(nodeID) }) {
			out = append(out, e.Clone())
		}
		return nil
	})
	return out, err
}

func (r *edgeRepo) RepointFrom(ctx context.Context, victimID, survivorID string) (int, error) {
	moved := 0
	err := r.s.write(ctx, func(st *state) error {
		for _, e := range st.edges {
			if e.FromNodeID == victimID {
				e.FromNodeID = survivorID
				moved++
			}
		}
		return nil
	})
	return moved, err
}

func (r *edgeRepo) RepointTo(ctx context.Context, victimID, survivorID string) (int, error) {
	moved := 0
	err := r.s.write(ctx, func(st *state) error {
		for _, e := range st.edges {
			if e.ToNodeID == victimID {
				e.ToNodeID = survivorID
				moved++
			}
		}
		return nil
	})
	return moved, err
}

func (r *edgeRepo) Stats(ctx context.Context, nodeID string) (models.NodeStats, error) {
	var stats models.NodeStats
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.edges {
			if !e.Touches(nodeID) {
				continue
			}
			amount := e.Attributes.Amount()
			stats.EdgeCount++
			stats.Volume += amount
			if e.FromNodeID == nodeID {
				stats.Outflow += amount
			}
			if e.ToNodeID == nodeID {
				stats.Inflow += amount
			}
		}
		return nil
	})
	return stats, err
}
