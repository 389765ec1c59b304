package memory

import (
	"context"
	"sort"

	"github.com/Ramsey-B/fern/pkg/apperrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type nodeRepo struct{ s *Store }

func (r *nodeRepo) Create(ctx context.Context, node *models.Node) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.nodes[node.ID]; ok {
			return apperrors.InvalidOperation("node %s already exists", node.ID)
		}
		now := r.s.now()
		if node.CreatedAt.IsZero() {
			node.CreatedAt = now
		}
		node.UpdatedAt = now
		st.nodes[node.ID] = node.Clone()
		return nil
	})
}

func (r *nodeRepo) Get(ctx context.Context, id string) (*models.Node, error) {
	var out *models.Node
	err := r.s.read(ctx, func(st *state) error {
		n, ok := st.nodes[id]
		if !ok {
			return apperrors.NotFound("node", id)
		}
		out = n.Clone()
		return nil
	})
	return out, err
}

// Lock only checks existence. A transaction already holds the store-wide lock.
func (r *nodeRepo) Lock(ctx context.Context, ids ...string) error {
	return r.s.read(ctx, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.nodes[id]; !ok {
				return apperrors.NotFound("node", id)
			}
		}
		return nil
	})
}

func (r *nodeRepo) ListLive(ctx context.Context, nodeType models.NodeType) ([]*models.Node, error) {
	var out []*models.Node
	err := r.s.read(ctx, func(st *state) error {
		for _, n := range st.nodes {
			if n.Type == nodeType && !n.IsTombstone() {
				out = append(out, n.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *nodeRepo) UpdateAttributes(ctx context.Context, id string, attrs models.Attributes) error {
	return r.s.write(ctx, func(st *state) error {
		n, ok := st.nodes[id]
		if !ok {
			return apperrors.NotFound("node", id)
		}
		n.Attributes = attrs.Clone()
		n.UpdatedAt = r.s.now()
		return nil
	})
}
